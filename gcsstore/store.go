// Package gcsstore keeps token images and metadata in a public Google Cloud
// Storage bucket. Unlike Arweave uploads, objects can be removed.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"gitlab.com/scpcorp/spl-token-manager/common"
)

const publicHost = "https://storage.googleapis.com"

type Store struct {
	client  *storage.Client
	bucket  string
	baseURL string
	log     *logrus.Entry
}

// New opens a client for bucket. Without credentialsFile Application
// Default Credentials are used.
func New(ctx context.Context, bucket, credentialsFile string, opts ...option.ClientOption) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is empty")
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Store{
		client:  client,
		bucket:  bucket,
		baseURL: publicHost,
		log:     logrus.StandardLogger().WithField("type", "gcsstore"),
	}, nil
}

// Quote is always zero: the bucket owner pays for storage.
func (s *Store) Quote(ctx context.Context, size int) (common.Quote, error) {
	return common.Quote{}, nil
}

func (s *Store) Upload(ctx context.Context, data []byte, contentType string) (common.Upload, error) {
	name := objectName(uuid.NewString(), contentType)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return common.Upload{}, fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return common.Upload{}, fmt.Errorf("failed to store object %s: %w", name, err)
	}
	s.log.WithFields(logrus.Fields{
		"object": name,
		"size":   len(data),
	}).Info("stored object")
	return common.Upload{ID: name, URL: s.PublicURL(name)}, nil
}

// Remove deletes an object. Missing objects are not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.client.Bucket(s.bucket).Object(id).Delete(ctx); err != nil &&
		!errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	s.log.WithField("object", id).Info("removed object")
	return nil
}

func (s *Store) PublicURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, name)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func objectName(id, contentType string) string {
	if ext := common.ContentExtension(contentType); ext != "" {
		return id + "." + ext
	}
	if strings.HasPrefix(strings.ToLower(contentType), "application/json") {
		return id + ".json"
	}
	return id
}
