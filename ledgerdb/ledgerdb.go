// Package ledgerdb records storage uploads and token creations so that
// uploads left behind by failed flows can be found and cleaned up.
package ledgerdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"gitlab.com/scpcorp/spl-token-manager/common"
)

//go:embed schema.sql
var schemaSql string

var creations = regexp.MustCompile(`CREATE[^;]+;`).FindAllString(schemaSql, -1)

func creationSql(kind, name string) string {
	hits := make([]string, 0, 1)
	for _, c := range creations {
		if strings.Contains(c, kind+" IF NOT EXISTS "+name+" ") {
			hits = append(hits, c)
		}
	}
	if len(hits) != 1 {
		panic(fmt.Sprintf("expect exactly one hit for %s %s, got %d: %v", kind, name, len(hits), hits))
	}
	return hits[0]
}

const (
	dropUploadsTable = `
DROP TABLE IF EXISTS uploads
`
	dropCreationsTable = `
DROP TABLE IF EXISTS creations
`
)

var dropSchemas = []struct {
	query       string
	description string
}{
	{dropUploadsTable, "drop uploads table"},
	{dropCreationsTable, "drop creations table"},
}

var createSchemas = []struct {
	query       string
	description string
}{
	{creationSql("TABLE", "uploads"), "create uploads table"},
	{creationSql("INDEX", "uploads_status_idx"), "create uploads status index"},
	{creationSql("TABLE", "creations"), "create creations table"},
	{creationSql("INDEX", "creations_owner_idx"), "create creations owner index"},
}

var ErrUnknownStatus = errors.New("unknown status")

func handleErrorWithRollback(err error, tx *sql.Tx) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return rollbackErr
	}
	return err
}

func validUploadStatus(s common.UploadStatus) bool {
	switch s {
	case common.UploadPending, common.UploadLinked, common.UploadOrphaned, common.UploadRemoved:
		return true
	}
	return false
}

func validCreationStatus(s common.CreationStatus) bool {
	return s == common.CreationConfirmed || s == common.CreationFailed
}

type LedgerDB struct {
	db  *sql.DB
	log *logrus.Entry
	now func() time.Time
}

func NewDB(db *sql.DB) (*LedgerDB, error) {
	ldb := &LedgerDB{
		db:  db,
		log: logrus.StandardLogger().WithField("type", "ledgerdb"),
		now: func() time.Time { return time.Now().UTC() },
	}
	if err := ldb.CreateSchemas(); err != nil {
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}
	return ldb, nil
}

func (ldb *LedgerDB) trace(name string) func() {
	lid := uuid.NewString()
	ldb.log.Debugf("%s started (%s)", name, lid)
	return func() {
		ldb.log.Debugf("%s exited (%s)", name, lid)
	}
}

func (ldb *LedgerDB) CreateSchemas() error {
	defer ldb.trace("CreateSchemas")()
	tx, err := ldb.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, s := range createSchemas {
		if _, err := tx.Exec(s.query); err != nil {
			return handleErrorWithRollback(fmt.Errorf("failed to %s: %w", s.description, err), tx)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (ldb *LedgerDB) DropSchemas(cascade bool) error {
	defer ldb.trace("DropSchemas")()
	tx, err := ldb.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	suffix := ""
	if cascade {
		suffix = " CASCADE"
	}
	for _, s := range dropSchemas {
		query := s.query + suffix
		if _, err := tx.Exec(query); err != nil {
			return handleErrorWithRollback(fmt.Errorf("failed to %s: %w", s.description, err), tx)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (ldb *LedgerDB) createDBObjects(ctx context.Context) (*sql.Tx, *Queries, error) {
	tx, err := ldb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	tq := New(ldb.db).WithTx(tx)
	return tx, tq, nil
}

type ldbMethod func(ctx context.Context, tq *Queries) error

type txCommitError struct {
	msg string
}

func (txErr txCommitError) Error() string {
	return txErr.msg
}

func isRetryableTxError(err error) bool {
	if errors.As(err, &txCommitError{}) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "serialization_failure", "deadlock_detected":
			return true
		}
	}
	return false
}

func (ldb *LedgerDB) runRetryableTransaction(ctx context.Context, fn ldbMethod) error {
	return retry.Do(
		func() error {
			tx, tq, err := ldb.createDBObjects(ctx)
			if err != nil {
				return fmt.Errorf("failed to create db objects: %w", err)
			}
			if err := fn(ctx, tq); err != nil {
				return handleErrorWithRollback(err, tx)
			}
			if err := tx.Commit(); err != nil {
				return txCommitError{msg: err.Error()}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableTxError),
	)
}

func (ldb *LedgerDB) RecordUpload(ctx context.Context, rec common.UploadRecord) error {
	defer ldb.trace("RecordUpload")()
	if !validUploadStatus(rec.Status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, rec.Status)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = ldb.now()
	}
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, tq *Queries) error {
		if err := tq.InsertUpload(innerCtx, InsertUploadParams{
			ID:          rec.ID,
			Owner:       rec.Owner.String(),
			ContentID:   rec.ContentID,
			Url:         rec.URL,
			ContentType: rec.ContentType,
			Size:        int64(rec.Size),
			Status:      string(rec.Status),
			CreatedAt:   rec.CreatedAt.UTC(),
		}); err != nil {
			return fmt.Errorf("failed to insert upload %s: %w", rec.ID, err)
		}
		return nil
	})
}

// MarkUploads moves uploads to status. Removed uploads stay removed.
func (ldb *LedgerDB) MarkUploads(ctx context.Context, ids []string, status common.UploadStatus) error {
	defer ldb.trace("MarkUploads")()
	if !validUploadStatus(status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if len(ids) == 0 {
		return nil
	}
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, tq *Queries) error {
		if _, err := tq.UpdateUploadStatus(innerCtx, UpdateUploadStatusParams{
			Status:    string(status),
			UpdatedAt: ldb.now(),
			Ids:       ids,
		}); err != nil {
			return fmt.Errorf("failed to update uploads: %w", err)
		}
		return nil
	})
}

// Orphans returns up to limit orphaned uploads, oldest first.
func (ldb *LedgerDB) Orphans(ctx context.Context, limit int) ([]common.UploadRecord, error) {
	defer ldb.trace("Orphans")()
	var records []common.UploadRecord
	if err := ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, tq *Queries) error {
		rows, err := tq.SelectUploadsByStatus(innerCtx, SelectUploadsByStatusParams{
			Status: string(common.UploadOrphaned),
			Limit:  int32(limit),
		})
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to select orphans: %w", err)
		}
		records, err = uploadsFromSql(rows)
		return err
	}); err != nil {
		return nil, err
	}
	return records, nil
}

func uploadsFromSql(rows []Upload) ([]common.UploadRecord, error) {
	records := make([]common.UploadRecord, 0, len(rows))
	for _, row := range rows {
		owner, err := common.AddressFromString(row.Owner)
		if err != nil {
			return nil, fmt.Errorf("failed to parse owner of upload %s: %w", row.ID, err)
		}
		records = append(records, common.UploadRecord{
			ID:          row.ID,
			Owner:       owner,
			ContentID:   row.ContentID,
			URL:         row.Url,
			ContentType: row.ContentType,
			Size:        int(row.Size),
			Status:      common.UploadStatus(row.Status),
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return records, nil
}

func (ldb *LedgerDB) RecordCreation(ctx context.Context, rec common.CreationRecord) error {
	defer ldb.trace("RecordCreation")()
	if !validCreationStatus(rec.Status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, rec.Status)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = ldb.now()
	}
	return ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, tq *Queries) error {
		if err := tq.InsertCreation(innerCtx, InsertCreationParams{
			ID:          rec.ID,
			Owner:       rec.Owner.String(),
			Mint:        rec.Mint.String(),
			Signature:   rec.Signature,
			Name:        rec.Name,
			Symbol:      rec.Symbol,
			ImageUrl:    rec.ImageURL,
			MetadataUrl: rec.MetadataURL,
			Status:      string(rec.Status),
			Error:       rec.Error,
			CreatedAt:   rec.CreatedAt.UTC(),
		}); err != nil {
			return fmt.Errorf("failed to insert creation %s: %w", rec.ID, err)
		}
		return nil
	})
}

// Creations returns the token creations of owner, newest first.
func (ldb *LedgerDB) Creations(ctx context.Context, owner common.Address) ([]common.CreationRecord, error) {
	defer ldb.trace("Creations")()
	var records []common.CreationRecord
	if err := ldb.runRetryableTransaction(ctx, func(innerCtx context.Context, tq *Queries) error {
		rows, err := tq.SelectCreationsByOwner(innerCtx, owner.String())
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to select creations: %w", err)
		}
		records = make([]common.CreationRecord, 0, len(rows))
		for _, row := range rows {
			mint, err := common.AddressFromString(row.Mint)
			if err != nil {
				return fmt.Errorf("failed to parse mint of creation %s: %w", row.ID, err)
			}
			records = append(records, common.CreationRecord{
				ID:          row.ID,
				Owner:       owner,
				Mint:        mint,
				Signature:   row.Signature,
				Name:        row.Name,
				Symbol:      row.Symbol,
				ImageURL:    row.ImageUrl,
				MetadataURL: row.MetadataUrl,
				Status:      common.CreationStatus(row.Status),
				Error:       row.Error,
				CreatedAt:   row.CreatedAt.UTC(),
			})
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return records, nil
}

func (ldb *LedgerDB) Close() error {
	return ldb.db.Close()
}
