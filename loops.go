package tokenmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.com/scpcorp/spl-token-manager/common"
)

func (s *Server) runInALoop(ctx context.Context, name string, interval time.Duration, callback func(ctx context.Context) error) {
	s.stopWg.Add(1)
	ticker := time.NewTicker(interval)

	go func() {
		defer func() {
			ticker.Stop()
			s.stopWg.Done()
		}()
		for {
			select {
			case <-ctx.Done():
				s.log.Infof("%s loop done by context", name)
				return
			case <-ticker.C:
				if err := callback(ctx); err != nil {
					s.log.WithError(err).Errorf("%s callback failed", name)
				}
			}
		}
	}()
}

// sweepOrphans removes uploads left behind by failed creations. Uploads that
// still cannot be removed stay orphaned until the next round.
func (s *Server) sweepOrphans(ctx context.Context, remover Remover) error {
	orphans, err := s.ledger.Orphans(ctx, s.settings.SweepBatch)
	if err != nil {
		return fmt.Errorf("failed to fetch orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}
	var removed []string
	for _, o := range orphans {
		if err := remover.Remove(ctx, o.ContentID); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"upload":  o.ID,
				"content": o.ContentID,
			}).Warn("Failed to remove orphaned upload")
			continue
		}
		removed = append(removed, o.ID)
	}
	if err := s.ledger.MarkUploads(ctx, removed, common.UploadRemoved); err != nil {
		return fmt.Errorf("failed to mark uploads removed: %w", err)
	}
	s.log.Infof("[sweepOrphans]: removed %d/%d orphaned uploads", len(removed), len(orphans))
	return nil
}
