package ledgerdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gitlab.com/scpcorp/spl-token-manager/common"
)

// Memory is a ledger kept in process memory, used when no database is
// configured. Contents are lost on restart.
type Memory struct {
	mu        sync.Mutex
	uploads   map[string]common.UploadRecord
	creations []common.CreationRecord
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		uploads: make(map[string]common.UploadRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) RecordUpload(ctx context.Context, rec common.UploadRecord) error {
	if !validUploadStatus(rec.Status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, rec.Status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, has := m.uploads[rec.ID]; has {
		return fmt.Errorf("upload %s already recorded", rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	m.uploads[rec.ID] = rec
	return nil
}

func (m *Memory) MarkUploads(ctx context.Context, ids []string, status common.UploadStatus) error {
	if !validUploadStatus(status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		rec, has := m.uploads[id]
		if !has || rec.Status == common.UploadRemoved {
			continue
		}
		rec.Status = status
		m.uploads[id] = rec
	}
	return nil
}

func (m *Memory) Orphans(ctx context.Context, limit int) ([]common.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orphans []common.UploadRecord
	for _, rec := range m.uploads {
		if rec.Status == common.UploadOrphaned {
			orphans = append(orphans, rec)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		if orphans[i].CreatedAt.Equal(orphans[j].CreatedAt) {
			return orphans[i].ID < orphans[j].ID
		}
		return orphans[i].CreatedAt.Before(orphans[j].CreatedAt)
	})
	if limit > 0 && len(orphans) > limit {
		orphans = orphans[:limit]
	}
	return orphans, nil
}

func (m *Memory) RecordCreation(ctx context.Context, rec common.CreationRecord) error {
	if !validCreationStatus(rec.Status) {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, rec.Status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	m.creations = append(m.creations, rec)
	return nil
}

func (m *Memory) Creations(ctx context.Context, owner common.Address) ([]common.CreationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := []common.CreationRecord{}
	for i := len(m.creations) - 1; i >= 0; i-- {
		if m.creations[i].Owner == owner {
			records = append(records, m.creations[i])
		}
	}
	return records, nil
}

func (m *Memory) Close() error {
	return nil
}
