package ledgerdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

const insertUpload = `
INSERT INTO uploads (id, owner, content_id, url, content_type, size, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
`

type InsertUploadParams struct {
	ID          string
	Owner       string
	ContentID   string
	Url         string
	ContentType string
	Size        int64
	Status      string
	CreatedAt   time.Time
}

func (q *Queries) InsertUpload(ctx context.Context, arg InsertUploadParams) error {
	_, err := q.db.ExecContext(ctx, insertUpload,
		arg.ID,
		arg.Owner,
		arg.ContentID,
		arg.Url,
		arg.ContentType,
		arg.Size,
		arg.Status,
		arg.CreatedAt,
	)
	return err
}

const updateUploadStatus = `
UPDATE uploads SET status = $1, updated_at = $2
WHERE id = ANY($3::text[]) AND status <> 'removed'
`

type UpdateUploadStatusParams struct {
	Status    string
	UpdatedAt time.Time
	Ids       []string
}

func (q *Queries) UpdateUploadStatus(ctx context.Context, arg UpdateUploadStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateUploadStatus, arg.Status, arg.UpdatedAt, pq.Array(arg.Ids))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const selectUploadsByStatus = `
SELECT id, owner, content_id, url, content_type, size, status, created_at, updated_at
FROM uploads
WHERE status = $1
ORDER BY created_at
LIMIT $2
`

type SelectUploadsByStatusParams struct {
	Status string
	Limit  int32
}

func (q *Queries) SelectUploadsByStatus(ctx context.Context, arg SelectUploadsByStatusParams) ([]Upload, error) {
	rows, err := q.db.QueryContext(ctx, selectUploadsByStatus, arg.Status, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Upload
	for rows.Next() {
		var i Upload
		if err := rows.Scan(
			&i.ID,
			&i.Owner,
			&i.ContentID,
			&i.Url,
			&i.ContentType,
			&i.Size,
			&i.Status,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertCreation = `
INSERT INTO creations (id, owner, mint, signature, name, symbol, image_url, metadata_url, status, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

type InsertCreationParams struct {
	ID          string
	Owner       string
	Mint        string
	Signature   string
	Name        string
	Symbol      string
	ImageUrl    string
	MetadataUrl string
	Status      string
	Error       string
	CreatedAt   time.Time
}

func (q *Queries) InsertCreation(ctx context.Context, arg InsertCreationParams) error {
	_, err := q.db.ExecContext(ctx, insertCreation,
		arg.ID,
		arg.Owner,
		arg.Mint,
		arg.Signature,
		arg.Name,
		arg.Symbol,
		arg.ImageUrl,
		arg.MetadataUrl,
		arg.Status,
		arg.Error,
		arg.CreatedAt,
	)
	return err
}

const selectCreationsByOwner = `
SELECT id, owner, mint, signature, name, symbol, image_url, metadata_url, status, error, created_at
FROM creations
WHERE owner = $1
ORDER BY created_at DESC
`

func (q *Queries) SelectCreationsByOwner(ctx context.Context, owner string) ([]Creation, error) {
	rows, err := q.db.QueryContext(ctx, selectCreationsByOwner, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Creation
	for rows.Next() {
		var i Creation
		if err := rows.Scan(
			&i.ID,
			&i.Owner,
			&i.Mint,
			&i.Signature,
			&i.Name,
			&i.Symbol,
			&i.ImageUrl,
			&i.MetadataUrl,
			&i.Status,
			&i.Error,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
