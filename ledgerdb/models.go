package ledgerdb

import (
	"time"
)

type Upload struct {
	ID          string
	Owner       string
	ContentID   string
	Url         string
	ContentType string
	Size        int64
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Creation struct {
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
