package common

import (
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

const AddrLen = 32

// Address is a base58 encoded ed25519 public key as it travels through the API.
type Address [AddrLen]byte

func AddressFromString(addrStr string) (addr Address, err error) {
	val, err := base58.Decode(addrStr)
	if err != nil {
		return addr, fmt.Errorf("decode: %w", err)
	}
	if len(val) != AddrLen {
		return addr, fmt.Errorf("invalid length, expected %v, got %d", AddrLen, len(val))
	}
	copy(addr[:], val)
	return
}

func (addr Address) String() string {
	return base58.Encode(addr[:])
}

func (addr Address) IsZero() bool {
	return addr == Address{}
}

func (addr Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

func (addr *Address) UnmarshalText(text []byte) error {
	parsed, err := AddressFromString(string(text))
	if err != nil {
		return err
	}
	*addr = parsed
	return nil
}

type AuthorityKind string

const (
	MintAuthority   AuthorityKind = "mint"
	FreezeAuthority AuthorityKind = "freeze"
)

func (k AuthorityKind) Valid() bool {
	return k == MintAuthority || k == FreezeAuthority
}

// TokenReference is a wallet's holding of one mint, decoded from its token account.
type TokenReference struct {
	Mint     Address `json:"mint"`
	Account  Address `json:"account"`
	Amount   uint64  `json:"amount"`
	Decimals uint8   `json:"decimals"`
	UIAmount string  `json:"ui_amount"`
	Name     string  `json:"name,omitempty"`
	Symbol   string  `json:"symbol,omitempty"`
}

// Upload identifies an object stored off-chain.
type Upload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Quote is the storage price of a payload together with the balance already
// loaded on the storage node, both in lamports.
type Quote struct {
	Price   uint64 `json:"price"`
	Balance uint64 `json:"balance"`
}

type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadLinked   UploadStatus = "linked"
	UploadOrphaned UploadStatus = "orphaned"
	UploadRemoved  UploadStatus = "removed"
)

type UploadRecord struct {
	ID          string       `json:"id"`
	Owner       Address      `json:"owner"`
	ContentID   string       `json:"content_id"`
	URL         string       `json:"url"`
	ContentType string       `json:"content_type"`
	Size        int          `json:"size"`
	Status      UploadStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

type CreationStatus string

const (
	CreationConfirmed CreationStatus = "confirmed"
	CreationFailed    CreationStatus = "failed"
)

type CreationRecord struct {
	ID          string         `json:"id"`
	Owner       Address        `json:"owner"`
	Mint        Address        `json:"mint"`
	Signature   string         `json:"signature"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	ImageURL    string         `json:"image_url"`
	MetadataURL string         `json:"metadata_url"`
	Status      CreationStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
