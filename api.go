package tokenmanager

//go:generate go run ./gen/...

import (
	"context"
	"fmt"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/notify"
)

type Service interface {
	Connect(ctx context.Context, req *ConnectRequest) (*ConnectResponse, error)
	Disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectResponse, error)
	Wallet(ctx context.Context, req *WalletRequest) (*WalletResponse, error)
	StorageQuote(ctx context.Context, req *StorageQuoteRequest) (*StorageQuoteResponse, error)
	CreateToken(ctx context.Context, req *CreateTokenRequest) (*CreateTokenResponse, error)
	ListTokens(ctx context.Context, req *ListTokensRequest) (*ListTokensResponse, error)
	SelectToken(ctx context.Context, req *SelectTokenRequest) (*SelectTokenResponse, error)
	UpdateMetadata(ctx context.Context, req *UpdateMetadataRequest) (*UpdateMetadataResponse, error)
	BurnTokens(ctx context.Context, req *BurnTokensRequest) (*BurnTokensResponse, error)
	ListAuthorities(ctx context.Context, req *ListAuthoritiesRequest) (*ListAuthoritiesResponse, error)
	RevokeAuthority(ctx context.Context, req *RevokeAuthorityRequest) (*RevokeAuthorityResponse, error)
	Notifications(ctx context.Context, req *NotificationsRequest) (*NotificationsResponse, error)
	History(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error)
}

type ConnectRequest struct {
}

type ConnectResponse struct {
	Address common.Address          `json:"address"`
	Balance uint64                  `json:"balance"`
	Tokens  []common.TokenReference `json:"tokens"`
}

type DisconnectRequest struct {
}

type DisconnectResponse struct {
}

type WalletRequest struct {
}

type WalletResponse struct {
	Connected bool           `json:"connected"`
	Address   common.Address `json:"address"`
	// Balance is in lamports, UIBalance in SOL.
	Balance   uint64 `json:"balance"`
	UIBalance string `json:"ui_balance"`
}

type StorageQuoteRequest struct {
	Size int `json:"size"`
}

type StorageQuoteResponse struct {
	Price   uint64 `json:"price"`
	Balance uint64 `json:"balance"`
}

// CreateTokenRequest is the token creation form. Decimals and Supply are kept
// as entered so that an empty field can be told apart from zero.
type CreateTokenRequest struct {
	Name             string `json:"name"`
	Symbol           string `json:"symbol"`
	Decimals         string `json:"decimals"`
	Supply           string `json:"supply"`
	Description      string `json:"description"`
	Image            []byte `json:"image"`
	ImageContentType string `json:"image_content_type,omitempty"`
}

type CreateTokenResponse struct {
	Mint        common.Address `json:"mint"`
	Signature   string         `json:"signature"`
	ImageURL    string         `json:"image_url"`
	MetadataURL string         `json:"metadata_url"`
}

type ListTokensRequest struct {
}

type ListTokensResponse struct {
	Tokens []common.TokenReference `json:"tokens"`
}

type SelectTokenRequest struct {
	Mint common.Address `json:"mint"`
}

type SelectTokenResponse struct {
	Token common.TokenReference `json:"token"`
}

type UpdateMetadataRequest struct {
	Mint   common.Address `json:"mint"`
	Name   string         `json:"name"`
	Symbol string         `json:"symbol"`
	URL    string         `json:"url"`
}

type UpdateMetadataResponse struct {
	Signature string `json:"signature"`
}

type BurnTokensRequest struct {
	Mint   common.Address `json:"mint"`
	Amount string         `json:"amount"`
}

type BurnTokensResponse struct {
	Signature string                `json:"signature"`
	Token     common.TokenReference `json:"token"`
}

type ListAuthoritiesRequest struct {
}

type ListAuthoritiesResponse struct {
	MintAuthority   []common.Address `json:"mint_authority"`
	FreezeAuthority []common.Address `json:"freeze_authority"`
}

type RevokeAuthorityRequest struct {
	Mint common.Address       `json:"mint"`
	Kind common.AuthorityKind `json:"kind"`
}

type RevokeAuthorityResponse struct {
	Signature       string `json:"signature,omitempty"`
	AlreadyDisabled bool   `json:"already_disabled"`
}

type NotificationsRequest struct {
	// After is the last notification ID the caller has seen.
	After uint64 `json:"after"`
}

type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

type HistoryRequest struct {
}

type HistoryResponse struct {
	Creations []common.CreationRecord `json:"creations"`
}

// Error is returned when a flow fails after validation. The cause stays
// reachable through errors.Is and errors.As inside the process.
type Error struct {
	Msg string

	cause error
}

func (err Error) Error() string {
	return err.Msg
}

func (err Error) Unwrap() error {
	return err.cause
}

func newError(cause error) Error {
	return Error{Msg: cause.Error(), cause: cause}
}

// ValidationError is returned when the form is incomplete or malformed.
// Nothing was uploaded or submitted.
type ValidationError struct {
	Msg string
}

func (err ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", err.Msg)
}
