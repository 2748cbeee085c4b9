package tokenmanager

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/notify"
	"gitlab.com/scpcorp/spl-token-manager/solana"
)

// Wallet is the connected signer. All signatures come from it.
type Wallet interface {
	Connect(ctx context.Context) (solanago.PublicKey, error)
	Disconnect()
	PublicKey() (solanago.PublicKey, error)
	Balance(ctx context.Context) (uint64, error)
	SendTransaction(ctx context.Context, instructions []solanago.Instruction, extraSigners ...solanago.PrivateKey) (solanago.Signature, error)
}

type Chain interface {
	TokenAccounts(ctx context.Context, owner solanago.PublicKey) ([]solana.TokenAccount, error)
	Mint(ctx context.Context, mint solanago.PublicKey) (*solana.MintInfo, error)
	RentExemptMint(ctx context.Context) (uint64, error)
	Metadata(ctx context.Context, mint solanago.PublicKey) (*solana.TokenMetadata, error)
}

// Storage keeps token images and metadata JSON off-chain.
type Storage interface {
	Quote(ctx context.Context, size int) (common.Quote, error)
	Upload(ctx context.Context, data []byte, contentType string) (common.Upload, error)
}

// Remover is implemented by storage backends that can delete uploads.
type Remover interface {
	Remove(ctx context.Context, id string) error
}

type Ledger interface {
	RecordUpload(ctx context.Context, rec common.UploadRecord) error
	MarkUploads(ctx context.Context, ids []string, status common.UploadStatus) error
	Orphans(ctx context.Context, limit int) ([]common.UploadRecord, error)
	RecordCreation(ctx context.Context, rec common.CreationRecord) error
	Creations(ctx context.Context, owner common.Address) ([]common.CreationRecord, error)
}

type Notifier interface {
	Successf(format string, args ...interface{}) notify.Notification
	Errorf(format string, args ...interface{}) notify.Notification
	Warningf(format string, args ...interface{}) notify.Notification
	Infof(format string, args ...interface{}) notify.Notification
	Since(id uint64) []notify.Notification
}
