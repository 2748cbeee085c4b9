package solana

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenAccountSize is the size of an SPL token account.
const TokenAccountSize = 165

// TokenAccount is an SPL token account owned by a wallet.
type TokenAccount struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
}

// MintInfo is a decoded mint account. Absent authorities are nil.
type MintInfo struct {
	Decimals        uint8
	Supply          uint64
	MintAuthority   *solana.PublicKey
	FreezeAuthority *solana.PublicKey
}

// Chain reads token state from a cluster.
type Chain struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

func NewChain(config Config) *Chain {
	return &Chain{
		rpc:        rpc.New(config.Cluster.RPC),
		commitment: config.Commitment,
	}
}

// TokenAccounts lists SPL token accounts of owner.
func (c *Chain) TokenAccounts(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error) {
	res, err := c.rpc.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{
			ProgramId: solana.TokenProgramID.ToPointer(),
		},
		&rpc.GetTokenAccountsOpts{
			Commitment: c.commitment,
			Encoding:   solana.EncodingBase64,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("cannot get token accounts: %w", err)
	}
	accounts := make([]TokenAccount, 0, len(res.Value))
	for _, acc := range res.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		decoded, err := DecodeTokenAccount(acc.Pubkey, acc.Account.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("cannot decode token account %s: %w", acc.Pubkey, err)
		}
		accounts = append(accounts, decoded)
	}
	return accounts, nil
}

// Mint fetches and decodes a mint account.
func (c *Chain) Mint(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, mint, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("cannot get mint account: %w", err)
	}
	if !res.Value.Owner.Equals(solana.TokenProgramID) {
		return nil, ErrNotTokenAccount
	}
	return DecodeMint(res.GetBinary())
}

// RentExemptMint returns minimal balance of a mint account.
func (c *Chain) RentExemptMint(ctx context.Context) (uint64, error) {
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, MintSize, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("cannot get rent exemption: %w", err)
	}
	return lamports, nil
}

// Metadata returns the metadata account of mint or ErrAccountNotFound.
func (c *Chain) Metadata(ctx context.Context, mint solana.PublicKey) (*TokenMetadata, error) {
	metadataAddr, err := MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, metadataAddr, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("cannot get metadata account: %w", err)
	}
	if !res.Value.Owner.Equals(solana.TokenMetadataProgramID) {
		return nil, ErrAccountNotFound
	}
	return DecodeMetadata(res.GetBinary())
}

// DecodeTokenAccount decodes raw data of an SPL token account at address.
func DecodeTokenAccount(address solana.PublicKey, data []byte) (TokenAccount, error) {
	if len(data) != TokenAccountSize {
		return TokenAccount{}, fmt.Errorf("%w: size %d", ErrNotTokenAccount, len(data))
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return TokenAccount{}, fmt.Errorf("cannot decode token account: %w", err)
	}
	return TokenAccount{
		Address: address,
		Mint:    acc.Mint,
		Owner:   acc.Owner,
		Amount:  acc.Amount,
	}, nil
}

// DecodeMint decodes raw data of an SPL token mint.
func DecodeMint(data []byte) (*MintInfo, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: size %d", ErrNotTokenAccount, len(data))
	}
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, fmt.Errorf("cannot decode mint: %w", err)
	}
	if !mint.IsInitialized {
		return nil, ErrUninitializedState
	}
	return &MintInfo{
		Decimals:        mint.Decimals,
		Supply:          mint.Supply,
		MintAuthority:   mint.MintAuthority,
		FreezeAuthority: mint.FreezeAuthority,
	}, nil
}
