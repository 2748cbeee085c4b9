package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// MintSize is the size of an SPL token mint account.
const MintSize = token.MINT_SIZE

// MaxDecimals is the largest number of decimals accepted for a new token.
const MaxDecimals = 9

// CreateTokenParams describes a new fungible token.
type CreateTokenParams struct {
	// Wallet pays fees and rent and receives mint and freeze authorities.
	Wallet solana.PublicKey

	// Mint is the fresh mint account. It must sign the transaction.
	Mint solana.PublicKey

	// Rent-exempt minimum for a mint account, see Chain.RentExemptMint.
	RentLamports uint64

	Decimals uint8

	// RawSupply is the initial supply in raw units (UI supply * 10^Decimals).
	RawSupply uint64

	Name   string
	Symbol string

	// MetadataURL points to the uploaded metadata JSON.
	MetadataURL string
}

func (p CreateTokenParams) validate() error {
	if p.Wallet.IsZero() || p.Mint.IsZero() {
		return fmt.Errorf("wallet and mint are required")
	}
	if p.Decimals > MaxDecimals {
		return fmt.Errorf("decimals %d exceed %d", p.Decimals, MaxDecimals)
	}
	if len(p.Name) > MaxNameLength {
		return fmt.Errorf("name is longer than %d bytes", MaxNameLength)
	}
	if len(p.Symbol) > MaxSymbolLength {
		return fmt.Errorf("symbol is longer than %d bytes", MaxSymbolLength)
	}
	if len(p.MetadataURL) > MaxURILength {
		return fmt.Errorf("metadata url is longer than %d bytes", MaxURILength)
	}
	return nil
}

// CreateTokenInstructions returns the five instructions creating a token:
// mint account allocation, mint initialization, wallet's associated token
// account, initial supply mint and metadata account.
func CreateTokenInstructions(p CreateTokenParams) ([]solana.Instruction, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	ataAddr, err := AssociatedTokenAddress(p.Wallet, p.Mint)
	if err != nil {
		return nil, err
	}
	metadataAddr, err := MetadataAddress(p.Mint)
	if err != nil {
		return nil, err
	}

	return []solana.Instruction{
		system.NewCreateAccountInstruction(
			p.RentLamports,
			MintSize,
			solana.TokenProgramID,
			p.Wallet,
			p.Mint,
		).Build(),
		token.NewInitializeMintInstruction(
			p.Decimals,
			p.Wallet,
			p.Wallet,
			p.Mint,
			solana.SysVarRentPubkey,
		).Build(),
		associatedtokenaccount.NewCreateInstruction(
			p.Wallet,
			p.Wallet,
			p.Mint,
		).Build(),
		token.NewMintToInstruction(
			p.RawSupply,
			p.Mint,
			ataAddr,
			p.Wallet,
			nil,
		).Build(),
		createMetadataInstruction(metadataAddr, p.Mint, p.Wallet, p.Name, p.Symbol, p.MetadataURL),
	}, nil
}

// UpdateMetadataInstruction replaces name, symbol and uri of the mint's
// metadata. The update authority stays unchanged.
func UpdateMetadataInstruction(mint, authority solana.PublicKey, name, symbol, uri string) (solana.Instruction, error) {
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("name is longer than %d bytes", MaxNameLength)
	}
	if len(symbol) > MaxSymbolLength {
		return nil, fmt.Errorf("symbol is longer than %d bytes", MaxSymbolLength)
	}
	if len(uri) > MaxURILength {
		return nil, fmt.Errorf("uri is longer than %d bytes", MaxURILength)
	}
	metadataAddr, err := MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	return updateMetadataInstruction(metadataAddr, authority, name, symbol, uri), nil
}

// BurnInstruction burns rawAmount from the owner's associated token account.
func BurnInstruction(owner, mint solana.PublicKey, rawAmount uint64, decimals uint8) (solana.Instruction, error) {
	ataAddr, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}
	return token.NewBurnCheckedInstruction(
		rawAmount,
		decimals,
		ataAddr,
		mint,
		owner,
		nil,
	).Build(), nil
}

// RevokeInstruction sets the given authority of mint to none.
func RevokeInstruction(mint, currentAuthority solana.PublicKey, kind AuthorityType) (solana.Instruction, error) {
	var authorityType token.AuthorityType
	switch kind {
	case MintAuthorityType:
		authorityType = token.AuthorityMintTokens
	case FreezeAuthorityType:
		authorityType = token.AuthorityFreezeAccount
	default:
		return nil, fmt.Errorf("unsupported authority type %d", kind)
	}
	// NewAuthority is left unset, which encodes None.
	return token.NewSetAuthorityInstructionBuilder().
		SetAuthorityType(authorityType).
		SetSubjectAccount(mint).
		SetAuthorityAccount(currentAuthority).
		Build(), nil
}

// AssociatedTokenAddress derives the associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ataAddr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot find ata: %w", err)
	}
	return ataAddr, nil
}

type AuthorityType int

const (
	MintAuthorityType AuthorityType = iota
	FreezeAuthorityType
)

func (t AuthorityType) String() string {
	switch t {
	case MintAuthorityType:
		return "mint"
	case FreezeAuthorityType:
		return "freeze"
	}
	return fmt.Sprintf("AuthorityType(%d)", int(t))
}

func programsOf(instructions []solana.Instruction) []solana.PublicKey {
	programs := make([]solana.PublicKey, 0, len(instructions))
	for _, instruction := range instructions {
		programs = append(programs, instruction.ProgramID())
	}
	return programs
}
