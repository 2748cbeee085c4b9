package solana

import (
	"fmt"
	"strings"

	sdkcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/metaplex/token_metadata"
	sdktypes "github.com/blocto/solana-go-sdk/types"
	"github.com/gagliardetto/solana-go"
)

// Limits enforced by the token metadata program.
const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200
)

// TokenMetadata is the decoded metadata account of a mint.
type TokenMetadata struct {
	Mint            solana.PublicKey
	UpdateAuthority solana.PublicKey
	Name            string
	Symbol          string
	URI             string
	IsMutable       bool
}

// MetadataAddress derives the metadata account of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindTokenMetadataAddress(mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("cannot derive metadata address: %w", err)
	}
	return addr, nil
}

// DecodeMetadata parses raw data of a metadata account.
func DecodeMetadata(data []byte) (*TokenMetadata, error) {
	md, err := token_metadata.MetadataDeserialize(data)
	if err != nil {
		return nil, fmt.Errorf("cannot deserialize metadata: %w", err)
	}
	return &TokenMetadata{
		Mint:            fromSDKKey(md.Mint),
		UpdateAuthority: fromSDKKey(md.UpdateAuthority),
		Name:            trimPadding(md.Data.Name),
		Symbol:          trimPadding(md.Data.Symbol),
		URI:             trimPadding(md.Data.Uri),
		IsMutable:       md.IsMutable,
	}, nil
}

// Fixed-size fields are padded with NUL bytes on chain.
func trimPadding(s string) string {
	return strings.TrimRight(s, "\x00")
}

func createMetadataInstruction(metadata, mint, authority solana.PublicKey, name, symbol, uri string) solana.Instruction {
	return fromSDKInstruction(token_metadata.CreateMetadataAccountV3(token_metadata.CreateMetadataAccountV3Param{
		Metadata:                toSDKKey(metadata),
		Mint:                    toSDKKey(mint),
		MintAuthority:           toSDKKey(authority),
		Payer:                   toSDKKey(authority),
		UpdateAuthority:         toSDKKey(authority),
		UpdateAuthorityIsSigner: true,
		IsMutable:               true,
		Data: token_metadata.DataV2{
			Name:                 name,
			Symbol:               symbol,
			Uri:                  uri,
			SellerFeeBasisPoints: 0,
		},
	}))
}

func updateMetadataInstruction(metadata, authority solana.PublicKey, name, symbol, uri string) solana.Instruction {
	primarySaleHappened := true
	isMutable := true
	return fromSDKInstruction(token_metadata.UpdateMetadataAccountV2(token_metadata.UpdateMetadataAccountV2Param{
		MetadataAccount: toSDKKey(metadata),
		UpdateAuthority: toSDKKey(authority),
		Data: &token_metadata.DataV2{
			Name:                 name,
			Symbol:               symbol,
			Uri:                  uri,
			SellerFeeBasisPoints: 0,
		},
		PrimarySaleHappened: &primarySaleHappened,
		IsMutable:           &isMutable,
	}))
}

func toSDKKey(key solana.PublicKey) sdkcommon.PublicKey {
	return sdkcommon.PublicKeyFromBytes(key[:])
}

func fromSDKKey(key sdkcommon.PublicKey) solana.PublicKey {
	return solana.PublicKeyFromBytes(key.Bytes())
}

func fromSDKInstruction(instruction sdktypes.Instruction) solana.Instruction {
	accounts := make(solana.AccountMetaSlice, 0, len(instruction.Accounts))
	for _, acc := range instruction.Accounts {
		accounts = append(accounts, &solana.AccountMeta{
			PublicKey:  fromSDKKey(acc.PubKey),
			IsSigner:   acc.IsSigner,
			IsWritable: acc.IsWritable,
		})
	}
	return solana.NewInstruction(fromSDKKey(instruction.ProgramID), accounts, instruction.Data)
}
