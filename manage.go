package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	solanago "github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/solana"
)

func (s *Server) ListTokens(ctx context.Context, req *ListTokensRequest) (*ListTokensResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, s.fail("list tokens", err)
	}
	cache, err := s.refreshTokens(ctx, owner)
	if err != nil {
		return nil, s.fail("list tokens", err)
	}
	return &ListTokensResponse{Tokens: cache.tokens}, nil
}

func (s *Server) SelectToken(ctx context.Context, req *SelectTokenRequest) (*SelectTokenResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	if req.Mint.IsZero() {
		return nil, s.invalid("Select a token")
	}
	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, s.fail("select token", err)
	}
	ref, err := s.heldTokenOrInvalid(ctx, owner, req.Mint)
	if err != nil {
		return nil, s.fail("select token", err)
	}
	return &SelectTokenResponse{Token: ref}, nil
}

var errTokenNotHeld = errors.New("token is not held by the wallet")

// heldToken returns the cached reference of mint.
func (s *Server) heldToken(ctx context.Context, owner solanago.PublicKey, mint common.Address) (common.TokenReference, *solana.MintInfo, error) {
	cache, err := s.cachedTokens(ctx, owner)
	if err != nil {
		return common.TokenReference{}, nil, err
	}
	i, has := cache.byMint[mint]
	if !has {
		return common.TokenReference{}, nil, errTokenNotHeld
	}
	return cache.tokens[i], cache.mints[mint], nil
}

func (s *Server) heldTokenOrInvalid(ctx context.Context, owner solanago.PublicKey, mint common.Address) (common.TokenReference, error) {
	ref, _, err := s.heldToken(ctx, owner, mint)
	if errors.Is(err, errTokenNotHeld) {
		return ref, s.invalid(fmt.Sprintf("Token %s is not held by the wallet", mint))
	}
	return ref, err
}

func (s *Server) UpdateMetadata(ctx context.Context, req *UpdateMetadataRequest) (*UpdateMetadataResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	name := strings.TrimSpace(req.Name)
	symbol := strings.TrimSpace(req.Symbol)
	uri := strings.TrimSpace(req.URL)
	if req.Mint.IsZero() || name == "" || symbol == "" || uri == "" {
		return nil, s.invalid("Fill all fields!")
	}
	switch {
	case len(name) > solana.MaxNameLength:
		return nil, s.invalid(fmt.Sprintf("Name must be at most %d bytes", solana.MaxNameLength))
	case len(symbol) > solana.MaxSymbolLength:
		return nil, s.invalid(fmt.Sprintf("Symbol must be at most %d bytes", solana.MaxSymbolLength))
	case len(uri) > solana.MaxURILength:
		return nil, s.invalid(fmt.Sprintf("URL must be at most %d bytes", solana.MaxURILength))
	}

	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, s.fail("update metadata", err)
	}
	mint := solanago.PublicKey(req.Mint)
	current, err := s.chain.Metadata(ctx, mint)
	if err != nil {
		if errors.Is(err, solana.ErrAccountNotFound) {
			err = fmt.Errorf("token %s has no metadata: %w", mint, err)
		}
		return nil, s.fail("update metadata", err)
	}
	if !current.UpdateAuthority.Equals(owner) {
		return nil, s.fail("update metadata", fmt.Errorf("update authority is %s: %w", current.UpdateAuthority, solana.ErrNotAuthority))
	}
	if !current.IsMutable {
		return nil, s.fail("update metadata", fmt.Errorf("metadata of %s is immutable", mint))
	}

	instruction, err := solana.UpdateMetadataInstruction(mint, owner, name, symbol, uri)
	if err != nil {
		return nil, s.fail("update metadata", err)
	}
	sig, err := s.wallet.SendTransaction(ctx, []solanago.Instruction{instruction})
	if err != nil {
		return nil, s.fail("update metadata", err)
	}
	s.feed.Successf("Successfully Updated!")
	s.refreshAfterFlow(ctx, owner)
	return &UpdateMetadataResponse{Signature: sig.String()}, nil
}

func (s *Server) BurnTokens(ctx context.Context, req *BurnTokensRequest) (*BurnTokensResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	if req.Mint.IsZero() || strings.TrimSpace(req.Amount) == "" {
		return nil, s.invalid("Fill all fields!")
	}
	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, s.fail("burn", err)
	}
	ref, err := s.heldTokenOrInvalid(ctx, owner, req.Mint)
	if err != nil {
		return nil, s.fail("burn", err)
	}
	mint := solanago.PublicKey(req.Mint)
	// Burns always spend from the associated token account.
	ata, err := solana.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, s.fail("burn", err)
	}
	if !ata.Equals(solanago.PublicKey(ref.Account)) {
		return nil, s.invalid(fmt.Sprintf("Token %s is not held in the associated token account", req.Mint))
	}
	raw, err := common.ParseUIAmount(req.Amount, ref.Decimals)
	if err != nil {
		return nil, s.invalid(fmt.Sprintf("Invalid burn amount: %v", err))
	}
	if raw > ref.Amount {
		return nil, s.invalid("Burn amount exceeds balance")
	}

	instruction, err := solana.BurnInstruction(owner, mint, raw, ref.Decimals)
	if err != nil {
		return nil, s.fail("burn", err)
	}
	sig, err := s.wallet.SendTransaction(ctx, []solanago.Instruction{instruction})
	if err != nil {
		return nil, s.fail("burn", err)
	}
	s.feed.Successf("Successfully Burned")
	s.refreshAfterFlow(ctx, owner)

	res := &BurnTokensResponse{Signature: sig.String(), Token: ref}
	if updated, _, err := s.heldToken(ctx, owner, req.Mint); err == nil {
		res.Token = updated
	} else {
		// The account may be gone after burning everything.
		res.Token.Amount = ref.Amount - raw
		res.Token.UIAmount = common.FormatUIAmount(res.Token.Amount, ref.Decimals)
	}
	return res, nil
}
