package tokenmanager

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"gitlab.com/scpcorp/spl-token-manager/common"
	"gitlab.com/scpcorp/spl-token-manager/solana"
)

var alreadyDisabled = map[common.AuthorityKind]string{
	common.MintAuthority:   "Minting is already disabled or there is no authority.",
	common.FreezeAuthority: "Freeze account is already disabled or there is no authority.",
}

// ListAuthorities returns mints held by the wallet whose mint or freeze
// authority is the wallet.
func (s *Server) ListAuthorities(ctx context.Context, req *ListAuthoritiesRequest) (*ListAuthoritiesResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, s.fail("list authorities", err)
	}
	cache, err := s.refreshTokens(ctx, owner)
	if err != nil {
		return nil, s.fail("list authorities", err)
	}
	res := &ListAuthoritiesResponse{
		MintAuthority:   []common.Address{},
		FreezeAuthority: []common.Address{},
	}
	for _, ref := range cache.tokens {
		info := cache.mints[ref.Mint]
		if info.MintAuthority != nil && info.MintAuthority.Equals(owner) {
			res.MintAuthority = append(res.MintAuthority, ref.Mint)
		}
		if info.FreezeAuthority != nil && info.FreezeAuthority.Equals(owner) {
			res.FreezeAuthority = append(res.FreezeAuthority, ref.Mint)
		}
	}
	return res, nil
}

func authorityOf(info *solana.MintInfo, kind common.AuthorityKind) (*solanago.PublicKey, solana.AuthorityType) {
	if kind == common.FreezeAuthority {
		return info.FreezeAuthority, solana.FreezeAuthorityType
	}
	return info.MintAuthority, solana.MintAuthorityType
}

// RevokeAuthority permanently sets the mint or freeze authority of a mint to
// none. An authority that is already absent is reported, not submitted.
func (s *Server) RevokeAuthority(ctx context.Context, req *RevokeAuthorityRequest) (*RevokeAuthorityResponse, error) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()

	if req.Mint.IsZero() {
		return nil, s.invalid("Select a token")
	}
	if !req.Kind.Valid() {
		return nil, s.invalid(fmt.Sprintf("Unknown authority %q", req.Kind))
	}
	owner, err := s.wallet.PublicKey()
	if err != nil {
		return nil, s.fail("revoke", err)
	}
	mint := solanago.PublicKey(req.Mint)
	info, err := s.chain.Mint(ctx, mint)
	if err != nil {
		return nil, s.fail("revoke", err)
	}
	authority, authorityType := authorityOf(info, req.Kind)
	if authority == nil {
		s.feed.Infof("%s", alreadyDisabled[req.Kind])
		return &RevokeAuthorityResponse{AlreadyDisabled: true}, nil
	}
	if !authority.Equals(owner) {
		return nil, s.fail("revoke", fmt.Errorf("%s authority of %s is %s: %w", req.Kind, mint, authority, solana.ErrNotAuthority))
	}

	instruction, err := solana.RevokeInstruction(mint, owner, authorityType)
	if err != nil {
		return nil, s.fail("revoke", err)
	}
	sig, err := s.wallet.SendTransaction(ctx, []solanago.Instruction{instruction})
	if err != nil {
		return nil, s.fail("revoke", err)
	}
	s.feed.Successf("Successfully Revoked")
	s.refreshAfterFlow(ctx, owner)
	return &RevokeAuthorityResponse{Signature: sig.String()}, nil
}
