package usecase

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/repository"
)

const tokenCacheTTL = 5 * time.Minute

// Identity is the resolved caller of one request.
type Identity struct {
	Domain string
	Admin  bool
}

// TokenResolver maps raw API tokens to domains. Raw tokens never touch
// storage; only SHA-256 hex digests are compared and cached.
type TokenResolver struct {
	domains     repository.DomainRepository
	tokens      repository.TokenStore
	adminHash   string
	adminDomain string
}

func NewTokenResolver(domains repository.DomainRepository, tokens repository.TokenStore, adminToken, adminDomain string) *TokenResolver {
	r := &TokenResolver{domains: domains, tokens: tokens, adminDomain: adminDomain}
	if adminToken != "" {
		r.adminHash = HashToken(adminToken)
	}
	return r
}

// HashToken returns the SHA-256 hex digest stored and compared wherever
// a raw token would otherwise travel.
func HashToken(raw string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(raw)))
}

// Resolve turns a raw token into an identity. The admin token may act
// on any domain through the override; domain tokens go through the
// reverse cache first and fall back to the durable store, warming both
// cache directions on a hit.
func (r *TokenResolver) Resolve(ctx context.Context, rawToken, domainOverride string) (Identity, error) {
	hash := HashToken(rawToken)

	if r.adminHash != "" && hash == r.adminHash {
		dom := r.adminDomain
		if domainOverride != "" {
			dom = domainOverride
		}
		return Identity{Domain: dom, Admin: true}, nil
	}

	if dom, err := r.tokens.CacheLookup(ctx, hash); err == nil && dom != "" {
		return Identity{Domain: dom}, nil
	}

	d, err := r.domains.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrDomainNotFound) {
			return Identity{}, domain.ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("resolve token: %w", err)
	}

	// Best effort: auth still works off the durable store when the
	// coordination store is unavailable.
	_ = r.tokens.CacheStore(ctx, hash, d.Name, tokenCacheTTL)
	_ = r.tokens.SetDomainHash(ctx, d.Name, hash)

	return Identity{Domain: d.Name}, nil
}
