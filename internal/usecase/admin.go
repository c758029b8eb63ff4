package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/repository"
)

const domainTokenBytes = 24

// AdminStore is the slice of the coordination store domain management
// needs: membership, token mirrors and worker counts.
type AdminStore interface {
	repository.DomainSet
	repository.WorkerRegistry
	repository.TokenStore
}

// AdminUsecase manages the tenancy lifecycle. Tokens are returned raw
// exactly once, at create or rotate time; everything after that sees
// only the hash.
type AdminUsecase struct {
	domains repository.DomainRepository
	jobs    repository.JobRepository
	runs    repository.RunRepository
	store   AdminStore
}

func NewAdminUsecase(domains repository.DomainRepository, jobs repository.JobRepository, runs repository.RunRepository, store AdminStore) *AdminUsecase {
	return &AdminUsecase{domains: domains, jobs: jobs, runs: runs, store: store}
}

// DomainSummary is one row of the admin domain listing.
type DomainSummary struct {
	Domain  *domain.Domain
	Jobs    int64
	Runs    int64
	Workers int64
}

// CreateDomain provisions a tenant and returns its raw token. The name
// travels inside coordination keys, so separators are rejected.
func (u *AdminUsecase) CreateDomain(ctx context.Context, name, displayName, description string) (*domain.Domain, string, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if err := validateDomainName(name); err != nil {
		return nil, "", err
	}

	token, err := generateToken()
	if err != nil {
		return nil, "", err
	}
	hash := HashToken(token)

	created, err := u.domains.Create(ctx, &domain.Domain{
		Name:        name,
		DisplayName: displayName,
		Description: description,
		TokenHash:   hash,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create domain: %w", err)
	}

	if err := u.store.AddDomain(ctx, created.Name); err != nil {
		return nil, "", fmt.Errorf("register domain: %w", err)
	}
	// Mirror failure only costs a cache miss on the first request.
	_ = u.store.SetDomainHash(ctx, created.Name, hash)

	return created, token, nil
}

// UpdateDomain changes display metadata; the token is untouched.
func (u *AdminUsecase) UpdateDomain(ctx context.Context, name, displayName, description string) (*domain.Domain, error) {
	updated, err := u.domains.Update(ctx, &domain.Domain{
		Name:        name,
		DisplayName: displayName,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("update domain: %w", err)
	}
	return updated, nil
}

// RotateToken issues a fresh token and invalidates the old hash in the
// durable store. Cached reverse lookups of the old token age out within
// the cache TTL.
func (u *AdminUsecase) RotateToken(ctx context.Context, name string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	hash := HashToken(token)

	if err := u.domains.SetTokenHash(ctx, name, hash); err != nil {
		return "", fmt.Errorf("rotate token: %w", err)
	}
	_ = u.store.SetDomainHash(ctx, name, hash)

	return token, nil
}

// DeleteDomain removes the tenant with its definitions and run history.
// Coordination keys are cleaned best effort; orphans expire or sit
// behind a domain no dispatcher scans anymore.
func (u *AdminUsecase) DeleteDomain(ctx context.Context, name string) error {
	if err := u.domains.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if _, err := u.jobs.DeleteByDomain(ctx, name); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	if _, err := u.runs.DeleteByDomain(ctx, name); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}

	_ = u.store.RemoveDomain(ctx, name)
	_ = u.store.DeleteDomainHash(ctx, name)
	_ = u.store.PurgeDomain(ctx, name)

	return nil
}

// ListDomains returns every tenant with its job, run and live worker
// counts.
func (u *AdminUsecase) ListDomains(ctx context.Context) ([]DomainSummary, error) {
	domains, err := u.domains.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}

	summaries := make([]DomainSummary, 0, len(domains))
	for _, d := range domains {
		s := DomainSummary{Domain: d}
		if s.Jobs, err = u.jobs.CountByDomain(ctx, d.Name); err != nil {
			return nil, fmt.Errorf("count jobs for %s: %w", d.Name, err)
		}
		if s.Runs, err = u.runs.CountByDomain(ctx, d.Name); err != nil {
			return nil, fmt.Errorf("count runs for %s: %w", d.Name, err)
		}
		if s.Workers, err = u.store.Count(ctx, d.Name); err != nil {
			return nil, fmt.Errorf("count workers for %s: %w", d.Name, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func generateToken() (string, error) {
	raw := make([]byte, domainTokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

func validateDomainName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrDomainInvalid)
	}
	if strings.ContainsAny(name, ": \t\n") {
		return fmt.Errorf("%w: name must not contain ':' or whitespace", domain.ErrDomainInvalid)
	}
	return nil
}
