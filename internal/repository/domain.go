package repository

import (
	"context"

	"github.com/hydrajobs/hydra/internal/domain"
)

type DomainRepository interface {
	Create(ctx context.Context, d *domain.Domain) (*domain.Domain, error)
	GetByName(ctx context.Context, name string) (*domain.Domain, error)
	GetByTokenHash(ctx context.Context, hash string) (*domain.Domain, error)
	Update(ctx context.Context, d *domain.Domain) (*domain.Domain, error)
	SetTokenHash(ctx context.Context, name, hash string) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*domain.Domain, error)
}
