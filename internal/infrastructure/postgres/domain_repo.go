package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hydrajobs/hydra/internal/domain"
)

const domainColumns = `name, display_name, description, token_hash, created_at, updated_at`

type DomainRepository struct {
	pool *pgxpool.Pool
}

func NewDomainRepository(pool *pgxpool.Pool) *DomainRepository {
	return &DomainRepository{pool: pool}
}

func (r *DomainRepository) Create(ctx context.Context, d *domain.Domain) (*domain.Domain, error) {
	query := `
		INSERT INTO domains (name, display_name, description, token_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + domainColumns

	row := r.pool.QueryRow(ctx, query, d.Name, d.DisplayName, d.Description, d.TokenHash)
	created, err := scanDomain(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDomainExists
		}
		return nil, err
	}
	return created, nil
}

func (r *DomainRepository) GetByName(ctx context.Context, name string) (*domain.Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE name = $1`
	return scanDomain(r.pool.QueryRow(ctx, query, name))
}

func (r *DomainRepository) GetByTokenHash(ctx context.Context, hash string) (*domain.Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE token_hash = $1 AND token_hash <> ''`
	return scanDomain(r.pool.QueryRow(ctx, query, hash))
}

func (r *DomainRepository) Update(ctx context.Context, d *domain.Domain) (*domain.Domain, error) {
	query := `
		UPDATE domains
		SET    display_name = $2, description = $3, updated_at = NOW()
		WHERE  name = $1
		RETURNING ` + domainColumns

	return scanDomain(r.pool.QueryRow(ctx, query, d.Name, d.DisplayName, d.Description))
}

func (r *DomainRepository) SetTokenHash(ctx context.Context, name, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE domains SET token_hash = $2, updated_at = NOW() WHERE name = $1`, name, hash)
	if err != nil {
		return fmt.Errorf("set token hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDomainNotFound
	}
	return nil
}

func (r *DomainRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM domains WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete domain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDomainNotFound
	}
	return nil
}

func (r *DomainRepository) List(ctx context.Context) ([]*domain.Domain, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+domainColumns+` FROM domains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []*domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return domains, nil
}

func scanDomain(row pgx.Row) (*domain.Domain, error) {
	var d domain.Domain
	err := row.Scan(&d.Name, &d.DisplayName, &d.Description, &d.TokenHash, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDomainNotFound
		}
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	return &d, nil
}
