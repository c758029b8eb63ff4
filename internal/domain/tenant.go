package domain

import (
	"errors"
	"time"
)

var (
	ErrDomainNotFound = errors.New("domain not found")
	ErrDomainExists   = errors.New("domain already exists")
	ErrDomainInvalid  = errors.New("domain name invalid")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Domain is the tenancy unit. Every job, run and worker belongs to exactly
// one domain; the token hash authenticates API callers and workers.
type Domain struct {
	Name        string
	DisplayName string
	Description string
	TokenHash   string // SHA-256 hex of the domain token
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
