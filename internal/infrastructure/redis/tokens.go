package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Domain set

func (s *Store) AddDomain(ctx context.Context, dom string) error {
	if err := s.client.SAdd(ctx, domainsKey, dom).Err(); err != nil {
		return fmt.Errorf("add domain: %w", err)
	}
	return nil
}

func (s *Store) RemoveDomain(ctx context.Context, dom string) error {
	if err := s.client.SRem(ctx, domainsKey, dom).Err(); err != nil {
		return fmt.Errorf("remove domain: %w", err)
	}
	return nil
}

// Domains returns the known domains in stable order so the dispatcher
// breaks cross-domain priority ties deterministically.
func (s *Store) Domains(ctx context.Context) ([]string, error) {
	domains, err := s.client.SMembers(ctx, domainsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	sort.Strings(domains)
	return domains, nil
}

// PurgeDomain drops every coordination key of the domain. Admin-only;
// best effort by key pattern.
func (s *Store) PurgeDomain(ctx context.Context, dom string) error {
	if err := s.client.SRem(ctx, domainsKey, dom).Err(); err != nil {
		return fmt.Errorf("purge domain: %w", err)
	}

	direct := []string{
		pendingKey(dom),
		heartbeatsKey(dom),
		domainTokenKey(dom),
	}
	if err := s.client.Del(ctx, direct...).Err(); err != nil {
		return fmt.Errorf("purge domain keys: %w", err)
	}

	patterns := []string{
		workerQueueKey(dom, "*"),
		workerKey(dom, "*"),
		runningSetKey(dom, "*"),
		jobRunningKey(dom, "*"),
		logStreamKey(dom, "*"),
	}
	for _, pattern := range patterns {
		iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("purge %s: %w", iter.Val(), err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
	}
	return nil
}

// Token store

func (s *Store) SetDomainHash(ctx context.Context, dom, hash string) error {
	if err := s.client.Set(ctx, domainTokenKey(dom), hash, 0).Err(); err != nil {
		return fmt.Errorf("set domain token hash: %w", err)
	}
	return nil
}

func (s *Store) DomainHash(ctx context.Context, dom string) (string, error) {
	hash, err := s.client.Get(ctx, domainTokenKey(dom)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("get domain token hash: %w", err)
	}
	return hash, nil
}

func (s *Store) DeleteDomainHash(ctx context.Context, dom string) error {
	if err := s.client.Del(ctx, domainTokenKey(dom)).Err(); err != nil {
		return fmt.Errorf("delete domain token hash: %w", err)
	}
	return nil
}

func (s *Store) CacheLookup(ctx context.Context, hash string) (string, error) {
	dom, err := s.client.Get(ctx, tokenDomainKey(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("token cache lookup: %w", err)
	}
	return dom, nil
}

func (s *Store) CacheStore(ctx context.Context, hash, dom string, ttl time.Duration) error {
	if err := s.client.Set(ctx, tokenDomainKey(hash), dom, ttl).Err(); err != nil {
		return fmt.Errorf("token cache store: %w", err)
	}
	return nil
}
