package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/hydrajobs/hydra/internal/domain"
)

// FetchSource clones the job's repository into a temp dir and returns
// the execution base directory plus a cleanup that removes the clone.
// A nil source is a no-op.
func (r *Runner) FetchSource(ctx context.Context, src *domain.SourceConfig, jobID string) (string, func(), error) {
	noop := func() {}
	if src == nil || src.URL == "" {
		return "", noop, nil
	}

	dir, err := os.MkdirTemp("", "hydra-src-"+jobID+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create checkout dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	if err := r.clone(ctx, dir, src); err != nil {
		cleanup()
		return "", nil, err
	}

	base := dir
	if src.Path != "" {
		base = filepath.Join(dir, src.Path)
		if _, err := os.Stat(base); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("source path %q not found in repository: %w", src.Path, err)
		}
	}

	r.logger.DebugContext(ctx, "source checked out", "url", src.URL, "ref", src.Ref, "dir", base)
	return base, cleanup, nil
}

// clone fetches the repository. Branch and tag refs clone shallow and
// single-branch; a commit hash needs history, so it clones full and
// checks the hash out afterwards.
func (r *Runner) clone(ctx context.Context, dir string, src *domain.SourceConfig) error {
	if src.Ref == "" {
		_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:   src.URL,
			Depth: 1,
		})
		if err != nil {
			return fmt.Errorf("clone %s: %w", src.URL, err)
		}
		return nil
	}

	if plumbing.IsHash(src.Ref) {
		repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: src.URL})
		if err != nil {
			return fmt.Errorf("clone %s: %w", src.URL, err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(src.Ref)}); err != nil {
			return fmt.Errorf("checkout %s: %w", src.Ref, err)
		}
		return nil
	}

	_, branchErr := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           src.URL,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(src.Ref),
	})
	if branchErr == nil {
		return nil
	}

	// Not a branch; the clone left nothing usable behind, retry as tag.
	_ = os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("recreate checkout dir: %w", err)
	}
	_, tagErr := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           src.URL,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.NewTagReferenceName(src.Ref),
	})
	if tagErr != nil {
		return fmt.Errorf("checkout %q: not a branch (%v) or tag (%v)", src.Ref, branchErr, tagErr)
	}
	return nil
}
