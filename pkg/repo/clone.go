package repo

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/grit-scm/grit/pkg/remote"
)

// CloneOptions controls a clone.
type CloneOptions struct {
	// Branch selects the remote branch to fetch; empty means the
	// remote's default branch.
	Branch string
	// Progress receives server-side progress messages.
	Progress func(string)
}

// Clone fetches a remote repository into dir: initializes a fresh
// repository, records the remote as "origin", downloads and indexes the
// pack for the selected branch tip, and points HEAD at the new local
// branch. The working directory is not populated.
func Clone(ctx context.Context, remoteURL, dir string, opts CloneOptions) (*Repo, *remote.CloneResult, error) {
	endpoint, err := remote.ParseEndpoint(remoteURL)
	if err != nil {
		return nil, nil, err
	}
	if dir == "" {
		dir = endpoint.RepositoryName()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("clone: mkdir %s: %w", dir, err)
	}

	r, err := Init(dir)
	if err != nil {
		return nil, nil, err
	}
	if err := r.SetRemote("origin", endpoint.URL); err != nil {
		return nil, nil, err
	}

	client := remote.NewClient(endpoint)
	neg := remote.NewNegotiator(client, remote.WithProgress(opts.Progress))

	result, err := neg.Clone(ctx, r.Store, opts.Branch)
	if err != nil {
		return nil, nil, fmt.Errorf("clone %s: %w", endpoint.URL, err)
	}

	// Record the fetched tip as both the remote-tracking ref and the
	// local branch, then point HEAD at the branch.
	trackingRef := "refs/remotes/origin/" + result.Branch
	if err := r.UpdateRef(trackingRef, result.Tip); err != nil {
		return nil, nil, err
	}
	localRef := "refs/heads/" + result.Branch
	if err := r.UpdateRef(localRef, result.Tip); err != nil {
		return nil, nil, err
	}
	if err := r.SetHead(result.Branch); err != nil {
		return nil, nil, err
	}

	// Tags advertised alongside the branch are recorded when their
	// objects arrived in the pack.
	for _, ref := range result.Refs {
		if !strings.HasPrefix(ref.Name, "refs/tags/") || strings.HasSuffix(ref.Name, "^{}") {
			continue
		}
		if !r.Store.Has(ref.Hash) {
			continue
		}
		if err := r.UpdateRef(ref.Name, ref.Hash); err != nil {
			return nil, nil, err
		}
	}

	return r, result, nil
}
