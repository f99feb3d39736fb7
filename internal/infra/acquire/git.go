package acquire

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/scanforge/api/pkg/domain/scan"
)

const defaultBranch = "main"

// RepoRef is a normalized repository reference.
type RepoRef struct {
	CloneURL string
	Owner    string
	Repo     string
}

var (
	httpsRepoRegex = regexp.MustCompile(`^https?://([^/]+)/([^/]+)/([^/]+?)(?:\.git)?/?$`)
	sshRepoRegex   = regexp.MustCompile(`^git@([^:]+):([^/]+)/([^/]+?)(?:\.git)?$`)
	shortRepoRegex = regexp.MustCompile(`^([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})/([^/]+)/([^/]+?)(?:\.git)?$`)
)

// NormalizeRepoURL folds the accepted repository URL forms (HTTPS, SSH and
// short host/owner/repo) into one canonical HTTPS clone URL plus owner/repo.
func NormalizeRepoURL(raw string) (*RepoRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty repository URL")
	}

	var host, owner, repo string
	for _, re := range []*regexp.Regexp{httpsRepoRegex, sshRepoRegex, shortRepoRegex} {
		if m := re.FindStringSubmatch(raw); m != nil {
			host, owner, repo = m[1], m[2], m[3]
			break
		}
	}
	if host == "" {
		return nil, fmt.Errorf("unsupported repository URL format: %q", raw)
	}

	return &RepoRef{
		CloneURL: fmt.Sprintf("https://%s/%s/%s.git", host, owner, repo),
		Owner:    owner,
		Repo:     repo,
	}, nil
}

// acquireRepo shallow-clones the target repository into a fresh work
// directory. The access token, when present, becomes transient basic-auth
// credentials for the clone transport only; it is never written anywhere.
func (s *Service) acquireRepo(ctx context.Context, target scan.Target) (*Target, error) {
	ref, err := NormalizeRepoURL(target.RepoURL)
	if err != nil {
		return nil, scan.NewAcquisitionError("invalid repository URL", err)
	}

	dir, err := s.newWorkDir()
	if err != nil {
		return nil, scan.NewAcquisitionError("temp dir creation failed", err)
	}
	cleanup := s.cleanupFunc(dir)

	var auth *http.BasicAuth
	if token := TokenFromContext(ctx); token != "" {
		auth = &http.BasicAuth{
			Username: "x-access-token", // GitHub/GitLab convention
			Password: token,
		}
	}

	branch := target.Branch
	if branch == "" {
		branch = defaultBranch
	}

	opts := &git.CloneOptions{
		URL:           ref.CloneURL,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	}

	s.log.Info("cloning repository",
		"owner", ref.Owner,
		"repo", ref.Repo,
		"branch", branch,
	)

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil && target.Branch == "" && branch == defaultBranch {
		// Older repositories still default to master.
		opts.ReferenceName = plumbing.NewBranchReferenceName("master")
		branch = "master"
		repo, err = git.PlainCloneContext(ctx, dir, false, opts)
	}
	if err != nil {
		cleanup()
		return nil, scan.NewAcquisitionError("clone failed", err)
	}

	head, err := repo.Head()
	if err != nil {
		cleanup()
		return nil, scan.NewAcquisitionError("failed to resolve HEAD", err)
	}

	fileCount, size, err := measureTree(dir)
	if err != nil {
		cleanup()
		return nil, scan.NewAcquisitionError("failed to inspect clone", err)
	}
	if size > s.cfg.MaxTargetSizeBytes {
		cleanup()
		return nil, scan.NewAcquisitionError(
			fmt.Sprintf("repository size %d exceeds %d byte ceiling", size, s.cfg.MaxTargetSizeBytes), nil)
	}

	return &Target{
		Dir:        dir,
		FileCount:  fileCount,
		SizeBytes:  size,
		Owner:      ref.Owner,
		Repo:       ref.Repo,
		Branch:     branch,
		HeadCommit: head.Hash().String(),
		Cleanup:    cleanup,
	}, nil
}

type tokenKey struct{}

// WithToken returns a context carrying an access token for the clone
// transport. The token rides the context instead of the persisted target so
// it never reaches the store or the logs.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the access token carried by ctx, or "".
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
