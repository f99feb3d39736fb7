package acquire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		url   string
		owner string
		repo  string
	}{
		{
			name:  "https with .git",
			raw:   "https://github.com/acme/app.git",
			url:   "https://github.com/acme/app.git",
			owner: "acme",
			repo:  "app",
		},
		{
			name:  "https without .git",
			raw:   "https://github.com/acme/app",
			url:   "https://github.com/acme/app.git",
			owner: "acme",
			repo:  "app",
		},
		{
			name:  "https trailing slash",
			raw:   "https://gitlab.com/group/project/",
			url:   "https://gitlab.com/group/project.git",
			owner: "group",
			repo:  "project",
		},
		{
			name:  "ssh form",
			raw:   "git@github.com:acme/app.git",
			url:   "https://github.com/acme/app.git",
			owner: "acme",
			repo:  "app",
		},
		{
			name:  "short form",
			raw:   "github.com/acme/app",
			url:   "https://github.com/acme/app.git",
			owner: "acme",
			repo:  "app",
		},
		{
			name:  "surrounding whitespace",
			raw:   "  https://github.com/acme/app.git\n",
			url:   "https://github.com/acme/app.git",
			owner: "acme",
			repo:  "app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := NormalizeRepoURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.url, ref.CloneURL)
			assert.Equal(t, tt.owner, ref.Owner)
			assert.Equal(t, tt.repo, ref.Repo)
		})
	}
}

func TestNormalizeRepoURL_SSHAndHTTPSConverge(t *testing.T) {
	a, err := NormalizeRepoURL("git@github.com:acme/app.git")
	require.NoError(t, err)
	b, err := NormalizeRepoURL("https://github.com/acme/app")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeRepoURL_Rejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"ftp://github.com/acme/app",
		"just-a-string",
		"github.com/only-owner",
	} {
		_, err := NormalizeRepoURL(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestTokenContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TokenFromContext(ctx))

	ctx = WithToken(ctx, "ghp_secret")
	assert.Equal(t, "ghp_secret", TokenFromContext(ctx))

	// The token stays scoped to its context branch.
	assert.Empty(t, TokenFromContext(context.Background()))
}
