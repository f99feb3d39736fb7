package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scanforge/api/pkg/domain/shared"
)

func TestTokenVault_TakeConsumes(t *testing.T) {
	v := NewTokenVault()
	id := shared.NewID()

	v.Put(id, "ghp_secret")
	assert.Equal(t, "ghp_secret", v.Take(id))

	// A token is single-use.
	assert.Empty(t, v.Take(id))
}

func TestTokenVault_EmptyTokenIgnored(t *testing.T) {
	v := NewTokenVault()
	id := shared.NewID()

	v.Put(id, "")
	assert.Empty(t, v.Take(id))
}

func TestTokenVault_UnknownScan(t *testing.T) {
	v := NewTokenVault()
	assert.Empty(t, v.Take(shared.NewID()))
}
