package scan

import (
	"sync"

	"github.com/scanforge/api/pkg/domain/shared"
)

// TokenVault holds clone access tokens between submission and the clone
// step. Tokens live only in process memory: they are never part of the
// persisted target, the task payload or any log line. A token is consumed
// on first read so it cannot outlive its scan.
type TokenVault struct {
	mu     sync.Mutex
	tokens map[shared.ID]string
}

// NewTokenVault creates an empty vault.
func NewTokenVault() *TokenVault {
	return &TokenVault{tokens: make(map[shared.ID]string)}
}

// Put stores the token for a scan. Empty tokens are ignored.
func (v *TokenVault) Put(scanID shared.ID, token string) {
	if token == "" {
		return
	}
	v.mu.Lock()
	v.tokens[scanID] = token
	v.mu.Unlock()
}

// Take removes and returns the token for a scan, or "" when none was
// stored.
func (v *TokenVault) Take(scanID shared.ID) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	token := v.tokens[scanID]
	delete(v.tokens, scanID)
	return token
}
