// Package identity mints the anonymous player ids devices present when
// creating or joining a session. Ids are opaque and unprivileged; a lost id
// is recovered through name-based reconnection, not through the id itself.
package identity

import "github.com/google/uuid"

// NewPlayerID returns a fresh opaque player id.
func NewPlayerID() string {
	return uuid.NewString()
}
