package ids

import (
	"crypto/rand"
	"encoding/base64"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TokenIDBytes is the amount of entropy carried by a refresh token identifier.
const TokenIDBytes = 32

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a random UUID string used as primary key for users, teams, roles,
// permissions and memberships.
func New() string {
	return uuid.NewString()
}

// Sortable returns a lexicographically sortable identifier. Refresh token records
// use it so the audit trail orders by issuance.
func Sortable() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// TokenID returns a URL-safe identifier backed by TokenIDBytes of crypto/rand output.
func TokenID() (string, error) {
	buf := make([]byte, TokenIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
