package scheduler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	// ActionStatus is the nonce action guarding the status surface.
	ActionStatus = "terport_status"

	defaultNonceLifetime = 24 * time.Hour
	nonceLength          = 32
)

// NonceIssuer issues anti-forgery tokens bound to an action and a time
// window. A token stays valid for the window it was issued in and the next,
// so its lifetime is between half and all of the configured lifetime.
type NonceIssuer struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// NewNonceIssuer constructs an issuer. An empty secret yields an issuer whose
// tokens never verify.
func NewNonceIssuer(secret string, lifetime time.Duration) *NonceIssuer {
	if lifetime <= 0 {
		lifetime = defaultNonceLifetime
	}
	return &NonceIssuer{
		secret: []byte(strings.TrimSpace(secret)),
		window: lifetime / 2,
		now:    time.Now,
	}
}

// Issue returns a token for action in the current window.
func (n *NonceIssuer) Issue(action string) string {
	return n.token(action, n.tick())
}

// Verify reports whether token was issued for action in the current or the
// previous window.
func (n *NonceIssuer) Verify(action, token string) bool {
	if n == nil || len(n.secret) == 0 {
		return false
	}
	token = strings.TrimSpace(token)
	if len(token) != nonceLength {
		return false
	}
	tick := n.tick()
	for _, candidate := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(n.token(action, candidate)), []byte(token)) {
			return true
		}
	}
	return false
}

func (n *NonceIssuer) tick() int64 {
	return n.now().UnixNano() / int64(n.window)
}

func (n *NonceIssuer) token(action string, tick int64) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(action))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:nonceLength]
}
