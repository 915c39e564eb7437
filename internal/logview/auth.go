package logview

import (
	"crypto/subtle"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const (
	// failureBurst wrong passwords are allowed before throttling kicks in;
	// afterwards one attempt per failureRefill.
	failureBurst  = 5
	failureRefill = 12 * time.Second

	maxTrackedClients = 4096
)

// Result of a password check
type Result int

const (
	Denied Result = iota
	Granted
	Throttled
)

// Authenticator checks the admin secret in constant time and throttles
// repeated failures per client address.
type Authenticator struct {
	secret []byte
	hash   []byte

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAuthenticator creates an authenticator. A non-empty bcrypt hash takes
// precedence over the plaintext secret.
func NewAuthenticator(secret, bcryptHash string) *Authenticator {
	return &Authenticator{
		secret:   []byte(secret),
		hash:     []byte(bcryptHash),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Check verifies password for the client at ip.
func (a *Authenticator) Check(ip, password string) Result {
	lim := a.limiter(ip)
	if lim.Tokens() < 1 {
		return Throttled
	}
	if a.matches(password) {
		return Granted
	}
	lim.Allow()
	return Denied
}

func (a *Authenticator) matches(password string) bool {
	if len(a.hash) > 0 {
		return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	}
	if len(a.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), a.secret) == 1
}

func (a *Authenticator) limiter(ip string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()

	if lim, ok := a.limiters[ip]; ok {
		return lim
	}
	if len(a.limiters) >= maxTrackedClients {
		a.prune()
	}
	lim := rate.NewLimiter(rate.Every(failureRefill), failureBurst)
	a.limiters[ip] = lim
	return lim
}

// prune forgets clients whose bucket has refilled. Caller holds a.mu.
func (a *Authenticator) prune() {
	for ip, lim := range a.limiters {
		if lim.Tokens() >= failureBurst {
			delete(a.limiters, ip)
		}
	}
}
