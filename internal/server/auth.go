package server

import (
	"crypto/subtle"
	"sync"
)

// Auth remembers the password each alias first registered with. It is a
// placeholder for real account storage, not a security boundary.
type Auth struct {
	mu       sync.Mutex
	accounts map[string]string
}

func NewAuth() *Auth {
	return &Auth{accounts: map[string]string{}}
}

// Query accepts an unknown alias and stores its password; a known alias
// must present the same password again.
func (a *Auth) Query(alias, password string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	want, ok := a.accounts[alias]
	if !ok {
		a.accounts[alias] = password
		return true
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
}
