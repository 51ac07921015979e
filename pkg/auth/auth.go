// Package auth provides the demo account directory used by the chat UI.
// Accounts live in memory and tokens are opaque strings, not signed.
package auth

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/nstogner/supportchat/pkg/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidToken       = errors.New("invalid token")
)

const tokenPrefix = "dummy-token-"

type account struct {
	user     domain.User
	password string
}

// Directory is a concurrency-safe in-memory user list.
type Directory struct {
	mu       sync.RWMutex
	accounts []account
}

// NewDirectory returns a directory seeded with the demo accounts.
func NewDirectory() *Directory {
	return &Directory{accounts: []account{
		{user: domain.User{ID: "1", Username: "admin", Name: "Admin User"}, password: "admin123"},
		{user: domain.User{ID: "2", Username: "user", Name: "Regular User"}, password: "user123"},
		{user: domain.User{ID: "3", Username: "demo", Name: "Demo User"}, password: "demo123"},
	}}
}

// Login checks credentials and returns the user and a session token.
func (d *Directory) Login(username, password string) (domain.User, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.accounts {
		if a.user.Username == username && a.password == password {
			return a.user, Token(a.user), nil
		}
	}
	return domain.User{}, "", ErrInvalidCredentials
}

// Signup registers a new account.
func (d *Directory) Signup(username, password, name string) (domain.User, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.accounts {
		if a.user.Username == username {
			return domain.User{}, "", ErrUserExists
		}
	}
	u := domain.User{ID: strconv.Itoa(len(d.accounts) + 1), Username: username, Name: name}
	d.accounts = append(d.accounts, account{user: u, password: password})
	return u, Token(u), nil
}

// Verify resolves a token to its user.
func (d *Directory) Verify(token string) (domain.User, error) {
	id, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok || id == "" {
		return domain.User{}, ErrInvalidToken
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.accounts {
		if a.user.ID == id {
			return a.user, nil
		}
	}
	return domain.User{}, ErrInvalidToken
}

// Token returns the session token for u.
func Token(u domain.User) string {
	return tokenPrefix + u.ID
}
