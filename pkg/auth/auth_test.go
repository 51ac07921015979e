package auth

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestLogin(t *testing.T) {
	d := NewDirectory()

	u, token, err := d.Login("admin", "admin123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Name != "Admin User" || token != "dummy-token-1" {
		t.Errorf("got %+v %q", u, token)
	}

	if _, _, err := d.Login("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := d.Login("nobody", "admin123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignupAndVerify(t *testing.T) {
	d := NewDirectory()

	u, token, err := d.Signup("carol", "secret1", "Carol")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if u.ID != "4" || token != "dummy-token-4" {
		t.Errorf("got %+v %q", u, token)
	}

	if _, _, err := d.Signup("carol", "other12", "Other"); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
	if _, _, err := d.Login("carol", "secret1"); err != nil {
		t.Errorf("new account cannot log in: %v", err)
	}

	got, err := d.Verify(token)
	if err != nil || got.Username != "carol" {
		t.Errorf("Verify = %+v, %v", got, err)
	}

	for _, bad := range []string{"", "dummy-token-", "dummy-token-99", "bearer-1"} {
		if _, err := d.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q): expected ErrInvalidToken, got %v", bad, err)
		}
	}
}

func TestSignupConcurrent(t *testing.T) {
	d := NewDirectory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Signup(fmt.Sprintf("user-%d", i), "password", "Name")
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		u, _, err := d.Login(fmt.Sprintf("user-%d", i), "password")
		if err != nil {
			t.Fatalf("Login user-%d: %v", i, err)
		}
		if seen[u.ID] {
			t.Errorf("duplicate id %s", u.ID)
		}
		seen[u.ID] = true
	}
}
