package testsupport

import (
	"context"
	"testing"

	"sprout/internal/config"
	"sprout/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewSession creates a pending session for tests using the provided store.
func NewSession(t testing.TB, st *store.Store, userRef string, ageMonths int) *store.Session {
	t.Helper()

	session, err := st.NewSession(context.Background(), store.NewSessionParams{
		UserRef:        userRef,
		ChildAgeMonths: ageMonths,
		ChildGender:    "female",
	})
	if err != nil {
		t.Fatalf("store.NewSession: %v", err)
	}
	return session
}
