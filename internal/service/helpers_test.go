package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sakif/task-master/internal/auth"
	"github.com/sakif/task-master/internal/repository/memory"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHasher returns bcrypt at cost 4 so tests stay fast.
func newTestHasher(t *testing.T) auth.CredentialHasher {
	t.Helper()
	ps, err := auth.NewPasswordServiceWithCost(4)
	if err != nil {
		t.Fatalf("NewPasswordServiceWithCost: %v", err)
	}
	return ps
}

// flakyStore wraps a memory.Store and fails Set for keys with a given suffix.
type flakyStore struct {
	*memory.Store
	failSuffix string
}

var errDiskFull = errors.New("disk full")

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSuffix != "" && strings.HasSuffix(key, f.failSuffix) {
		return errDiskFull
	}
	return f.Store.Set(ctx, key, value)
}

// reverseHasher is a trivially reversible CredentialHasher used to check that
// the identity store stores and compares only what the hasher produces.
type reverseHasher struct{}

func (reverseHasher) Hash(p string) (string, error) {
	r := []rune(p)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return "rev:" + string(r), nil
}

func (h reverseHasher) Verify(stored, p string) error {
	want, _ := h.Hash(p)
	if stored != want {
		return auth.ErrPasswordMismatch
	}
	return nil
}
