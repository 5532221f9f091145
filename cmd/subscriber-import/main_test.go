package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	mu     sync.Mutex
	emails []string
	reject map[string]bool
}

func (r *recordingSubscriber) Subscribe(_ context.Context, email string) error {
	if r.reject[email] {
		return errors.New("rejected")
	}
	r.mu.Lock()
	r.emails = append(r.emails, email)
	r.mu.Unlock()
	return nil
}

func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{
		"Roofer@Example.com":            "roofer@example.com",
		` "pm@example.com" ,Jane,Smith`: "pm@example.com",
	} {
		got, ok := normalize(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"", "email", "not-an-address", "Jane <jane@example.com>"} {
		_, ok := normalize(in)
		assert.False(t, ok, in)
	}
}

func writeGz(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(plain, []byte("email,name\na@example.com,A\nb@example.com,B\nbroken\n"), 0o600))
	packed := filepath.Join(dir, "b.csv.gz")
	writeGz(t, packed, "B@example.com\nc@example.com\nd@example.com\n")

	sub := &recordingSubscriber{reject: map[string]bool{"d@example.com": true}}
	st, err := run(context.Background(), sub, 4, []string{plain, packed})
	require.NoError(t, err)

	sort.Strings(sub.emails)
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, sub.emails)
	assert.EqualValues(t, 7, st.read.Load())
	assert.EqualValues(t, 2, st.invalid.Load())
	assert.EqualValues(t, 1, st.duplicate.Load())
	assert.EqualValues(t, 3, st.subscribed.Load())
	assert.EqualValues(t, 1, st.failed.Load())
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("a@example.com\na@example.com\n"), 0o600))

	st, err := run(context.Background(), nil, 1, []string{path})
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.duplicate.Load())
	assert.Zero(t, st.subscribed.Load())
}

func TestRunMissingFile(t *testing.T) {
	_, err := run(context.Background(), nil, 1, []string{filepath.Join(t.TempDir(), "nope.gz")})
	require.Error(t, err)
}
