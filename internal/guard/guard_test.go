package guard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"anonuplift/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_Blocked(t *testing.T) {
	g := New(DefaultTerms, logging.Discard())
	ctx := context.Background()

	tests := []struct {
		text    string
		blocked bool
	}{
		{"You are stupid", true},
		{"YOU ARE STUPID!!!", true},
		{"you're such an idiot.", true},
		{"stop, self-harm is never the answer", true},
		{"self harm", true},
		{"You are amazing and kind", false},
		{"Your skills are great", false},
		{"Congrats on the new diet!", false},
		{"", false},
		{"ÍDIOT", true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.blocked, g.Blocked(ctx, tc.text), tc.text)
	}
}

func TestGuard_DeduplicatesTerms(t *testing.T) {
	g := New([]string{"Mean", "mean", " MEAN ", "--"}, logging.Discard())
	assert.Len(t, g.phrases, 1)
	assert.True(t, g.Blocked(context.Background(), "so mean"))
}

func TestLoad_ExtraTermsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deny.txt")
	require.NoError(t, os.WriteFile(path, []byte("# local additions\nnasty\n\nbig meanie\n"), 0o600))

	g := Load(path, logging.Discard())
	ctx := context.Background()

	assert.Equal(t, New(DefaultTerms, logging.Discard()).Len()+2, g.Len())
	assert.True(t, g.Blocked(ctx, "that was nasty"))
	assert.True(t, g.Blocked(ctx, "you Big  Meanie"))
	assert.False(t, g.Blocked(ctx, "big hugs"))
	assert.True(t, g.Blocked(ctx, "stupid"), "defaults still apply")
}

func TestLoad_MissingFileKeepsDefaultTerms(t *testing.T) {
	g := Load(filepath.Join(t.TempDir(), "missing.txt"), logging.Discard())
	ctx := context.Background()

	assert.Equal(t, New(DefaultTerms, logging.Discard()).Len(), g.Len())
	assert.True(t, g.Blocked(ctx, "You are stupid"))
	assert.True(t, g.Blocked(ctx, "idiot"))
	assert.False(t, g.Blocked(ctx, "You are amazing"))
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	g := Load("", logging.Discard())
	assert.Equal(t, New(DefaultTerms, logging.Discard()).Len(), g.Len())
	assert.True(t, g.Blocked(context.Background(), "moron"))
}
