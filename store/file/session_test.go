package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletlink/types"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := NewSessionStore(path)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "missing file means no session")

	want := types.StoredSession{
		Connector:   types.ConnectorRemotePairing,
		Account:     "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		ChainID:     types.ChainBase,
		ConnectedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(ctx, want))

	got, err = NewSessionStore(path).Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx), "clearing twice is fine")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSessionStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewSessionStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse session file")
}
