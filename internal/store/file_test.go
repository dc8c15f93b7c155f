package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foneai-widget/internal/chat"
)

func TestFileStoreWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "transcript.json")
	f := NewFileStore(path)

	got, err := f.Read()
	require.NoError(t, err)
	assert.Nil(t, got)

	e := &Export{
		SessionID:  "sess-abc",
		ExportedAt: time.UnixMilli(1_700_000_000_000).UTC(),
		Messages:   []chat.Message{msg("q", chat.RoleUser), msg("a", chat.RoleAI)},
	}
	require.NoError(t, f.Write(e))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err = f.Read()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sess-abc", got.SessionID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chat.RoleAI, got.Messages[1].Role)
}

func TestFileStoreRejectsEmptyExport(t *testing.T) {
	f := NewFileStore(filepath.Join(t.TempDir(), "t.json"))
	require.Error(t, f.Write(nil))
	require.Error(t, f.Write(&Export{}))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFileStore(path).Read()
	require.Error(t, err)
}
