package chat_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foneai-widget/internal/chat"
)

func TestLoadCopyDefaults(t *testing.T) {
	c, err := chat.LoadCopy("")
	require.NoError(t, err)
	assert.Equal(t, chat.DefaultCopy(), c)
	assert.Len(t, c.LoadingLabels, 3)
}

func TestLoadCopyOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
placeholder: "ASK THE PIT WALL"
loading_labels:
  - BOX BOX
  - PUSH
`), 0o600))

	c, err := chat.LoadCopy(path)
	require.NoError(t, err)
	assert.Equal(t, "ASK THE PIT WALL", c.Placeholder)
	assert.Equal(t, []string{"BOX BOX", "PUSH"}, c.LoadingLabels)
	assert.Equal(t, chat.DefaultCopy().FailureText, c.FailureText)
	assert.Equal(t, chat.DefaultCopy().RemediationText, c.RemediationText)
}

func TestLoadCopyMissingFile(t *testing.T) {
	_, err := chat.LoadCopy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
