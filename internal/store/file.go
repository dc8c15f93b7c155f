package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"foneai-widget/internal/chat"
)

// Export is the on-disk form of one conversation.
type Export struct {
	SessionID  string         `json:"sessionId"`
	ExportedAt time.Time      `json:"exportedAt"`
	Messages   []chat.Message `json:"messages"`
}

// FileStore writes a single transcript export to disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Read returns nil, nil when no export exists yet.
func (f *FileStore) Read() (*Export, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var e Export
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode transcript export: %w", err)
	}
	return &e, nil
}

func (f *FileStore) Write(e *Export) error {
	if e == nil || e.SessionID == "" {
		return fmt.Errorf("invalid transcript export")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	// Write then rename so a crash never leaves a half-written export.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
