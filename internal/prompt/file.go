package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the prompt set as a JSON file, which is how the CLI
// keeps operator-edited prompts between runs.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store at path. The file is created on
// the first Save; Load before that returns the defaults.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (*PromptSet, error) {
	const op = "FileStore.Load"

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return DefaultPromptSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var set PromptSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%s: corrupt prompt file %s: %w", op, s.path, err)
	}
	if set.ExtractionPrompt == "" {
		return nil, fmt.Errorf("%s: prompt file %s has no extraction prompt", op, s.path)
	}
	return &set, nil
}

// Save implements Store. The write goes through a temp file and rename so a
// crash cannot leave a half-written prompt file.
func (s *FileStore) Save(_ context.Context, set *PromptSet) error {
	const op = "FileStore.Save"

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(dir, ".prompts-*.json")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
