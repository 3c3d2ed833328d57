package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Store persists whole sessions. Every method returns *PersistenceError on
// failure; Load and Rename wrap ErrNotFound for unknown ids.
type Store interface {
	// Create assigns an id when sess has none, then saves it.
	Create(ctx context.Context, sess *Session) (string, error)
	// Save writes the whole session and stamps ModifiedAt.
	Save(ctx context.Context, sess *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	// Delete reports whether a session was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns summaries ordered by ModifiedAt, newest first.
	List(ctx context.Context) ([]Summary, error)
	Rename(ctx context.Context, id, title string) error
	Close() error
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func checkID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// FileStore keeps one JSON document per session under <dir>/sessions.
type FileStore struct {
	basePath string
}

// NewFileStore creates a JSON file store rooted at dataDir.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{
		basePath: filepath.Join(dataDir, "sessions"),
	}
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.basePath, id+".json")
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, sess *Session) (string, error) {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	if err := s.Save(ctx, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return persistErr("save", sess.ID, err)
	}
	if err := checkID(sess.ID); err != nil {
		return persistErr("save", sess.ID, err)
	}
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return persistErr("save", sess.ID, fmt.Errorf("failed to create session directory: %w", err))
	}

	sess.touch()
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return persistErr("save", sess.ID, fmt.Errorf("failed to marshal session: %w", err))
	}

	tmp, err := os.CreateTemp(s.basePath, sess.ID+".*.tmp")
	if err != nil {
		return persistErr("save", sess.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return persistErr("save", sess.ID, fmt.Errorf("failed to write session file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return persistErr("save", sess.ID, err)
	}
	if err := os.Rename(tmpName, s.path(sess.ID)); err != nil {
		os.Remove(tmpName)
		return persistErr("save", sess.ID, err)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := checkID(id); err != nil {
		return nil, persistErr("load", id, err)
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, persistErr("load", id, ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("load", id, fmt.Errorf("failed to read session file: %w", err))
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, persistErr("load", id, fmt.Errorf("failed to unmarshal session: %w", err))
	}
	return &sess, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := checkID(id); err != nil {
		return false, persistErr("delete", id, err)
	}
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, persistErr("delete", id, err)
	}
	return true, nil
}

// List implements Store. Unreadable or invalid files are skipped.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.basePath)
	if errors.Is(err, os.ErrNotExist) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, persistErr("list", "", fmt.Errorf("failed to list session directory: %w", err))
	}

	summaries := []Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		summaries = append(summaries, sess.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ModifiedAt.After(summaries[j].ModifiedAt)
	})
	return summaries, nil
}

// Rename implements Store.
func (s *FileStore) Rename(ctx context.Context, id, title string) error {
	sess, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	sess.Title = strings.TrimSpace(title)
	return s.Save(ctx, sess)
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
