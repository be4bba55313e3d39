// Package storage persists one JSON session document per annotator identity.
// Writes are whole-document overwrites with no locking: two processes writing
// the same identity race and the last writer wins.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

const (
	filePrefix = "session_"
	fileSuffix = ".json"
)

var (
	ErrNotFound        = errors.New("no saved session found")
	ErrCorrupt         = errors.New("saved session is corrupt")
	ErrInvalidIdentity = errors.New("annotator name has no usable characters")
)

// Key derives the store key from an annotator display name: letters, digits,
// spaces and underscores are kept and spaces become underscores. Distinct
// names may collide ("Ana Li" and "Ana_Li" share one document).
func Key(displayName string) (string, error) {
	var b strings.Builder
	for _, r := range displayName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' {
			b.WriteRune(r)
		}
	}
	key := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, displayName)
	}
	return key, nil
}

// Summary describes a saved session without its responses
type Summary struct {
	Key           string    `json:"key"`
	Annotator     string    `json:"annotator"`
	RootDirectory string    `json:"root_directory"`
	CurrentIndex  int       `json:"current_index"`
	TotalImages   int       `json:"total_images"`
	Timestamp     time.Time `json:"timestamp"`
	Path          string    `json:"path"`
}

// Percent returns how far the saved cursor is through the target list
func (s Summary) Percent() float64 {
	if s.TotalImages == 0 {
		return 0
	}
	return float64(s.CurrentIndex) / float64(s.TotalImages) * 100
}

// FileStore keeps session documents in a single directory
type FileStore struct {
	dir string
}

func New(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the document location for an annotator display name
func (s *FileStore) Path(displayName string) (string, error) {
	key, err := Key(displayName)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filePrefix+key+fileSuffix), nil
}

// Exists reports whether a document is stored for the name's key
func (s *FileStore) Exists(displayName string) (bool, error) {
	path, err := s.Path(displayName)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat session file: %w", err)
	}
	return true, nil
}

// Load reads the session stored for displayName. A missing document returns
// ErrNotFound and an undecodable one ErrCorrupt; no partial session is returned.
func (s *FileStore) Load(displayName string) (*models.Session, error) {
	path, err := s.Path(displayName)
	if err != nil {
		return nil, err
	}
	return loadFile(path)
}

func loadFile(path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if session.Annotator == "" || session.TotalImages < 0 || session.CurrentIndex < 0 {
		return nil, fmt.Errorf("%w: %s: missing session header", ErrCorrupt, filepath.Base(path))
	}
	if session.Responses == nil {
		session.Responses = make(map[int]models.Response)
	}

	return &session, nil
}

// Save overwrites the document for the session's annotator. The timestamp and
// format version are stamped on the session before writing.
func (s *FileStore) Save(session *models.Session) error {
	path, err := s.Path(session.Annotator)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	session.Timestamp = time.Now()
	session.Version = models.FormatVersion

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	slog.Debug("Session saved", "annotator", session.Annotator, "path", path, "cursor", session.CurrentIndex)
	return nil
}

// Delete removes the document for displayName. Deleting a missing document is not an error.
func (s *FileStore) Delete(displayName string) error {
	path, err := s.Path(displayName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns summaries of every stored session, most recent first.
// Corrupt documents are skipped.
func (s *FileStore) List() ([]Summary, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	summaries := make([]Summary, 0, len(paths))
	for _, path := range paths {
		session, err := loadFile(path)
		if err != nil {
			slog.Warn("Skipping unreadable session", "path", path, "err", err)
			continue
		}

		ts := session.Timestamp
		if ts.IsZero() {
			if info, err := os.Stat(path); err == nil {
				ts = info.ModTime()
			}
		}

		name := filepath.Base(path)
		summaries = append(summaries, Summary{
			Key:           strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix),
			Annotator:     session.Annotator,
			RootDirectory: session.RootDirectory,
			CurrentIndex:  session.CurrentIndex,
			TotalImages:   session.TotalImages,
			Timestamp:     ts,
			Path:          path,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})

	return summaries, nil
}
