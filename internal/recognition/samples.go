package recognition

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_\-\x{4e00}-\x{9fa5}]`)

const maxNameAttempts = 64

// SampleStore writes enrollment samples into the directory the trainer reads.
// File names follow <name>.<subjectId>.<millis><ext>; the trainer takes the
// label from the second dot-separated field.
type SampleStore struct {
	dir string
	now func() time.Time
}

// NewSampleStore creates a store rooted at dir.
func NewSampleStore(dir string) *SampleStore {
	return &SampleStore{dir: dir, now: time.Now}
}

// Dir returns the sample directory.
func (s *SampleStore) Dir() string { return s.dir }

// Save writes image as a new sample for subjectID and returns its path. An
// existing sample is never overwritten: on a name collision the timestamp
// component is advanced.
func (s *SampleStore) Save(subjectID int64, displayName string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty sample")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create sample dir: %w", err)
	}
	base := SanitizeName(displayName)
	if base == "" {
		base = "user"
	}
	ext := SampleExtension(image)
	stamp := s.now().UnixMilli()

	for i := 0; i < maxNameAttempts; i++ {
		path := filepath.Join(s.dir, fmt.Sprintf("%s.%d.%d%s", base, subjectID, stamp+int64(i), ext))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create sample: %w", err)
		}
		if _, err := f.Write(image); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write sample: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("close sample: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free sample name for subject %d", subjectID)
}

// Remove deletes a sample written by Save.
func (s *SampleStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeName keeps ASCII letters, digits, underscore, hyphen and CJK
// ideographs. Everything else, dots included, becomes an underscore.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// SampleExtension picks a file extension the trainer will read.
func SampleExtension(image []byte) string {
	switch mimetype.Detect(image).String() {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}
