package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyUpload is returned by Save when the stream carried no bytes.
var ErrEmptyUpload = errors.New("empty upload")

var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".aac": true, ".flac": true,
	".ogg": true, ".oga": true, ".opus": true, ".wma": true, ".amr": true,
	".aiff": true, ".aif": true, ".caf": true,
}

// Containers the engines can pull an audio track out of.
var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".webm": true, ".m4v": true, ".mpeg": true, ".mpg": true,
}

func IsMediaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return audioExtensions[ext] || videoExtensions[ext]
}

// TempStore materializes uploads as uniquely named files under dir.
type TempStore struct {
	dir string
}

func NewTempStore(dir string) (*TempStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempStore{dir: abs}, nil
}

func (s *TempStore) Dir() string {
	return s.dir
}

// TempFile is an upload written to disk. The caller owns it and must call
// Remove once the engine is done with it.
type TempFile struct {
	Path string `json:"-"`
	Name string `json:"name"` // client-supplied file name, for logs and history
	Size int64  `json:"size"`
}

// Save copies r into a new file named upload-<uuid><ext>. The extension is
// kept from filename when it is a known media type so decoders that sniff
// by suffix keep working. Empty streams are rejected with ErrEmptyUpload and
// leave nothing behind.
func (s *TempStore) Save(r io.Reader, filename string) (*TempFile, error) {
	ext := ""
	if IsMediaFile(filename) {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	path := filepath.Join(s.dir, "upload-"+uuid.New().String()+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if n == 0 {
		os.Remove(path)
		return nil, ErrEmptyUpload
	}

	return &TempFile{
		Path: path,
		Name: filepath.Base(filename),
		Size: n,
	}, nil
}

// Contains reports whether path lives inside the store directory.
func (s *TempStore) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(abs, s.dir+string(filepath.Separator))
}

// Remove deletes the file. A file that is already gone is not an error.
func (t *TempFile) Remove() error {
	if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
