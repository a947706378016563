package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest file the server accepts: 500 MiB.
const MaxFileSize int64 = 500 * 1024 * 1024

// contentTypes maps accepted extensions to the media type sent with the file.
var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"ogg":  "video/ogg",
	"avi":  "video/avi",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
}

// AllowedExtensions lists the accepted video extensions.
var AllowedExtensions = []string{"mp4", "webm", "ogg", "avi", "mov", "mkv"}

// Candidate describes a file before its content is needed.
type Candidate interface {
	Name() string
	Size() int64
}

// File is an upload candidate whose content can be read.
type File interface {
	Candidate
	Open() (io.ReadCloser, error)
}

// ContentType returns the media type for name's extension and whether the
// extension is accepted.
func ContentType(name string) (string, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	ct, ok := contentTypes[ext]
	return ct, ok
}

// DefaultTitle derives a title from the file's base name without extension.
func DefaultTitle(name string) string {
	base := filepath.Base(name)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ValidateFile checks f against the size limit and the accepted extensions.
func ValidateFile(f Candidate, maxSize int64) error {
	if f == nil || strings.TrimSpace(f.Name()) == "" {
		return invalid(ErrNoFile, "Please select a video file")
	}
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	if f.Size() > maxSize {
		return invalid(ErrFileTooLarge, fmt.Sprintf("%s is %d bytes; the limit is %d bytes", f.Name(), f.Size(), maxSize))
	}
	if _, ok := ContentType(f.Name()); !ok {
		return invalid(ErrFileType, fmt.Sprintf("%s is not a supported video (allowed: %s)", f.Name(), strings.Join(AllowedExtensions, ", ")))
	}
	return nil
}

// LocalFile is a file on the local filesystem.
type LocalFile struct {
	path string
	size int64
}

// OpenLocal stats path and returns it as an upload candidate.
func OpenLocal(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, errors.New(path + " is a directory")
	}
	return &LocalFile{path: path, size: info.Size()}, nil
}

// Name returns the file's base name. A nil file has no name.
func (f *LocalFile) Name() string {
	if f == nil || f.path == "" {
		return ""
	}
	return filepath.Base(f.path)
}

// Size returns the size recorded when the file was opened.
func (f *LocalFile) Size() int64 {
	if f == nil {
		return 0
	}
	return f.size
}

// Open opens the file for reading.
func (f *LocalFile) Open() (io.ReadCloser, error) {
	if f == nil {
		return nil, ErrNoFile
	}
	return os.Open(f.path)
}
