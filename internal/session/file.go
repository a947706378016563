package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

var errSealedTooShort = errors.New("session file: sealed payload too short")

// FileBackend keeps the session keys in a single JSON document on disk. Writes
// go to a temporary file that is renamed into place, so both keys change together.
// When a key is configured the document is sealed with XChaCha20-Poly1305.
type FileBackend struct {
	path string
	key  []byte

	mu sync.Mutex
}

// NewFileBackend returns a file-backed Backend. key may be nil for a plaintext
// file; otherwise it must be chacha20poly1305.KeySize bytes.
func NewFileBackend(path string, key []byte) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("session file: path is required")
	}
	if key != nil && len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("session file: key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &FileBackend{path: path, key: key}, nil
}

// Path returns the location of the session file.
func (b *FileBackend) Path() string { return b.path }

// ReadAll loads the stored keys. A missing file is an empty session.
func (b *FileBackend) ReadAll(_ context.Context) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	raw, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	if b.key != nil {
		raw, err = b.open(raw)
		if err != nil {
			return nil, err
		}
	}

	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	return values, nil
}

// WriteAll atomically replaces the session file.
func (b *FileBackend) WriteAll(_ context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if b.key != nil {
		payload, err = b.seal(payload)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create session temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// DeleteAll removes the session file.
func (b *FileBackend) DeleteAll(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (b *FileBackend) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (b *FileBackend) open(sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errSealedTooShort
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	return plaintext, nil
}
