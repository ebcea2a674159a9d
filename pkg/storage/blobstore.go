package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SavedBlob describes a stored (or re-encountered) content blob.
type SavedBlob struct {
	Hash           string
	Locator        string
	SizeBytes      int64
	AlreadyExisted bool
}

// BlobStore writes immutable blobs keyed by their content hash under
// <baseDir>/.blobs/<sha256>. Saving identical bytes twice returns the
// same locator without rewriting.
type BlobStore struct {
	baseDir string
}

// NewBlobStore ensures the blob directory exists and returns a handle.
func NewBlobStore(baseDir string) (*BlobStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("blob store base dir required")
	}
	if err := os.MkdirAll(filepath.Join(baseDir, ".blobs"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// Save writes data under its content hash. Idempotent: if the blob file
// already exists the bytes are not rewritten.
func (s *BlobStore) Save(data []byte) (SavedBlob, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	path := filepath.Join(s.baseDir, ".blobs", digest)

	if info, err := os.Stat(path); err == nil {
		return SavedBlob{Hash: digest, Locator: path, SizeBytes: info.Size(), AlreadyExisted: true}, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return SavedBlob{}, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return SavedBlob{}, fmt.Errorf("publish blob: %w", err)
	}

	return SavedBlob{Hash: digest, Locator: path, SizeBytes: int64(len(data))}, nil
}

// Open returns a read-only handle for a stored blob.
func (s *BlobStore) Open(locator string) (*os.File, error) {
	file, err := os.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

// Remove deletes a blob file if present.
func (s *BlobStore) Remove(locator string) error {
	if err := os.Remove(locator); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// Path exposes the base directory (backup runs archive it wholesale).
func (s *BlobStore) Path() string {
	return s.baseDir
}

// SafeFilename strips path separators and shell-unfriendly characters
// from a user-supplied name.
func SafeFilename(name string) string {
	replacer := strings.NewReplacer(
		"..", "_", "/", "_", "\\", "_", "\x00", "_",
		":", "_", "*", "_", "?", "_", `"`, "_",
		"<", "_", ">", "_", "|", "_",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		return "file.bin"
	}
	return cleaned
}
