// Package cache is the local key/value store holding the folder and file collections.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Well-known keys
const (
	KeyFolders     = "folders"
	filesKeyPrefix = "files:"
)

// FilesKey returns the key holding the files of the given folder
func FilesKey(folderLocalID string) string {
	return filesKeyPrefix + folderLocalID
}

// Store is a byte-oriented key/value store. A missing key is reported by
// ok == false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// GetJSON loads key from s and decodes it into dst
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
