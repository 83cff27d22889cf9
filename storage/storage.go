// Package storage holds the byte stores the lock server keeps file contents
// in. Every provider stores whole blobs addressed by "machine:file" paths.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Backend is the whole-blob store behind the file operations.
type Backend interface {
	// ReadAll returns the full content at path, or an error wrapping
	// ErrNotFound if nothing was ever written there.
	ReadAll(ctx context.Context, path string) ([]byte, error)
	// WriteAll replaces the full content at path.
	WriteAll(ctx context.Context, path string, data []byte) error
	// List returns every stored path in lexical order.
	List(ctx context.Context) ([]string, error)
}

// Path builds the storage path of a file that belongs to a client machine.
func Path(machineName, fileName string) string {
	return machineName + ":" + fileName
}
