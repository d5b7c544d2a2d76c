// Package storage defines the blob store that holds uploaded attachments.
package storage

import "io"

// Top-level subtrees of the uploads root.
const (
	NotesDir = "notes"
	TempDir  = "temp"
)

// DeleteResult is the outcome of a delete.
type DeleteResult int

const (
	Deleted DeleteResult = iota
	AlreadyAbsent
	Failed
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case AlreadyAbsent:
		return "already_absent"
	default:
		return "failed"
	}
}

// Provider is the interface for blob operations. Paths are relative to the
// uploads root and use forward slashes.
type Provider interface {
	List(dir string) ([]FileInfo, error)
	Read(path string) ([]byte, error)
	Exists(path string) (bool, error)
	Write(path string, content []byte) error
	WriteStream(path string, r io.Reader) (int64, error)
	// Delete never returns an error unless the result is Failed.
	Delete(path string) (DeleteResult, error)
	Move(oldPath, newPath string) error
	RemoveDirIfEmpty(dir string) error
}

var _ Provider = (*FS)(nil)
