package models

import (
	"errors"
	"fmt"
)

var (
	// ErrOverlap means a directory would nest with an existing registered root.
	ErrOverlap = errors.New("directory overlaps a registered directory")
	// ErrNotFound means the directory or record is not known.
	ErrNotFound = errors.New("not found")
	// ErrAuth means the credential is missing or was rejected by the remote service.
	ErrAuth = errors.New("apikey is missing or invalid")
	// ErrNetwork means the remote service could not be reached.
	ErrNetwork = errors.New("network error")
	// ErrRemoteService means the remote service answered with an error.
	ErrRemoteService = errors.New("remote service error")
	// ErrFileSystem covers unreadable sources, thumbnail writes and renames.
	ErrFileSystem = errors.New("filesystem error")
	// ErrIndexWrite means the vector store rejected or failed a write.
	ErrIndexWrite = errors.New("index write failed")
	// ErrInvalidInput means a request argument is malformed.
	ErrInvalidInput = errors.New("invalid input")
)

// OverlapError names the registered root a candidate collides with.
type OverlapError struct {
	Root     string
	Existing string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s overlaps registered directory %s", e.Root, e.Existing)
}

// Is makes errors.Is(err, ErrOverlap) hold.
func (e *OverlapError) Is(target error) bool {
	return target == ErrOverlap
}

// RemoteServiceError is a non-success answer from the embedding service.
type RemoteServiceError struct {
	Status int
	Body   string
}

func (e *RemoteServiceError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote service returned status %d", e.Status)
	}
	return fmt.Sprintf("remote service returned status %d: %s", e.Status, e.Body)
}

// Is makes errors.Is(err, ErrRemoteService) hold.
func (e *RemoteServiceError) Is(target error) bool {
	return target == ErrRemoteService
}
