// Package publish commits rendered pages to the site repository and keeps
// its index and feed in sync.
package publish

import (
	"context"
	"errors"
)

var (
	// ErrAtomicUnsupported is returned by CommitFiles when the backend cannot
	// write several files in one commit.
	ErrAtomicUnsupported = errors.New("publish: atomic commit not supported")
	// ErrNotFound is returned for missing files and directories.
	ErrNotFound = errors.New("publish: not found")
)

// File is one file of a commit.
type File struct {
	Path    string
	Content []byte
}

// ReviewRequest describes a change proposed through a pull request.
type ReviewRequest struct {
	Base      string
	Head      string
	Title     string
	Body      string
	Message   string
	Files     []File
	AutoMerge bool
}

// Repository is what the publisher needs from the site repository.
type Repository interface {
	ReadFile(ctx context.Context, branch, path string) ([]byte, error)
	// ListDir returns the paths of the files directly under dir.
	ListDir(ctx context.Context, branch, dir string) ([]string, error)
	CommitFiles(ctx context.Context, branch, message string, files []File) error
	// PutFile creates path or updates it in place.
	PutFile(ctx context.Context, branch, message string, file File) error
	// OpenReview pushes the files to a new branch and opens a pull request.
	// It returns the pull request URL.
	OpenReview(ctx context.Context, req ReviewRequest) (string, error)
}
