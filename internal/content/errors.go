package content

import "errors"

// Sentinel errors for content discovery and loading.
var (
	// ErrContentDirNotFound indicates the configured content directory does not exist.
	ErrContentDirNotFound = errors.New("content directory not found")

	// ErrWalkFailed indicates traversal of the content directory failed.
	ErrWalkFailed = errors.New("content directory walk failed")

	// ErrFileReadFailed indicates reading a discovered document failed.
	ErrFileReadFailed = errors.New("content file read failed")

	// ErrFrontMatter indicates a document's front matter could not be parsed.
	ErrFrontMatter = errors.New("invalid front matter")

	// ErrNoRepository indicates the content directory is not inside a git repository.
	ErrNoRepository = errors.New("content is not in a git repository")

	// ErrPathCollision indicates two documents map to the same output page.
	ErrPathCollision = errors.New("output path collision")
)
