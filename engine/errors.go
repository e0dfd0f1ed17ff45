package engine

import "errors"

// Error kinds surfaced across the engine boundary. Adapters match on these
// with errors.Is and report the kind plus the offending path or checksum,
// never an internal trace.
var (
	// ErrPathNotFound means the requested filesystem path does not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrSnapshotNotFound means no snapshot exists for the given path.
	ErrSnapshotNotFound = errors.New("no snapshot found")

	// ErrChecksumNotFound means a checksum prefix matched nothing.
	ErrChecksumNotFound = errors.New("checksum not found")

	// ErrAmbiguousChecksum means a checksum prefix matched more than one
	// stored checksum.
	ErrAmbiguousChecksum = errors.New("ambiguous checksum prefix")

	// ErrBlobNotFound means a referenced blob is missing from the content
	// store. This is a store integrity violation, not a user error.
	ErrBlobNotFound = errors.New("blob not found in content store")

	// ErrWalkDepth means a tree walk exceeded the depth bound or revisited
	// a directory, which would otherwise loop forever.
	ErrWalkDepth = errors.New("tree walk exceeded depth limit")
)
