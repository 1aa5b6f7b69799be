// Package rbmerr defines the random-block manager's error taxonomy.
//
// Every exported error here is a sentinel kind, not a concrete failure;
// wrap it with fmt.Errorf("...: %w", rbmerr.ErrIO) the way the rest of this
// module does, and test with errors.Is.
package rbmerr

import "errors"

var (
	// ErrNotFound: no valid superblock at the expected address, or the
	// device path does not exist.
	ErrNotFound = errors.New("rbm: not found")

	// ErrIO: a generic device read/write failure, including a bitmap or
	// superblock CRC mismatch.
	ErrIO = errors.New("rbm: io error")

	// ErrRange: an address or length fell outside [0, end-start).
	ErrRange = errors.New("rbm: address out of range")

	// ErrNoSpace: the allocator could not satisfy the requested size.
	ErrNoSpace = errors.New("rbm: no space left")

	// ErrInvalidConfig: mkfs was given a nonsensical geometry.
	ErrInvalidConfig = errors.New("rbm: invalid configuration")
)
