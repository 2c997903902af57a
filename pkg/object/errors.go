package object

import "errors"

var (
	// ErrNotFound reports a digest absent from both loose and packed storage.
	ErrNotFound = errors.New("object not found")

	// ErrMalformedObject reports an object body that fails structural parse.
	ErrMalformedObject = errors.New("malformed object")

	// ErrTruncatedPack reports a pack stream whose framing does not add
	// up: fewer bytes than the header declares, undecoded leftovers, or a
	// trailer checksum that does not match.
	ErrTruncatedPack = errors.New("truncated pack")

	// ErrDeltaCorrupt reports malformed delta instructions, an out-of-range
	// copy, a bad base offset, or a delta dependency cycle.
	ErrDeltaCorrupt = errors.New("corrupt delta")

	// ErrUnresolvedBase reports a ref-delta whose base digest is absent from
	// both the pack and the store after resolution completes.
	ErrUnresolvedBase = errors.New("unresolved delta base")
)
