package tag

import "errors"

var (
	// ErrRefNotFound is returned by RefStore adapters when the reference does not exist.
	ErrRefNotFound = errors.New("reference not found")
	// ErrRefConflict is returned by RefStore adapters when a compare-and-swap fails.
	ErrRefConflict = errors.New("reference has changed")
)

// RefStore is the interface that must be implemented by reference storage adapters.
// All operations must be atomic per reference.
type RefStore interface {
	// Resolve returns the value of the given (fully qualified) reference or ErrRefNotFound.
	Resolve(name string) (ObjectID, error)

	// ListRefs returns all references whose name starts with prefix.
	ListRefs(prefix string) ([]Ref, error)

	// Update sets the reference to newValue if its current value is oldValue.
	// A zero oldValue means that the reference must not exist.
	// It returns ErrRefConflict if the current value is not the expected one.
	Update(name string, oldValue ObjectID, newValue ObjectID) error

	// Delete removes the reference or returns ErrRefNotFound.
	Delete(name string) error
}

// ObjectStore is the interface that must be implemented by object database adapters.
type ObjectStore interface {
	// ResolveToAny resolves a revision (full or short object name, reference name...)
	// to an object without peeling it. It returns an error wrapping ErrUnresolvableTarget
	// if the revision can't be resolved.
	ResolveToAny(revision string) (*Object, error)

	// TagPayload returns the canonical encoding of the tag without its signature
	// (this is what a signature covers). The message is encoded with SignedMessage.
	TagPayload(tag *AnnotatedTag) ([]byte, error)

	// WriteAnnotatedTag writes the tag object and returns its id. The signature (if any)
	// is appended verbatim to the TagPayload encoding.
	WriteAnnotatedTag(tag *AnnotatedTag) (ObjectID, error)
}

// Signer is the interface that must be implemented by signing adapters.
type Signer interface {
	// Sign returns an armored detached signature of payload made with the given key
	// (empty keyID => default key).
	Sign(payload []byte, keyID string) ([]byte, error)
}
