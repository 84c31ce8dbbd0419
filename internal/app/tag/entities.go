package tag

import (
	"errors"
	"strings"
	"time"
)

// Prefix is the namespace of tag references.
const Prefix = "refs/tags/"

var (
	ErrUnresolvableTarget     = errors.New("can't resolve the target to an object")
	ErrTagAlreadyExists       = errors.New("tag already exists")
	ErrNoSuchTag              = errors.New("no such tag")
	ErrConcurrentModification = errors.New("tag was modified concurrently")
	ErrInvalidTagName         = errors.New("invalid tag name")
)

// Tristate is an optional boolean: it can be explicitly true, explicitly false or not set at all.
type Tristate int

const (
	Unset Tristate = iota
	True
	False
)

// TristateFromFlags returns True if yes is set, False if no is set and Unset otherwise.
// Setting both is a caller error and must be rejected before.
func TristateFromFlags(yes bool, no bool) Tristate {
	if yes {
		return True
	}
	if no {
		return False
	}
	return Unset
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unset"
	}
}

// ObjectID is the hexadecimal name of a git object.
type ObjectID string

func (id ObjectID) IsZero() bool {
	return id == "" || strings.Trim(string(id), "0") == ""
}

func (id ObjectID) String() string {
	return string(id)
}

// Short returns the abbreviated (7 chars) object name.
func (id ObjectID) Short() string {
	if len(id) <= 7 {
		return string(id)
	}
	return string(id[:7])
}

type ObjectType string

const (
	CommitObject ObjectType = "commit"
	TreeObject   ObjectType = "tree"
	BlobObject   ObjectType = "blob"
	TagObject    ObjectType = "tag"
)

// Object is a resolved object of the object store.
type Object struct {
	ID   ObjectID
	Type ObjectType
}

// Identity is the tagger of an annotated tag.
type Identity struct {
	Name  string
	Email string
	When  time.Time
}

// AnnotatedTag is a tag object: it references the real target and carries
// the tagger, the message and the (optional) signature.
type AnnotatedTag struct {
	Name       string     // short tag name
	Target     ObjectID   // tagged object
	TargetType ObjectType // type of the tagged object
	Tagger     Identity
	Message    string
	Signature  []byte // armored signature (nil if the tag is not signed)
}

// IsSigned returns true if the tag carries a signature.
func (t *AnnotatedTag) IsSigned() bool {
	return len(t.Signature) > 0
}

// SignedMessage returns the message as encoded in front of a signature: a non empty
// message is terminated by a newline so that the signature starts on its own line.
// Object stores must use it both for the signed payload and for the signed object.
func (t *AnnotatedTag) SignedMessage() string {
	if t.Message == "" || strings.HasSuffix(t.Message, "\n") {
		return t.Message
	}
	return t.Message + "\n"
}

// Ref is a reference of the ref store.
type Ref struct {
	Name   string   // fully qualified name (refs/tags/v1.0.0)
	Target ObjectID // tagged object or annotated tag object
}

// ShortName returns the name of the reference without the tag namespace.
func (r Ref) ShortName() string {
	return strings.TrimPrefix(r.Name, Prefix)
}

// FullName returns the fully qualified reference name of the given (short) tag name.
// The name is always prefixed: "refs/tags/x" designates the tag "refs/tags/refs/tags/x".
func FullName(name string) string {
	return Prefix + name
}

// Request is a tag creation (or update) request.
type Request struct {
	Name        string    // short tag name
	Target      string    // revision to tag (empty => HEAD)
	Message     *string   // tag message (nil if not given)
	Annotated   Tristate  // annotate flag
	ForceUpdate bool      // replace an existing tag
	Signed      Tristate  // sign flag
	SigningKey  string    // signing key id (empty => default key)
	Tagger      *Identity // tagger override (nil => service default)
}

// IsAnnotated decides whether the request produces an annotated tag.
// An explicit annotate flag always wins; when it is not set, the tag is
// annotated iff a message, an explicit sign flag or a signing key is given.
func (r *Request) IsAnnotated() bool {
	switch r.Annotated {
	case True:
		return true
	case False:
		return false
	}
	return r.Message != nil || r.Signed == True || r.SigningKey != ""
}

// IsSigned decides whether the request asks for a signature.
// A signing key without any sign flag is a signing request.
func (r *Request) IsSigned() bool {
	switch r.Signed {
	case True:
		return true
	case False:
		return false
	}
	return r.SigningKey != ""
}

// MessageOrEmpty returns the message (an absent message is an empty string).
func (r *Request) MessageOrEmpty() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}
