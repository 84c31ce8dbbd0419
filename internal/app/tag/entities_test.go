package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string {
	return &s
}

func TestIsAnnotated(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		expected bool
	}{
		{"no flags", Request{}, false},
		{"message", Request{Message: strPtr("msg")}, true},
		{"empty message", Request{Message: strPtr("")}, true},
		{"sign", Request{Signed: True}, true},
		{"no-sign", Request{Signed: False}, false},
		{"signing key", Request{SigningKey: "ABCD"}, true},
		{"signing key and no-sign", Request{SigningKey: "ABCD", Signed: False}, true},
		{"annotate", Request{Annotated: True}, true},
		{"no-annotate with message", Request{Annotated: False, Message: strPtr("msg")}, false},
		{"no-annotate with sign", Request{Annotated: False, Signed: True, SigningKey: "ABCD"}, false},
		{"annotate with no-sign", Request{Annotated: True, Signed: False}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.req.IsAnnotated())
		})
	}
}

func TestIsSigned(t *testing.T) {
	assert.False(t, (&Request{}).IsSigned())
	assert.True(t, (&Request{Signed: True}).IsSigned())
	assert.False(t, (&Request{Signed: False}).IsSigned())
	assert.True(t, (&Request{SigningKey: "ABCD"}).IsSigned())
	assert.False(t, (&Request{SigningKey: "ABCD", Signed: False}).IsSigned())
	assert.False(t, (&Request{Message: strPtr("msg")}).IsSigned())
}

func TestTristateFromFlags(t *testing.T) {
	assert.Equal(t, Unset, TristateFromFlags(false, false))
	assert.Equal(t, True, TristateFromFlags(true, false))
	assert.Equal(t, False, TristateFromFlags(false, true))
	assert.Equal(t, "unset", Unset.String())
}

func TestMessageOrEmpty(t *testing.T) {
	assert.Equal(t, "", (&Request{}).MessageOrEmpty())
	assert.Equal(t, "foo\n", (&Request{Message: strPtr("foo\n")}).MessageOrEmpty())
}

func TestRefNames(t *testing.T) {
	assert.Equal(t, "refs/tags/v1.0.0", FullName("v1.0.0"))
	assert.Equal(t, "refs/tags/refs/tags/v1.0.0", FullName("refs/tags/v1.0.0"))
	assert.Equal(t, "foo/v1", Ref{Name: "refs/tags/foo/v1"}.ShortName())
}

func TestSignedMessage(t *testing.T) {
	assert.Equal(t, "", (&AnnotatedTag{}).SignedMessage())
	assert.Equal(t, "foo\n", (&AnnotatedTag{Message: "foo"}).SignedMessage())
	assert.Equal(t, "foo\n", (&AnnotatedTag{Message: "foo\n"}).SignedMessage())
}

func TestObjectID(t *testing.T) {
	assert.True(t, ObjectID("").IsZero())
	assert.True(t, ObjectID("0000000000000000000000000000000000000000").IsZero())
	id := ObjectID("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	assert.False(t, id.IsZero())
	assert.Equal(t, "4b825dc", id.Short())
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"v1.0.0", "foo/bar", "release-1", "a.b"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "@", "-v1", "/foo", "foo/", "foo.", "a..b", "a@{b", "a//b", "a b", "a~1", "a^", "a:b", "a?", "a*", "a[", "a\\b", ".foo", "foo/.bar", "foo.lock", "a\x01"} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidTagName, name)
	}
}
