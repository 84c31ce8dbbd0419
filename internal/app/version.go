package app

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the semantic version read from a tag name.
type Version struct {
	Name   string          // tag name (without modification)
	Semver *semver.Version // semver version read from tag name (nil if the tag name is not in the expected format)
	Prefix string          // Prefix read before the semver version
}

// NewVersion parses the name to extract the semantic version of the tag:
// if the tag name has a prefix "v", the prefix will be removed before parsing the version,
// if the tag name is in the form foo/v1.2.3, the prefix part ("foo/") will be removed before parsing
// If the name is not in the expected format, the Semver field of the returned Version will be nil.
func NewVersion(name string) *Version {
	prefix := ""
	nameWithoutPrefix := name
	if strings.Contains(nameWithoutPrefix, "/") {
		tmp := strings.Split(nameWithoutPrefix, "/")
		nameWithoutPrefix = tmp[len(tmp)-1]
		prefix = strings.Join(tmp[:len(tmp)-1], "/") + "/"
	}
	if strings.HasPrefix(nameWithoutPrefix, "v") {
		prefix += "v"
		nameWithoutPrefix = strings.TrimPrefix(nameWithoutPrefix, "v")
	}
	version, err := semver.NewVersion(nameWithoutPrefix)
	if err != nil {
		version = nil
	}
	return &Version{
		Name:   name,
		Semver: version,
		Prefix: prefix,
	}
}

// LessThan returns true if v1 sorts before v2.
// Non semantic names sort first (by name), then semantic versions by precedence
// (and by name if they are equal).
func (v1 *Version) LessThan(v2 *Version) bool {
	if v1.Semver == nil && v2.Semver == nil {
		return v1.Name < v2.Name
	}
	if v1.Semver == nil {
		return true
	}
	if v2.Semver == nil {
		return false
	}
	if v1.Semver.Equal(v2.Semver) {
		return v1.Name < v2.Name
	}
	return v1.Semver.LessThan(v2.Semver)
}
