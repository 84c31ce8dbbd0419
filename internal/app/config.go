package app

const (
	SortByRefName = "refname"
	SortByVersion = "version"

	DefaultListFormat = "{{ .Name }}"
)

// Config is the configuration of the application
type Config struct {
	ForceSignAnnotated bool   // if true, annotated tags are signed unless --no-sign is given (git tag.forceSignAnnotated)
	ListSort           string // sort order of the tag list (refname or version)
	ListFormat         string // golang template (with sprig functions) used to render each listed tag
}

func (c *Config) listSort() string {
	if c.ListSort == "" {
		return SortByRefName
	}
	return c.ListSort
}

func (c *Config) listFormat() string {
	if c.ListFormat == "" {
		return DefaultListFormat
	}
	return c.ListFormat
}
