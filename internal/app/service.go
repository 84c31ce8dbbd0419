package app

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/fabien-marty/git-tag/internal/app/tag"
	"github.com/gobwas/glob"
)

// Service is the main application service
type Service struct {
	config Config
	tags   *tag.Service
	logger *slog.Logger
}

// NewService creates a new Service
func NewService(config Config, refs tag.RefStore, objects tag.ObjectStore, signer tag.Signer, tagger tag.Identity) *Service {
	return &Service{
		config: config,
		tags:   tag.New(refs, objects, signer, tagger),
		logger: slog.Default(),
	}
}

// CreateTag creates (or updates) a tag.
// When ForceSignAnnotated is configured, a request which already produces an annotated tag
// and doesn't say anything about signing is turned into a signed one
// (a request for a lightweight tag is never promoted).
func (s *Service) CreateTag(req tag.Request) (*tag.Ref, error) {
	if s.config.ForceSignAnnotated && req.Signed == tag.Unset && req.IsAnnotated() {
		s.logger.Debug("annotated tag and forceSignAnnotated is set => let's sign it", slog.String("tag", req.Name))
		req.Signed = tag.True
	}
	return s.tags.CreateOrUpdate(req)
}

// DeleteTags deletes the given tags and returns the deleted ones
// (tag.ErrNoSuchTag if none of them existed).
func (s *Service) DeleteTags(names []string) ([]string, error) {
	return s.tags.Delete(names)
}

// ListTags returns the tags matching at least one of the given glob patterns
// (all the tags if patterns is empty), sorted by the configured sort order.
func (s *Service) ListTags(patterns []string) ([]tag.Ref, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("can't compile the pattern %s: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	refs, err := s.tags.List()
	if err != nil {
		return nil, err
	}
	if len(globs) > 0 {
		refs = slices.DeleteFunc(refs, func(ref tag.Ref) bool {
			for _, g := range globs {
				if g.Match(ref.ShortName()) {
					return false
				}
			}
			s.logger.Debug("tag doesn't match the patterns => ignoring", slog.String("name", ref.ShortName()))
			return true
		})
	}
	switch s.config.listSort() {
	case SortByRefName:
		// already sorted by the tag service
	case SortByVersion:
		sort.SliceStable(refs, func(i, j int) bool {
			return NewVersion(refs[i].ShortName()).LessThan(NewVersion(refs[j].ShortName()))
		})
	default:
		return nil, fmt.Errorf("unknown sort order: %s", s.config.ListSort)
	}
	return refs, nil
}

// RefView is the object given to the list format template.
type RefView struct {
	Name    string // short tag name
	RefName string // fully qualified reference name
	Object  string // object name the reference points to
	Version *Version
}

// FormatRefs renders the given refs with the configured list format (one line per ref).
func (s *Service) FormatRefs(refs []tag.Ref) (string, error) {
	tmpl, err := template.New("format").Funcs(sprig.TxtFuncMap()).Parse(s.config.listFormat())
	if err != nil {
		return "", fmt.Errorf("can't parse the template: %w", err)
	}
	var out bytes.Buffer
	for _, ref := range refs {
		view := RefView{
			Name:    ref.ShortName(),
			RefName: ref.Name,
			Object:  ref.Target.String(),
			Version: NewVersion(ref.ShortName()),
		}
		if err := tmpl.Execute(&out, view); err != nil {
			return "", fmt.Errorf("can't execute the template: %w on ref: %+v", err, view)
		}
		out.WriteString("\n")
	}
	return out.String(), nil
}
