package tag

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const defaultTarget = "HEAD"

// Service creates, deletes and lists tags on top of a ref store and an object store.
// It doesn't hold any mutable state: consistency is delegated to the ref store
// compare-and-swap primitive.
type Service struct {
	refs    RefStore
	objects ObjectStore
	signer  Signer // can be nil (signing requests will fail)
	tagger  Identity
	logger  *slog.Logger
}

// New creates a new Service. tagger is the default identity used for annotated tags
// (a zero When means "now").
func New(refs RefStore, objects ObjectStore, signer Signer, tagger Identity) *Service {
	return &Service{
		refs:    refs,
		objects: objects,
		signer:  signer,
		tagger:  tagger,
		logger:  slog.With("name", "tagService"),
	}
}

func (s *Service) getTagger(req *Request) Identity {
	tagger := s.tagger
	if req.Tagger != nil {
		tagger = *req.Tagger
	}
	if tagger.When.IsZero() {
		tagger.When = time.Now()
	}
	return tagger
}

// writeAnnotatedTag writes the annotated tag object (signed if requested) and returns its id.
func (s *Service) writeAnnotatedTag(req *Request, target *Object, logger *slog.Logger) (ObjectID, error) {
	annotated := &AnnotatedTag{
		Name:       req.Name,
		Target:     target.ID,
		TargetType: target.Type,
		Tagger:     s.getTagger(req),
		Message:    req.MessageOrEmpty(),
	}
	if req.IsSigned() {
		if s.signer == nil {
			return "", errors.New("a signature is requested but no signer is configured")
		}
		payload, err := s.objects.TagPayload(annotated)
		if err != nil {
			return "", fmt.Errorf("can't encode the tag %s: %w", req.Name, err)
		}
		signature, err := s.signer.Sign(payload, req.SigningKey)
		if err != nil {
			return "", fmt.Errorf("can't sign the tag %s: %w", req.Name, err)
		}
		annotated.Signature = signature
		logger.Debug("tag signed", slog.String("signingKey", req.SigningKey))
	}
	id, err := s.objects.WriteAnnotatedTag(annotated)
	if err != nil {
		return "", fmt.Errorf("can't write the tag object %s: %w", req.Name, err)
	}
	logger.Debug("annotated tag object written", slog.String("id", id.String()))
	return id, nil
}

// updateRef creates (or, with forceUpdate, moves) the reference to newValue.
func (s *Service) updateRef(name string, newValue ObjectID, forceUpdate bool, logger *slog.Logger) error {
	fullName := FullName(name)
	oldValue, err := s.refs.Resolve(fullName)
	if errors.Is(err, ErrRefNotFound) {
		oldValue = ""
	} else if err != nil {
		return fmt.Errorf("can't read the reference %s: %w", fullName, err)
	} else if !forceUpdate {
		return fmt.Errorf("%w: %s", ErrTagAlreadyExists, name)
	}
	err = s.refs.Update(fullName, oldValue, newValue)
	if errors.Is(err, ErrRefConflict) {
		logger.Debug("the reference changed between read and write", slog.String("expected", oldValue.String()))
		return fmt.Errorf("%w: %s", ErrConcurrentModification, name)
	} else if err != nil {
		return fmt.Errorf("can't update the reference %s: %w", fullName, err)
	}
	return nil
}

// CreateOrUpdate creates the tag described by the request (lightweight, annotated or signed)
// and returns the resulting reference.
// Returned errors wrap ErrInvalidTagName, ErrUnresolvableTarget, ErrTagAlreadyExists
// or ErrConcurrentModification. A failed reference update can leave an unreferenced
// tag object behind, never a half-updated reference.
func (s *Service) CreateOrUpdate(req Request) (*Ref, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	revision := req.Target
	if revision == "" {
		revision = defaultTarget
	}
	logger := s.logger.With(slog.String("tag", req.Name), slog.String("target", revision))
	target, err := s.objects.ResolveToAny(revision)
	if err != nil {
		if errors.Is(err, ErrUnresolvableTarget) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnresolvableTarget, revision, err)
	}
	logger = logger.With(slog.String("object", target.ID.String()), slog.String("type", string(target.Type)))
	newValue := target.ID
	if req.IsAnnotated() {
		logger.Debug("annotated tag", slog.String("annotate", req.Annotated.String()), slog.String("sign", req.Signed.String()))
		newValue, err = s.writeAnnotatedTag(&req, target, logger)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Debug("lightweight tag", slog.String("annotate", req.Annotated.String()))
	}
	if err := s.updateRef(req.Name, newValue, req.ForceUpdate, logger); err != nil {
		return nil, err
	}
	logger.Debug("tag reference updated", slog.Bool("force", req.ForceUpdate))
	return &Ref{Name: FullName(req.Name), Target: newValue}, nil
}

// Delete deletes the given tags and returns the names of the deleted ones.
// Names which don't exist (or are not valid tag names) are skipped; if none of them
// existed, ErrNoSuchTag is returned.
func (s *Service) Delete(names []string) ([]string, error) {
	deleted := []string{}
	alreadyDeleted := map[string]bool{}
	for _, name := range names {
		if alreadyDeleted[name] {
			continue
		}
		if err := ValidateName(name); err != nil {
			// can't be a tag (and must not escape the tag namespace)
			s.logger.Debug("invalid tag name => not found", slog.String("tag", name), slog.String("err", err.Error()))
			continue
		}
		err := s.refs.Delete(FullName(name))
		if errors.Is(err, ErrRefNotFound) {
			s.logger.Debug("tag not found => ignoring", slog.String("tag", name))
			continue
		} else if err != nil {
			return deleted, fmt.Errorf("can't delete the tag %s: %w", name, err)
		}
		alreadyDeleted[name] = true
		deleted = append(deleted, name)
	}
	if len(deleted) == 0 {
		return nil, ErrNoSuchTag
	}
	return deleted, nil
}

// List returns a snapshot of all tags sorted by (short) name.
func (s *Service) List() ([]Ref, error) {
	refs, err := s.refs.ListRefs(Prefix)
	if err != nil {
		return nil, fmt.Errorf("can't list the tags: %w", err)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ShortName() < refs[j].ShortName()
	})
	s.logger.Debug(fmt.Sprintf("%d tags found", len(refs)))
	return refs, nil
}
