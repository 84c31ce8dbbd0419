package gogit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/fabien-marty/git-tag/internal/app/tag"
)

var _ tag.RefStore = &Adapter{}
var _ tag.ObjectStore = &Adapter{}

// refCandidates are the rules used to expand a short reference name (see git rev-parse).
var refCandidates = []string{"%s", "refs/%s", "refs/tags/%s", "refs/heads/%s", "refs/remotes/%s", "refs/remotes/%s/HEAD"}

type AdapterOptions struct {
	LocalGitPath string // path of the working tree (or of the bare repository)
}

// Adapter implements the object store and the reference store with go-git.
type Adapter struct {
	repo   *git.Repository
	mu     sync.Mutex // serializes the compare-and-swap reference operations
	logger *slog.Logger
}

// NewAdapter creates an adapter on an already opened repository.
func NewAdapter(repo *git.Repository) *Adapter {
	return &Adapter{
		repo:   repo,
		logger: slog.Default().With("adapter", "gogit"),
	}
}

// Open opens the repository found at opts.LocalGitPath (a working tree with a .git
// directory or a bare repository).
func Open(opts AdapterOptions) (*Adapter, error) {
	path := opts.LocalGitPath
	if path == "" {
		path = "."
	}
	worktree := osfs.New(path)
	dotGit := worktree
	if info, err := worktree.Stat(git.GitDirName); err == nil && info.IsDir() {
		dotGit, err = worktree.Chroot(git.GitDirName)
		if err != nil {
			return nil, fmt.Errorf("can't open the git directory of %s: %w", path, err)
		}
	} else {
		worktree = nil // bare repository
	}
	st := filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault())
	repo, err := git.Open(st, worktree)
	if err != nil {
		return nil, fmt.Errorf("can't open the git repository %s: %w", path, err)
	}
	return NewAdapter(repo), nil
}

// Identity returns the tagger identity configured in the git configuration (user.name / user.email).
func (r *Adapter) Identity() tag.Identity {
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		r.logger.Debug("can't read the git configuration", slog.String("err", err.Error()))
		return tag.Identity{}
	}
	return tag.Identity{Name: cfg.User.Name, Email: cfg.User.Email}
}

// ConfigOption returns the value of a git configuration option (for example: user.signingkey).
func (r *Adapter) ConfigOption(section string, option string) string {
	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return ""
	}
	return cfg.Raw.Section(section).Option(option)
}

func toHash(id tag.ObjectID) plumbing.Hash {
	return plumbing.NewHash(string(id))
}

func toObjectType(t plumbing.ObjectType) tag.ObjectType {
	return tag.ObjectType(t.String())
}

func (r *Adapter) object(h plumbing.Hash) (*tag.Object, error) {
	obj, err := r.repo.Storer.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return nil, err
	}
	return &tag.Object{ID: tag.ObjectID(obj.Hash().String()), Type: toObjectType(obj.Type())}, nil
}

func (r *Adapter) resolveReference(revision string) (*plumbing.Hash, bool) {
	for _, candidate := range refCandidates {
		ref, err := r.repo.Reference(plumbing.ReferenceName(fmt.Sprintf(candidate, revision)), true)
		if err == nil {
			h := ref.Hash()
			return &h, true
		}
	}
	return nil, false
}

// ResolveToAny resolves the revision to an object: full object names and reference names
// are not peeled (a tag name resolves to the annotated tag object), other revisions
// (short names, HEAD~1...) are resolved by go-git.
func (r *Adapter) ResolveToAny(revision string) (*tag.Object, error) {
	logger := r.logger.With(slog.String("revision", revision))
	if plumbing.IsHash(revision) {
		obj, err := r.object(plumbing.NewHash(revision))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", tag.ErrUnresolvableTarget, revision, err)
		}
		return obj, nil
	}
	h, ok := r.resolveReference(revision)
	if !ok {
		logger.Debug("not a reference => let's ask go-git")
		var err error
		h, err = r.repo.ResolveRevision(plumbing.Revision(revision))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", tag.ErrUnresolvableTarget, revision, err)
		}
	}
	obj, err := r.object(*h)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tag.ErrUnresolvableTarget, revision, err)
	}
	logger.Debug("revision resolved", slog.String("object", obj.ID.String()), slog.String("type", string(obj.Type)))
	return obj, nil
}

// toGoGitTag converts the tag, signed is true for the payload and the object of a signed tag.
func toGoGitTag(t *tag.AnnotatedTag, signed bool) (*object.Tag, error) {
	targetType, err := plumbing.ParseObjectType(string(t.TargetType))
	if err != nil {
		return nil, err
	}
	gt := &object.Tag{
		Name: t.Name,
		Tagger: object.Signature{
			Name:  t.Tagger.Name,
			Email: t.Tagger.Email,
			When:  t.Tagger.When,
		},
		Message:    t.Message,
		TargetType: targetType,
		Target:     toHash(t.Target),
	}
	if signed {
		gt.Message = t.SignedMessage()
		gt.PGPSignature = string(t.Signature)
	}
	return gt, nil
}

func (r *Adapter) TagPayload(t *tag.AnnotatedTag) ([]byte, error) {
	gt, err := toGoGitTag(t, true)
	if err != nil {
		return nil, err
	}
	obj := &plumbing.MemoryObject{}
	if err := gt.EncodeWithoutSignature(obj); err != nil {
		return nil, err
	}
	reader, err := obj.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func (r *Adapter) WriteAnnotatedTag(t *tag.AnnotatedTag) (tag.ObjectID, error) {
	gt, err := toGoGitTag(t, t.IsSigned())
	if err != nil {
		return "", err
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := gt.Encode(obj); err != nil {
		return "", err
	}
	h, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", err
	}
	return tag.ObjectID(h.String()), nil
}

func (r *Adapter) Resolve(name string) (tag.ObjectID, error) {
	ref, err := r.repo.Storer.Reference(plumbing.ReferenceName(name))
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", tag.ErrRefNotFound
	} else if err != nil {
		return "", err
	}
	return tag.ObjectID(ref.Hash().String()), nil
}

func (r *Adapter) ListRefs(prefix string) ([]tag.Ref, error) {
	iter, err := r.repo.Storer.IterReferences()
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	res := []tag.Ref{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference || !strings.HasPrefix(ref.Name().String(), prefix) {
			return nil
		}
		res = append(res, tag.Ref{Name: ref.Name().String(), Target: tag.ObjectID(ref.Hash().String())})
		return nil
	})
	if err != nil && err != storer.ErrStop {
		return nil, err
	}
	return res, nil
}

func (r *Adapter) Update(name string, oldValue tag.ObjectID, newValue tag.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	refName := plumbing.ReferenceName(name)
	current, err := r.repo.Storer.Reference(refName)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		current = nil
	} else if err != nil {
		return err
	}
	if oldValue.IsZero() && current != nil {
		return tag.ErrRefConflict
	}
	if !oldValue.IsZero() && (current == nil || current.Hash() != toHash(oldValue)) {
		return tag.ErrRefConflict
	}
	newRef := plumbing.NewHashReference(refName, toHash(newValue))
	err = r.repo.Storer.CheckAndSetReference(newRef, current)
	if errors.Is(err, storage.ErrReferenceHasChanged) {
		return tag.ErrRefConflict
	}
	return err
}

func (r *Adapter) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	refName := plumbing.ReferenceName(name)
	_, err := r.repo.Storer.Reference(refName)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return tag.ErrRefNotFound
	} else if err != nil {
		return err
	}
	return r.repo.Storer.RemoveReference(refName)
}
