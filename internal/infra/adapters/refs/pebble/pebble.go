package refspebble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/fabien-marty/git-tag/internal/app/tag"
)

var _ tag.RefStore = &Adapter{}

type AdapterOptions struct {
	Path     string // directory of the database
	InMemory bool   // if true, Path is ignored and nothing is written to disk
}

// Adapter stores references in a pebble database (key: reference name, value: object id).
type Adapter struct {
	db     *pebble.DB
	mu     sync.Mutex // serializes the compare-and-swap operations
	logger *slog.Logger
}

func NewAdapter(opts AdapterOptions) (*Adapter, error) {
	pebbleOpts := &pebble.Options{}
	path := opts.Path
	if opts.InMemory {
		pebbleOpts.FS = vfs.NewMem()
		path = ""
	}
	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("can't open the pebble database %s: %w", path, err)
	}
	return &Adapter{
		db:     db,
		logger: slog.Default().With("adapter", "pebble", "path", path),
	}, nil
}

func (r *Adapter) Close() error {
	return r.db.Close()
}

func (r *Adapter) get(name string) (tag.ObjectID, error) {
	value, closer, err := r.db.Get([]byte(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", tag.ErrRefNotFound
	} else if err != nil {
		return "", err
	}
	defer closer.Close()
	return tag.ObjectID(string(value)), nil
}

func (r *Adapter) Resolve(name string) (tag.ObjectID, error) {
	return r.get(name)
}

// upperBound returns the smallest key greater than all the keys starting with prefix.
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // no upper bound
}

func (r *Adapter) ListRefs(prefix string) ([]tag.Ref, error) {
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, err
	}
	res := []tag.Ref{}
	for iter.First(); iter.Valid(); iter.Next() {
		res = append(res, tag.Ref{Name: string(iter.Key()), Target: tag.ObjectID(string(iter.Value()))})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Adapter) Update(name string, oldValue tag.ObjectID, newValue tag.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, err := r.get(name)
	if errors.Is(err, tag.ErrRefNotFound) {
		current = ""
	} else if err != nil {
		return err
	}
	if current != oldValue && !(current.IsZero() && oldValue.IsZero()) {
		r.logger.Debug("compare-and-swap failed", slog.String("ref", name), slog.String("current", current.String()), slog.String("expected", oldValue.String()))
		return tag.ErrRefConflict
	}
	return r.db.Set([]byte(name), []byte(newValue), pebble.Sync)
}

func (r *Adapter) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.get(name); err != nil {
		return err
	}
	return r.db.Delete([]byte(name), pebble.Sync)
}
