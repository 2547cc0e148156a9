package filemanager

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Storage names used by the thumbnail binding.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

var (
	// ErrStorageExists is returned when a name is registered twice
	ErrStorageExists = fmt.Errorf("%w: storage already registered", ErrConfiguration)
	// ErrNilStorage is returned when registering a nil storage
	ErrNilStorage = errors.New("storage cannot be nil")
)

// Registry maps names to configured storages. It is built once at startup
// and passed to the components that need to look storages up.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	storages map[string]Storage
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		storages: make(map[string]Storage),
	}
}

// Register adds s under s.Name().
func (r *Registry) Register(s Storage) error {
	if s == nil {
		return ErrNilStorage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.storages[s.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrStorageExists, s.Name())
	}
	r.storages[s.Name()] = s
	return nil
}

// Get returns the storage registered under name.
func (r *Registry) Get(name string) (Storage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.storages[name]
	if !ok {
		return nil, NewPathError("registry", name, LabelStorageNotRegistered, ErrStorageNotRegistered)
	}
	return s, nil
}

// MustGet is like Get but panics when name is not registered.
func (r *Registry) MustGet(name string) Storage {
	s, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.storages))
	for name := range r.storages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the resources held by registered storages, such as file
// system watchers. All storages are closed; the errors are joined.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for name, s := range r.storages {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close storage %q: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
