package schema

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownDirectory is returned when a directory id is not registered.
var ErrUnknownDirectory = errors.New("unknown directory")

// Registry holds the schema of every directory. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	directories map[string]*Directory // id -> directory
	order       []string              // registration order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		directories: make(map[string]*Directory),
	}
}

// Register validates a directory and adds it to the registry, replacing any
// directory with the same id. Missing ids are generated.
func (r *Registry) Register(d *Directory) error {
	return r.RegisterWith(d, nil)
}

// RegisterWith validates d as Register does and then calls persist before
// d becomes visible. If persist fails the registry is left unchanged.
func (r *Registry) RegisterWith(d *Directory, persist func(*Directory) error) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	for _, f := range d.Fields {
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		f.DirectoryID = d.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ValidateDirectory(d, r.existsLocked(d.ID)); err != nil {
		return err
	}
	if persist != nil {
		if err := persist(d); err != nil {
			return err
		}
	}
	if _, ok := r.directories[d.ID]; !ok {
		r.order = append(r.order, d.ID)
	}
	r.directories[d.ID] = d
	return nil
}

// RegisterAll registers directories that may reference one another. All of
// them are visible as relation targets while each is validated.
func (r *Registry) RegisterAll(dirs []*Directory) error {
	pending := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		pending[d.ID] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exists := func(id string) bool {
		if pending[id] {
			return true
		}
		_, ok := r.directories[id]
		return ok
	}

	var problems ConfigErrors
	for _, d := range dirs {
		for _, f := range d.Fields {
			if f.ID == "" {
				f.ID = uuid.New().String()
			}
			f.DirectoryID = d.ID
		}
		if err := ValidateDirectory(d, exists); err != nil {
			var ce ConfigErrors
			if errors.As(err, &ce) {
				problems = append(problems, ce...)
				continue
			}
			return err
		}
	}
	if len(problems) > 0 {
		return problems
	}

	for _, d := range dirs {
		if _, ok := r.directories[d.ID]; !ok {
			r.order = append(r.order, d.ID)
		}
		r.directories[d.ID] = d
	}
	return nil
}

func (r *Registry) existsLocked(self string) func(string) bool {
	return func(id string) bool {
		if id == self {
			return true
		}
		_, ok := r.directories[id]
		return ok
	}
}

// Directory returns the directory with the given id.
func (r *Registry) Directory(id string) (*Directory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.directories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDirectory, id)
	}
	return d, nil
}

// Directories returns all directories in registration order.
func (r *Registry) Directories() []*Directory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Directory, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.directories[id])
	}
	return out
}

// Fields returns a directory's fields in display order.
func (r *Registry) Fields(directoryID string) ([]*Field, error) {
	d, err := r.Directory(directoryID)
	if err != nil {
		return nil, err
	}
	return d.OrderedFields(), nil
}

// Field returns a single field of a directory, or nil.
func (r *Registry) Field(directoryID, fieldID string) *Field {
	d, err := r.Directory(directoryID)
	if err != nil {
		return nil
	}
	return d.Field(fieldID)
}
