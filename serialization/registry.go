package serialization

import (
	"fmt"
	"sort"
	"sync"

	"github.com/TpaBKa251/Hostel-Internal-Library/contracts"
)

// Registry holds codecs by name so configuration can refer to them.
type Registry struct {
	codecs map[string]Codec
	mu     sync.RWMutex
}

// NewRegistry creates an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[string]Codec),
	}
}

// Register adds a codec under name. Registering a name twice is an error.
func (r *Registry) Register(name string, codec Codec) error {
	if name == "" {
		return fmt.Errorf("%w: codec name cannot be empty", contracts.ErrValidation)
	}
	if codec == nil {
		return fmt.Errorf("%w: codec %q is nil", contracts.ErrValidation, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codecs[name]; exists {
		return fmt.Errorf("%w: codec %q already registered", contracts.ErrValidation, name)
	}
	r.codecs[name] = codec
	return nil
}

// Lookup returns the codec registered under name. An empty name selects fallback.
func (r *Registry) Lookup(name string, fallback Codec) (Codec, error) {
	if name == "" {
		return fallback, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: codec %q is not registered", contracts.ErrNotConfigured, name)
	}
	return codec, nil
}

// Names returns the registered codec names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
