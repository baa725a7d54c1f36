package plugin

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Rejection records a factory the registry refused.
type Rejection struct {
	Name string
	Err  error
}

// Registry holds the accepted plugin descriptors in load order.
type Registry struct {
	mu       sync.Mutex
	plugins  []*Descriptor
	byShort  map[string]*Descriptor
	rejected []Rejection
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{byShort: make(map[string]*Descriptor), logger: logger}
}

// Load calls factory and registers the descriptor it returns. A descriptor
// whose magic does not match its ABI is rejected with ErrABIMismatch and
// none of its functions is ever invoked.
func (r *Registry) Load(factory Factory) (*Descriptor, error) {
	desc, err := callFactory(factory)
	if err == nil {
		err = desc.validate()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		if _, dup := r.byShort[desc.ShortName]; dup {
			err = fmt.Errorf("%w: %s", ErrDuplicatePlugin, desc.ShortName)
		}
	}
	if err != nil {
		name := "unknown"
		if desc != nil && desc.Name != "" {
			name = desc.Name
		}
		r.rejected = append(r.rejected, Rejection{Name: name, Err: err})
		r.logger.Warn("plugin: rejected", "plugin", name, "error", err)
		return nil, err
	}

	r.plugins = append(r.plugins, desc)
	r.byShort[desc.ShortName] = desc
	r.logger.Info("plugin: loaded", "plugin", desc.Name, "short_name", desc.ShortName, "abi", desc.ABI.String())
	return desc, nil
}

func callFactory(factory Factory) (desc *Descriptor, err error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidDescriptor)
	}
	defer func() {
		if r := recover(); r != nil {
			desc, err = nil, fmt.Errorf("%w: factory panicked: %v", ErrInvalidDescriptor, r)
		}
	}()
	desc = factory()
	if desc == nil {
		return nil, fmt.Errorf("%w: factory returned nil", ErrInvalidDescriptor)
	}
	return desc, nil
}

// Plugins returns the accepted descriptors in load order.
func (r *Registry) Plugins() []*Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Descriptor(nil), r.plugins...)
}

// Lookup returns the descriptor registered under shortName.
func (r *Registry) Lookup(shortName string) (*Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byShort[shortName]
	return d, ok
}

// Rejected returns every refused factory.
func (r *Registry) Rejected() []Rejection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Rejection(nil), r.rejected...)
}
