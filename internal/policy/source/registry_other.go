//go:build !windows

package source

// Registry is only backed by a real store on Windows; elsewhere every value
// is absent.
type Registry struct {
	path string
}

// NewRegistry returns a registry source for the given vendor key.
func NewRegistry(vendor string) *Registry {
	return &Registry{path: `Software\` + vendor + `\overlay`}
}

// MultiString implements Source.
func (r *Registry) MultiString(string) ([]string, error) { return nil, ErrNotFound }

// Mode implements Source.
func (r *Registry) Mode() (int, error) { return 0, ErrNotFound }

// Name implements Source.
func (r *Registry) Name() string { return `registry:HKCU\` + r.path }
