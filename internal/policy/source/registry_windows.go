//go:build windows

package source

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// Registry reads exclusion values from HKCU\Software\<vendor>\overlay.
type Registry struct {
	path string
}

// NewRegistry returns a registry source for the given vendor key.
func NewRegistry(vendor string) *Registry {
	return &Registry{path: `Software\` + vendor + `\overlay`}
}

func (r *Registry) open() (registry.Key, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, r.path, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("open HKCU\\%s: %w", r.path, err)
	}
	return k, nil
}

// MultiString implements Source. Only REG_MULTI_SZ values up to
// MaxValueSize bytes are accepted.
func (r *Registry) MultiString(name string) ([]string, error) {
	k, err := r.open()
	if err != nil {
		return nil, err
	}
	defer k.Close()

	n, valtype, err := k.GetValue(name, nil)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	if valtype != registry.MULTI_SZ {
		return nil, fmt.Errorf("%s: value type %d: %w", name, valtype, ErrConfigMalformed)
	}
	if n > MaxValueSize {
		return nil, fmt.Errorf("%s: %d bytes: %w", name, n, ErrConfigMalformed)
	}

	values, _, err := k.GetStringsValue(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", name, err, ErrConfigMalformed)
	}
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// Mode implements Source.
func (r *Registry) Mode() (int, error) {
	k, err := r.open()
	if err != nil {
		return 0, err
	}
	defer k.Close()

	v, valtype, err := k.GetIntegerValue(Mode)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, ErrNotFound
		}
		if errors.Is(err, registry.ErrUnexpectedType) {
			return 0, fmt.Errorf("mode: %w", ErrConfigMalformed)
		}
		return 0, fmt.Errorf("query mode: %w", err)
	}
	if valtype != registry.DWORD {
		return 0, fmt.Errorf("mode: value type %d: %w", valtype, ErrConfigMalformed)
	}
	return int(v), nil
}

// Name implements Source.
func (r *Registry) Name() string { return `registry:HKCU\` + r.path }
