package config

import (
	"fmt"
	"log/slog"

	"github.com/gameoverlay/gameoverlay/internal/policy/source"
)

// ExclusionSource opens the configured exclusion store. A missing or
// unusable exclusion file yields an empty store, never an error.
func (o OverlayConfig) ExclusionSource(logger *slog.Logger) (source.Source, error) {
	switch o.Source {
	case SourceFile:
		return source.OpenFile(o.File, logger), nil
	case SourceRegistry:
		return source.NewRegistry(o.Vendor), nil
	case SourceInline, "":
		s := source.NewStatic()
		for name, values := range o.Lists {
			s.WithList(name, values...)
		}
		if o.Mode != nil {
			s.WithMode(*o.Mode)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown exclusion source %q", o.Source)
	}
}
