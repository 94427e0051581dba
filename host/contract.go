package host

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
)

// Section is one module's configuration, keyed by lower-case option name.
type Section map[string]any

// Module is a display module driven by the host. Refresh is called on every
// tick with the shared canvas and the module's region of it.
type Module interface {
	Refresh(ctx context.Context, canvas draw.Image, region image.Rectangle) error
	Close() error
}

// Collector is implemented by modules exporting Prometheus metrics.
type Collector interface {
	Collectors() []prometheus.Collector
}

// Factory builds a module from its configuration section.
type Factory func(ctx context.Context, name string, section Section, log zerolog.Logger) (Module, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a module available under source. Registering a source
// twice panics.
func Register(source string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	source = strings.ToLower(source)
	if _, ok := factories[source]; ok {
		panic(fmt.Sprintf("host: module source %q registered twice", source))
	}
	factories[source] = factory
}

func Lookup(source string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	f, ok := factories[strings.ToLower(source)]
	return f, ok
}

// Sources lists the registered module sources.
func Sources() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]string, 0, len(factories))
	for s := range factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RegionFor computes the rectangle assigned to a module from its top, left,
// width and height options. A width or height of -1 extends to the canvas
// edge.
func RegionFor(section Section, canvas image.Rectangle) (image.Rectangle, error) {
	var geometry [4]int
	for i, key := range []string{"top", "left", "width", "height"} {
		raw, ok := section[key]
		if !ok {
			return image.Rectangle{}, fmt.Errorf("region: %s is required", key)
		}
		if s, ok := raw.(string); ok {
			raw = strings.TrimSpace(s)
		}
		n, err := cast.ToIntE(raw)
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("region: %s must be an integer", key)
		}
		geometry[i] = n
	}
	top, left, width, height := geometry[0], geometry[1], geometry[2], geometry[3]

	r := image.Rect(canvas.Min.X+left, canvas.Min.Y+top, canvas.Max.X, canvas.Max.Y)
	if width >= 0 {
		r.Max.X = r.Min.X + width
	}
	if height >= 0 {
		r.Max.Y = r.Min.Y + height
	}
	r = r.Intersect(canvas)
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("region: %v is outside the canvas %v", r, canvas)
	}
	return r, nil
}
