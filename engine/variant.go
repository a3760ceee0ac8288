package engine

import (
	"sync"

	"github.com/coreos/go-semver/semver"
	lua "github.com/yuin/gopher-lua"

	"github.com/wippyai/lua-runtime/errors"
)

// Factory constructs a fresh Lua state for one session.
type Factory func(opts lua.Options) *lua.LState

// Variant identifies one registered engine build.
type Variant struct {
	Family  string
	Version semver.Version
	New     Factory
}

// VariantRegistry is an explicit registry of engine builds keyed by family
// and version, with a deterministic best pick: first family in the
// preference order that has any registration, then the highest version
// within it. The pick is resolved lazily on first use and cached;
// registering a new variant invalidates the cache.
type VariantRegistry struct {
	mu       sync.Mutex
	variants []Variant
	prefer   []string
	best     *Variant
}

// Register adds an engine build. The version must parse as semver.
func (r *VariantRegistry) Register(family, version string, f Factory) error {
	if family == "" {
		return errors.Config("variant family cannot be empty")
	}
	if f == nil {
		return errors.Config("variant %s has no factory", family)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return errors.Config("variant %s version %q: %v", family, version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants = append(r.variants, Variant{Family: family, Version: *v, New: f})
	r.best = nil
	return nil
}

// Prefer sets the family preference order for Best.
func (r *VariantRegistry) Prefer(families ...string) {
	r.mu.Lock()
	r.prefer = append([]string(nil), families...)
	r.best = nil
	r.mu.Unlock()
}

// Best returns the preferred variant.
func (r *VariantRegistry) Best() (*Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.best != nil {
		return r.best, nil
	}
	if len(r.variants) == 0 {
		return nil, errors.Config("no engine variants registered")
	}

	families := r.prefer
	if len(families) == 0 {
		families = []string{r.variants[0].Family}
	}
	for _, fam := range families {
		if v := r.bestInFamily(fam); v != nil {
			r.best = v
			return v, nil
		}
	}
	// None of the preferred families is registered; fall back to the
	// highest version overall.
	v := r.variants[0]
	for _, c := range r.variants[1:] {
		if v.Version.LessThan(c.Version) {
			v = c
		}
	}
	r.best = &v
	return r.best, nil
}

// Lookup returns the highest registered version of a family.
func (r *VariantRegistry) Lookup(family string) (*Variant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v := r.bestInFamily(family); v != nil {
		return v, nil
	}
	return nil, errors.Config("engine variant %q not registered", family)
}

func (r *VariantRegistry) bestInFamily(family string) *Variant {
	var found *Variant
	for i := range r.variants {
		c := &r.variants[i]
		if c.Family != family {
			continue
		}
		if found == nil || found.Version.LessThan(c.Version) {
			found = c
		}
	}
	return found
}

// DefaultVariants is the process-wide registry. The pure-Go gopher-lua
// build registers itself here; hosts may add sandboxed or otherwise
// customized builds and re-order the preference.
var DefaultVariants = func() *VariantRegistry {
	r := &VariantRegistry{}
	_ = r.Register("gopher", "5.1.0", func(opts lua.Options) *lua.LState {
		return lua.NewState(opts)
	})
	r.Prefer("gopher")
	return r
}()
