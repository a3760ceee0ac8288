package engine

import (
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func noopFactory(opts lua.Options) *lua.LState { return nil }

func TestVariantBestPrefersFamilyThenVersion(t *testing.T) {
	r := &VariantRegistry{}
	mustRegister(t, r, "jit", "2.1.0")
	mustRegister(t, r, "gopher", "5.1.0")
	mustRegister(t, r, "gopher", "5.1.4")
	r.Prefer("gopher", "jit")

	v, err := r.Best()
	if err != nil {
		t.Fatal(err)
	}
	if v.Family != "gopher" || v.Version.String() != "5.1.4" {
		t.Fatalf("got %s %s, want gopher 5.1.4", v.Family, v.Version)
	}
}

func TestVariantBestFallsBackAcrossFamilies(t *testing.T) {
	r := &VariantRegistry{}
	mustRegister(t, r, "jit", "2.0.0")
	mustRegister(t, r, "jit", "2.1.0")
	r.Prefer("gopher", "jit")

	v, err := r.Best()
	if err != nil {
		t.Fatal(err)
	}
	if v.Family != "jit" || v.Version.String() != "2.1.0" {
		t.Fatalf("got %s %s, want jit 2.1.0", v.Family, v.Version)
	}
}

func TestVariantBestCachedUntilRegister(t *testing.T) {
	r := &VariantRegistry{}
	mustRegister(t, r, "gopher", "5.1.0")
	r.Prefer("gopher")

	v1, _ := r.Best()
	v2, _ := r.Best()
	if v1 != v2 {
		t.Fatal("Best not cached")
	}

	mustRegister(t, r, "gopher", "5.2.0")
	v3, _ := r.Best()
	if v3.Version.String() != "5.2.0" {
		t.Fatalf("cache not invalidated: %s", v3.Version)
	}
}

func TestVariantLookup(t *testing.T) {
	r := &VariantRegistry{}
	mustRegister(t, r, "gopher", "5.1.0")

	if _, err := r.Lookup("gopher"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup("missing"); err == nil {
		t.Fatal("expected error for unknown family")
	}
}

func TestVariantRejectsBadInput(t *testing.T) {
	r := &VariantRegistry{}
	if err := r.Register("", "1.0.0", noopFactory); err == nil {
		t.Fatal("expected error for empty family")
	}
	if err := r.Register("x", "not-a-version", noopFactory); err == nil {
		t.Fatal("expected error for bad version")
	}
	if err := r.Register("x", "1.0.0", nil); err == nil {
		t.Fatal("expected error for nil factory")
	}
}

func TestDefaultVariants(t *testing.T) {
	v, err := DefaultVariants.Best()
	if err != nil {
		t.Fatal(err)
	}
	if v.Family != "gopher" {
		t.Fatalf("default family = %s", v.Family)
	}
	L := v.New(lua.Options{})
	if L == nil {
		t.Fatal("default factory returned nil state")
	}
	L.Close()
}

func mustRegister(t *testing.T, r *VariantRegistry, family, version string) {
	t.Helper()
	if err := r.Register(family, version, noopFactory); err != nil {
		t.Fatal(err)
	}
}
