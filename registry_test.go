package rasterlayer

import (
	"errors"
	"math"
	"testing"
)

func TestUTMZone(t *testing.T) {
	cases := []struct {
		code  int
		zone  int
		south bool
		ok    bool
	}{
		{32633, 33, false, true},
		{32601, 1, false, true},
		{32660, 60, false, true},
		{32733, 33, true, true},
		{32760, 60, true, true},
		{32661, 0, false, false},
		{99999, 0, false, false},
		{4326, 0, false, false},
	}
	for _, c := range cases {
		zone, south, ok := UTMZone(c.code)
		if zone != c.zone || south != c.south || ok != c.ok {
			t.Errorf("UTMZone(%d) = %d, %v, %v", c.code, zone, south, ok)
		}
	}
	def, ok := UTMDefinition(32733)
	if !ok || def != "+proj=utm +zone=33 +datum=WGS84 +south +units=m +no_defs" {
		t.Fatal(def)
	}
}

func TestEnsureDefinition(t *testing.T) {
	r := NewProjectionRegistry()
	if !r.EnsureDefinition(UNIVERSAL_SRID) || !r.IsGeographic(UNIVERSAL_SRID) {
		t.Fatal("4326 should be predefined")
	}
	if _, ok := r.lookup(32633); ok {
		t.Fatal("32633 should not be predefined")
	}
	if !r.EnsureDefinition(32633) {
		t.Fatal("32633 should be synthesized")
	}
	if r.IsGeographic(32633) {
		t.Fatal("32633 is projected")
	}
	if r.EnsureDefinition(99999) || r.EnsureDefinition(99999) {
		t.Fatal("99999 has no definition")
	}
	if _, ok := r.lookup(99999); ok {
		t.Fatal("unknown code should not be registered")
	}
}

func TestRegister(t *testing.T) {
	r := NewProjectionRegistry()
	if err := r.Register(900913, "nonsense"); !errors.Is(err, ErrInvalidProjDef) {
		t.Fatal(err)
	}
	if _, ok := r.lookup(900913); ok {
		t.Fatal("invalid def registered")
	}
	if err := r.Register(4269, "+proj=longlat +datum=WGS84 +no_defs"); err != nil {
		t.Fatal(err)
	}
	if !r.IsGeographic(4269) {
		t.Fatal("4269 should be geographic")
	}
}

func TestTransformRoundTrip(t *testing.T) {
	r := NewProjectionRegistry()
	if !r.EnsureDefinition(32633) {
		t.Fatal()
	}
	fwd, err := r.FromGeographic(32633)
	if err != nil {
		t.Fatal(err)
	}
	inv, err := r.ToGeographic(32633)
	if err != nil {
		t.Fatal(err)
	}
	x, y, err := fwd(15, 42)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-500000) > 1e-3 {
		t.Errorf("central meridian easting: %v", x)
	}
	lon, lat, err := inv(x, y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lon-15) > 1e-7 || math.Abs(lat-42) > 1e-7 {
		t.Errorf("round trip: %v %v", lon, lat)
	}
	if _, err = r.ToGeographic(99999); !errors.Is(err, ErrProjectionUndefined) {
		t.Fatal(err)
	}
}
