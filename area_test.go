package rasterlayer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

const areaCollection = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "field"},
     "geometry": {"type": "Polygon", "coordinates": [[[10, 40, 120], [11, 40, 120], [11, 41, 120], [10, 40, 120]]]}},
    {"type": "Feature", "properties": {"name": "well"},
     "geometry": {"type": "Point", "coordinates": [10.5, 40.5]}},
    {"type": "Feature", "properties": null,
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[0, 0], [1, 0], [1, 1], [0, 0]]],
       [[[2, 2], [3, 2], [3, 3], [2, 2]]]
     ]}},
    {"type": "Feature", "properties": {}, "geometry": null}
  ]
}`

func TestParseAreaGeoJSON(t *testing.T) {
	features, err := ParseAreaGeoJSON([]byte(areaCollection))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 2 {
		t.Fatalf("got %d features", len(features))
	}
	p, ok := features[0].Geometry.(geom.Polygon)
	if !ok || len(p) != 1 || len(p[0]) != 4 || p[0][1] != (geom.Point{X: 11, Y: 40}) {
		t.Fatalf("polygon: %#v", features[0].Geometry)
	}
	if features[0].Properties["name"] != "field" {
		t.Fatal(features[0].Properties)
	}
	mp, ok := features[1].Geometry.(geom.MultiPolygon)
	if !ok || len(mp) != 2 || len(mp.Polygons()) != 2 {
		t.Fatalf("multipolygon: %#v", features[1].Geometry)
	}

	single, err := ParseAreaGeoJSON([]byte(`{"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}`))
	if err != nil || len(single) != 1 {
		t.Fatal(single, err)
	}
	if _, err = ParseAreaGeoJSON([]byte(`{"type": "Point", "coordinates": [0, 0]}`)); !errors.Is(err, ErrInvalidGeoJSON) {
		t.Fatal(err)
	}
	if _, err = ParseAreaGeoJSON([]byte(`not json`)); !errors.Is(err, ErrInvalidGeoJSON) {
		t.Fatal(err)
	}
}

func TestAddCustom(t *testing.T) {
	s := NewAreaStore()
	s.now = func() time.Time { return time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC) }
	tri := []geom.Point{{X: 10, Y: 40}, {X: 11, Y: 40}, {X: 11, Y: 41}}
	if _, err := s.AddCustom("x", tri[:2]); !errors.Is(err, ErrNotEnoughVertices) {
		t.Fatal(err)
	}
	a, err := s.AddCustom("  ", tri)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "custom-area-1" || a.Label != "Custom area 1" || !a.Custom || a.FileName != "custom-area-1.geojson" {
		t.Fatalf("unexpected area: %+v", a)
	}
	ring := a.Features[0].Geometry.(geom.Polygon)[0]
	if len(ring) != 4 || ring[0] != ring[3] {
		t.Fatalf("ring not closed: %v", ring)
	}
	props := a.Features[0].Properties
	if props["name"] != "Custom area 1" || props["source"] != "custom" || props["createdAt"] != "2024-03-15T08:00:00Z" {
		t.Fatal(props)
	}
	if len(tri) != 3 {
		t.Fatal("input modified")
	}

	b, err := s.AddCustom("Custom area 1", tri)
	if err != nil {
		t.Fatal(err)
	}
	if b.ID != "custom-area-1-2" {
		t.Fatal(b.ID)
	}
	c, _ := s.AddCustom("Élevage Nord", tri)
	if c.ID != "elevage-nord" {
		t.Fatal(c.ID)
	}
	d, _ := s.AddCustom("", tri)
	if d.Label != "Custom area 4" {
		t.Fatal(d.Label)
	}
	bb := a.Bounds()
	if bb.Min.X != 10 || bb.Max.Y != 41 {
		t.Fatalf("bounds %+v", bb)
	}
}

func TestAreaDelete(t *testing.T) {
	s := NewAreaStore()
	preset := &AreaDefinition{ID: "park", Label: "Park", Features: []AreaFeature{{Geometry: geom.Polygon{rect(0, 0, 1, 1)}}}}
	if err := s.Add(preset); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(&AreaDefinition{ID: "park"}); !errors.Is(err, ErrAreaExists) {
		t.Fatal(err)
	}
	a, _ := s.AddCustom("mine", rect(0.5, 0.5, 2, 2)[:4])
	if err := s.Delete("park"); !errors.Is(err, ErrAreaNotCustom) {
		t.Fatal(err)
	}
	if err := s.Delete("nope"); !errors.Is(err, ErrAreaNotFound) {
		t.Fatal(err)
	}
	q := geom.Bounds{Min: geom.Point{X: 0.8, Y: 0.8}, Max: geom.Point{X: 0.9, Y: 0.9}}
	if got := s.Intersecting(q); len(got) != 2 {
		t.Fatalf("intersecting %d", len(got))
	}
	if err := s.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(a.ID); ok {
		t.Fatal("custom area not deleted")
	}
	got := s.Intersecting(q)
	if len(got) != 1 || got[0].ID != "park" {
		t.Fatal(got)
	}
}

func TestIntersecting(t *testing.T) {
	s := NewAreaStore()
	s.AddCustom("b", rect(10, 40, 11, 41)[:4])
	s.AddCustom("a", rect(10.5, 40.5, 12, 42)[:4])
	s.AddCustom("far", rect(-80, -10, -79, -9)[:4])
	got := s.Intersecting(geom.Bounds{Min: geom.Point{X: 10.8, Y: 40.8}, Max: geom.Point{X: 11.5, Y: 41.5}})
	if len(got) != 2 || got[0].Label != "a" || got[1].Label != "b" {
		t.Fatal(got)
	}
	if got = s.Intersecting(geom.Bounds{Min: geom.Point{X: 1, Y: 1}, Max: geom.Point{X: 0, Y: 0}}); got != nil {
		t.Fatal(got)
	}
	if l := s.List(); len(l) != 3 || l[0].Label != "a" || l[2].Label != "far" {
		t.Fatal(l)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("Parc Naturel.geojson", areaCollection)
	write("broken.geojson", "{")
	write("sub/zone.GEOJSON", `{"type": "Polygon", "coordinates": [[[0, 0], [1, 0], [1, 1], [0, 0]]]}`)
	write("notes.txt", "ignored")

	s := NewAreaStore()
	n, err := s.LoadDir(dir)
	if n != 2 || err == nil {
		t.Fatal(n, err)
	}
	t.Log(err)
	a, ok := s.Get("parc-naturel")
	if !ok || a.Label != "Parc Naturel" || a.FileName != "Parc Naturel.geojson" || a.Custom {
		t.Fatalf("preset area: %+v", a)
	}
	if _, ok = s.Get("zone"); !ok {
		t.Fatal("nested area not loaded")
	}
	if n, err = NewAreaStore().LoadDir(filepath.Join(dir, "missing")); n != 0 || err != nil {
		t.Fatal(n, err)
	}
}

type shpArea struct {
	geom.Polygon
	Name string
}

func TestLoadShapefile(t *testing.T) {
	dir := t.TempDir()
	enc, err := shp.NewEncoder(filepath.Join(dir, "Lake Zone.shp"), shpArea{})
	if err != nil {
		t.Fatal(err)
	}
	if err = enc.Encode(shpArea{Polygon: geom.Polygon{rect(10, 40, 11, 41)}, Name: "lake"}); err != nil {
		t.Fatal(err)
	}
	enc.Close()

	s := NewAreaStore()
	n, err := s.LoadDir(dir)
	if n != 1 || err != nil {
		t.Fatal(n, err)
	}
	a, ok := s.Get("lake-zone")
	if !ok || a.FileName != "Lake Zone.shp" || len(a.Features) != 1 {
		t.Fatalf("shapefile area: %+v", a)
	}
	if a.Features[0].Properties["Name"] != "lake" {
		t.Fatal(a.Features[0].Properties)
	}
	b := a.Bounds()
	if b.Min.X != 10 || b.Min.Y != 40 || b.Max.X != 11 || b.Max.Y != 41 {
		t.Fatalf("bounds %+v", b)
	}
}
