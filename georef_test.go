package rasterlayer

import (
	"math"
	"testing"
)

// 100x50的EPSG:32633栅格，10米像元，左上角位于15°E中央经线、约42°N
func utmTiePointMeta() *GeoMetadata {
	return &GeoMetadata{
		GeoKeys: GeoKeys{
			ModelType:     ModelTypeProjected,
			RasterType:    int(PixelIsArea),
			ProjectedType: 32633,
		},
		TiePoints:  []TiePoint{{X: 500000, Y: 4649776}},
		PixelScale: []float64{10, 10, 0},
	}
}

// 经纬度仿射：左上角(10,50)，0.1°像元
func lonLatAffineMeta(rt RasterType) *GeoMetadata {
	return &GeoMetadata{
		GeoKeys: GeoKeys{
			ModelType:      ModelTypeGeographic,
			RasterType:     int(rt),
			GeographicType: UNIVERSAL_SRID,
		},
		Transform: []float64{
			0.1, 0, 0, 10,
			0, -0.1, 0, 50,
			0, 0, 0, 0,
			0, 0, 0, 1,
		},
	}
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestResolveNoMetadata(t *testing.T) {
	g := ResolveGeoReference(10, 10, nil, ResolveOptions{})
	if g.EPSG != 0 || g.Geographic || g.ProjectionDefined {
		t.Fatalf("unexpected crs: %+v", g)
	}
	if g.BBox != defaultBBox || g.BBoxSource != TransformDefault || g.PixelModel != TransformLinearBBox {
		t.Fatalf("unexpected bbox: %v %v %v", g.BBox, g.BBoxSource, g.PixelModel)
	}
	b := g.Bounds
	if b.Min.X != -0.5 || b.Min.Y != -0.5 || b.Max.X != 0.5 || b.Max.Y != 0.5 {
		t.Fatalf("unexpected bounds: %+v", b)
	}
	if g.NeedsReprojection() || g.ProjectionUndefined() {
		t.Fatal("no crs, nothing to do")
	}
}

func TestResolveAffine(t *testing.T) {
	g := ResolveGeoReference(100, 50, lonLatAffineMeta(PixelIsArea), ResolveOptions{})
	if g.EPSG != UNIVERSAL_SRID || !g.Geographic || !g.ProjectionDefined {
		t.Fatalf("unexpected crs: %+v", g)
	}
	if g.BBoxSource != TransformAffine || g.PixelModel != TransformAffine {
		t.Fatal(g.BBoxSource, g.PixelModel)
	}
	want := [4]float64{10, 45, 20, 50}
	for k := range want {
		if !near(g.BBox[k], want[k], 1e-9) {
			t.Fatalf("bbox %v, want %v", g.BBox, want)
		}
	}
	if g.NeedsReprojection() {
		t.Fatal("geographic raster needs no reprojection")
	}
	i, j := g.WorldToPixel(g.PixelToWorld(12.5, 7.25))
	if !near(i, 12.5, 1e-9) || !near(j, 7.25, 1e-9) {
		t.Fatal(i, j)
	}
}

func TestResolveAffinePoint(t *testing.T) {
	g := ResolveGeoReference(100, 50, lonLatAffineMeta(PixelIsPoint), ResolveOptions{})
	if g.RasterType != PixelIsPoint {
		t.Fatal(g.RasterType)
	}
	want := [4]float64{9.95, 45.05, 19.95, 50.05}
	for k := range want {
		if !near(g.BBox[k], want[k], 1e-9) {
			t.Fatalf("bbox %v, want %v", g.BBox, want)
		}
	}
}

func TestResolveLibraryBBox(t *testing.T) {
	meta := &GeoMetadata{
		GeoKeys:    GeoKeys{RasterType: int(PixelIsPoint), GeographicType: UNIVERSAL_SRID},
		BBox:       []float64{0, 0, 9, 4},
		PixelScale: []float64{1, 1},
		Transform:  lonLatAffineMeta(PixelIsArea).Transform,
	}
	g := ResolveGeoReference(10, 5, meta, ResolveOptions{})
	if g.BBoxSource != TransformLibraryBBox {
		t.Fatal(g.BBoxSource)
	}
	if g.BBox != [4]float64{-0.5, -0.5, 9.5, 4.5} {
		t.Fatal(g.BBox)
	}
	// 反算像元仍用仿射
	if g.PixelModel != TransformAffine {
		t.Fatal(g.PixelModel)
	}
}

func TestResolveSingularAffine(t *testing.T) {
	meta := lonLatAffineMeta(PixelIsArea)
	meta.Transform[12] = 0.5
	meta.TiePoints = []TiePoint{{X: 10, Y: 50}}
	meta.PixelScale = []float64{0.1, 0.1}
	g := ResolveGeoReference(100, 50, meta, ResolveOptions{})
	if g.BBoxSource != TransformAffine || g.PixelModel != TransformTiePoint {
		t.Fatal(g.BBoxSource, g.PixelModel)
	}
}

func TestResolveTiePointUTM(t *testing.T) {
	g := ResolveGeoReference(100, 50, utmTiePointMeta(), ResolveOptions{Registry: NewProjectionRegistry()})
	if g.EPSG != 32633 || g.Geographic || !g.ProjectionDefined || !g.NeedsReprojection() {
		t.Fatalf("unexpected crs: %+v", g)
	}
	if g.BBoxSource != TransformTiePoint || g.PixelModel != TransformTiePoint {
		t.Fatal(g.BBoxSource, g.PixelModel)
	}
	if g.BBox != [4]float64{500000, 4649276, 501000, 4649776} {
		t.Fatal(g.BBox)
	}
	b := g.Bounds
	t.Logf("bounds: %+v", b)
	if !near(b.Min.X, 15, 1e-6) {
		t.Errorf("west %v, want 15", b.Min.X)
	}
	if !near(b.Max.X, 15.012, 0.001) {
		t.Errorf("east %v", b.Max.X)
	}
	if !near(b.Max.Y, 42, 0.001) {
		t.Errorf("north %v, want ~42", b.Max.Y)
	}
	if !near(b.Min.Y, 41.9955, 0.001) {
		t.Errorf("south %v", b.Min.Y)
	}
}

func TestResolveForceEPSG(t *testing.T) {
	meta := lonLatAffineMeta(PixelIsArea)
	g := ResolveGeoReference(100, 50, meta, ResolveOptions{ForceEPSG: 32633})
	if g.EPSG != 32633 || g.Geographic {
		t.Fatalf("forced code ignored: %+v", g)
	}
	if SelectEPSG(GeoKeys{ModelType: ModelTypeProjected, GeographicType: 4326, ProjectedType: 32633}, 0) != 32633 {
		t.Fatal("model type should pick the projected key")
	}
	if SelectEPSG(GeoKeys{GeographicType: 4326}, 0) != 4326 {
		t.Fatal("fallback to any key")
	}
}

func TestResolveUndefined(t *testing.T) {
	meta := utmTiePointMeta()
	meta.GeoKeys.ProjectedType = 99999
	g := ResolveGeoReference(100, 50, meta, ResolveOptions{})
	if !g.ProjectionUndefined() || g.NeedsReprojection() {
		t.Fatalf("99999 should be undefined: %+v", g)
	}
	b := g.Bounds
	if b.Min.X != 500000 || b.Max.Y != 4649776 {
		t.Fatalf("bounds should stay in source units: %+v", b)
	}
}

func TestGeoCache(t *testing.T) {
	c := NewGeoCache(nil)
	g1 := c.Resolve("a", 100, 50, utmTiePointMeta(), 0)
	g2 := c.Resolve("a", 1, 1, nil, 0)
	if g1 != g2 || c.Len() != 1 {
		t.Fatal("same key should resolve once")
	}
	if g, ok := c.Get("a"); !ok || g != g1 {
		t.Fatal("cached entry missing")
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("unexpected entry")
	}
}
