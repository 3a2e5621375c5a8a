package gdalsrc

import (
	"context"
	"errors"
	"testing"
)

func TestGeoTransformToMatrix(t *testing.T) {
	gt := [6]float64{500000, 10, 0, 4649776, 0, -10}
	m := geoTransformToMatrix(gt, false)
	if m[0] != 10 || m[3] != 500000 || m[5] != -10 || m[7] != 4649776 || m[15] != 1 {
		t.Fatal(m)
	}
	m = geoTransformToMatrix(gt, true)
	if m[3] != 500005 || m[7] != 4649771 {
		t.Fatal("point raster origin should move to the pixel center", m)
	}
}

func TestReadMissingTif(t *testing.T) {
	_, _, err := Open("/nonexistent/raster.tif").ReadRaster(context.Background())
	if !errors.Is(err, ErrInvalidTif) {
		t.Fatal(err)
	}
}
