package rasterlayer

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestEstimateRange(t *testing.T) {
	g := NewRasterGrid(3, 2)
	copy(g.Data, []float32{float32(math.NaN()), -9999, 0.2, 0.7, 0.5, 0.2})
	g.NoData, g.HasNoData = -9999, true
	vr, err := EstimateRange(context.Background(), g, Scheduler{ChunkSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if vr.Min != float64(float32(0.2)) || vr.Max != float64(float32(0.7)) {
		t.Fatalf("range %+v", vr)
	}
}

func TestEstimateRangeNoValid(t *testing.T) {
	g := NewRasterGrid(2, 1)
	copy(g.Data, []float32{float32(math.NaN()), -1})
	g.NoData, g.HasNoData = -1, true
	vr, err := EstimateRange(context.Background(), g, Scheduler{})
	if err != nil {
		t.Fatal(err)
	}
	if vr != (ValueRange{Min: 0, Max: 1}) {
		t.Fatalf("range %+v", vr)
	}
	if _, err = EstimateRange(context.Background(), &RasterGrid{Width: 2, Height: 2}, Scheduler{}); !errors.Is(err, ErrWrongBufferSize) {
		t.Fatal(err)
	}
}
