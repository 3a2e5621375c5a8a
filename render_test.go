package rasterlayer

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestRender(t *testing.T) {
	g := NewRasterGrid(3, 2)
	copy(g.Data, []float32{0, 1, float32(math.NaN()), -9999, 2, -1})
	g.NoData, g.HasNoData = -9999, true
	img, err := Render(context.Background(), g, Grayscale, Scheduler{ChunkSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	want := [][4]uint8{
		{0, 0, 0, 255},
		{255, 255, 255, 255},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{255, 255, 255, 255},
		{0, 0, 0, 255},
	}
	for k, w := range want {
		p := img.Pix[k*4 : k*4+4]
		if p[0] != w[0] || p[1] != w[1] || p[2] != w[2] || p[3] != w[3] {
			t.Errorf("pixel %d: %v, want %v", k, p, w)
		}
	}
	if g.Data[4] != 2 || g.Data[5] != -1 {
		t.Fatal("grid modified")
	}
}

func TestRenderAllInvalid(t *testing.T) {
	g := NewRasterGrid(4, 4)
	for i := range g.Data {
		g.Data[i] = -1
	}
	g.NoData, g.HasNoData = -1, true
	img, err := Render(context.Background(), g, Viridis, Scheduler{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			t.Fatal("invalid cell rendered")
		}
	}
}

func TestRenderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img, err := Render(ctx, NewRasterGrid(2, 2), nil, Scheduler{})
	if !errors.Is(err, context.Canceled) || img != nil {
		t.Fatal(img, err)
	}
}
