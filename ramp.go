package rasterlayer

import (
	"image"
	"image/color"
	"math"
	"sort"
)

const (
	RAMP_GRAYSCALE = "grayscale"
	RAMP_VIRIDIS   = "viridis"
	RAMP_MAGMA     = "magma"
	RAMP_HEAT      = "heat"
)

// 色带：t∈[0,1] -> 不透明颜色
type Ramp func(t float64) color.NRGBA

var ramps = map[string]Ramp{
	RAMP_GRAYSCALE: Grayscale,
	RAMP_VIRIDIS:   Viridis,
	RAMP_MAGMA:     Magma,
	RAMP_HEAT:      Heat,
}

// 未知名称退回grayscale
func RampByName(name string) (r Ramp, ok bool) {
	if r, ok = ramps[name]; ok {
		return
	}
	return Grayscale, false
}

func RampNames() []string {
	names := make([]string, 0, len(ramps))
	for n := range ramps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// 四舍五入（.5向上）并限制到[0,255]
func channel(v float64) uint8 {
	v = math.Floor(v + 0.5)
	if v < 0 || v != v {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func Grayscale(t float64) color.NRGBA {
	g := channel(255 * t)
	return color.NRGBA{R: g, G: g, B: g, A: 255}
}

func Viridis(t float64) color.NRGBA {
	return color.NRGBA{
		R: channel(255 * (0.267 + 2.39*t - 2.64*t*t + 0.95*t*t*t)),
		G: channel(255 * (0.004 + 1.73*t - 0.89*t*t)),
		B: channel(255 * (0.329 + 0.71*t + 0.28*t*t)),
		A: 255,
	}
}

func Magma(t float64) color.NRGBA {
	u := 1 - t
	return color.NRGBA{
		R: channel(255 * math.Pow(t, 0.4)),
		G: channel(255 * t * t * 0.8),
		B: channel(255 * (0.2 + 0.8*(1-u*u*u))),
		A: 255,
	}
}

func Heat(t float64) color.NRGBA {
	f := 4 * t
	return color.NRGBA{
		R: channel(255 * clamp01(f-1.5)),
		G: channel(255 * clamp01(f-0.5)),
		B: channel(255 * clamp01(1.5-f)),
		A: 255,
	}
}

// 横向图例，t = x/(w-1)
func Legend(ramp Ramp, width, height int) *image.NRGBA {
	if ramp == nil {
		ramp = Grayscale
	}
	width, height = max(width, 1), max(height, 1)
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		t := 0.0
		if width > 1 {
			t = float64(x) / float64(width-1)
		}
		c := ramp(t)
		for y := 0; y < height; y++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
