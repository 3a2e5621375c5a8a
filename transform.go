package rasterlayer

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// 像元<->源坐标系的映射来源
type TransformKind int

const (
	TransformDefault TransformKind = iota
	TransformLibraryBBox
	TransformAffine
	TransformTiePoint
	TransformLinearBBox
)

func (k TransformKind) String() string {
	switch k {
	case TransformLibraryBBox:
		return "library-bbox"
	case TransformAffine:
		return "affine"
	case TransformTiePoint:
		return "tie-point"
	case TransformLinearBBox:
		return "linear-bbox"
	}
	return "default"
}

const epsilon = 1e-12

var defaultBBox = [4]float64{-0.5, -0.5, 0.5, 0.5}

type pixelModel interface {
	Kind() TransformKind
	PixelToWorld(i, j float64) (x, y float64)
	WorldToPixel(x, y float64) (i, j float64)
}

// ModelTransformation 4x4，支持齐次除法
type affineModel struct {
	m   []float64
	inv [6]float64
}

func newAffineModel(m []float64) (a *affineModel, ok bool) {
	if len(m) != 16 {
		return
	}
	a = &affineModel{m: m}
	if math.Abs(m[12]) >= epsilon || math.Abs(m[13]) >= epsilon {
		return a, false
	}
	det := m[0]*m[5] - m[1]*m[4]
	if math.Abs(det) <= epsilon {
		return a, false
	}
	ia, ib := m[5]/det, -m[1]/det
	ic, id := -m[4]/det, m[0]/det
	a.inv = [6]float64{ia, ib, -(ia*m[3] + ib*m[7]), ic, id, -(ic*m[3] + id*m[7])}
	return a, true
}

func (a *affineModel) Kind() TransformKind { return TransformAffine }

func (a *affineModel) PixelToWorld(i, j float64) (x, y float64) {
	m := a.m
	w := m[12]*i + m[13]*j + m[15]
	if w == 0 {
		w = 1
	}
	x = (m[0]*i + m[1]*j + m[3]) / w
	y = (m[4]*i + m[5]*j + m[7]) / w
	return
}

func (a *affineModel) WorldToPixel(x, y float64) (i, j float64) {
	v := a.inv
	i = v[0]*x + v[1]*y + v[2]
	j = v[3]*x + v[4]*y + v[5]
	return
}

// 单个控制点 + 像元大小
type tiePointModel struct {
	i0, j0, x0, y0 float64
	sx, sy         float64
}

func newTiePointModel(meta *GeoMetadata) (t *tiePointModel, ok bool) {
	if len(meta.TiePoints) == 0 || len(meta.PixelScale) < 2 {
		return
	}
	tp := meta.TiePoints[0]
	t = &tiePointModel{
		i0: finiteOr(tp.I, 0),
		j0: finiteOr(tp.J, 0),
		x0: finiteOr(tp.X, 0),
		y0: finiteOr(tp.Y, 0),
		sx: nonZeroOr(meta.PixelScale[0], 1),
		sy: nonZeroOr(meta.PixelScale[1], 1),
	}
	return t, true
}

func (t *tiePointModel) Kind() TransformKind { return TransformTiePoint }

func (t *tiePointModel) PixelToWorld(i, j float64) (x, y float64) {
	return t.x0 + (i-t.i0)*t.sx, t.y0 - (j-t.j0)*t.sy
}

func (t *tiePointModel) WorldToPixel(x, y float64) (i, j float64) {
	return (x-t.x0)/t.sx + t.i0, (t.y0-y)/t.sy + t.j0
}

// 把源范围线性铺满整个栅格，最后的兜底
type linearBBoxModel struct {
	bbox          [4]float64
	width, height float64
}

func (l *linearBBoxModel) Kind() TransformKind { return TransformLinearBBox }

func (l *linearBBoxModel) PixelToWorld(i, j float64) (x, y float64) {
	b := l.bbox
	return b[0] + i/l.width*(b[2]-b[0]), b[3] - j/l.height*(b[3]-b[1])
}

func (l *linearBBoxModel) WorldToPixel(x, y float64) (i, j float64) {
	b := l.bbox
	return (x - b[0]) / (b[2] - b[0]) * l.width, (b[3] - y) / (b[3] - b[1]) * l.height
}

// 按优先级排列的源范围推导方式，取第一个可用的
type bboxSource func(width, height int, rt RasterType, meta *GeoMetadata) ([4]float64, bool)

var bboxSources = []struct {
	kind TransformKind
	fn   bboxSource
}{
	{TransformLibraryBBox, libraryBBox},
	{TransformAffine, affineBBox},
	{TransformTiePoint, tiePointBBox},
	{TransformDefault, func(int, int, RasterType, *GeoMetadata) ([4]float64, bool) { return defaultBBox, true }},
}

func resolveBBox(width, height int, rt RasterType, meta *GeoMetadata) (bbox [4]float64, kind TransformKind) {
	for _, s := range bboxSources {
		if b, ok := s.fn(width, height, rt, meta); ok {
			return b, s.kind
		}
	}
	return defaultBBox, TransformDefault
}

func libraryBBox(_, _ int, rt RasterType, meta *GeoMetadata) (bbox [4]float64, ok bool) {
	if len(meta.BBox) < 4 {
		return
	}
	for i := 0; i < 4; i++ {
		if !isFinite(meta.BBox[i]) {
			return
		}
		bbox[i] = meta.BBox[i]
	}
	ok = true
	if rt != PixelIsPoint || len(meta.PixelScale) < 2 {
		return
	}
	sx, sy := math.Abs(meta.PixelScale[0]), math.Abs(meta.PixelScale[1])
	if !(sx > 0 && sy > 0) {
		return
	}
	bbox[0] -= sx / 2
	bbox[1] -= sy / 2
	bbox[2] += sx / 2
	bbox[3] += sy / 2
	return
}

func affineBBox(width, height int, rt RasterType, meta *GeoMetadata) (bbox [4]float64, ok bool) {
	a, _ := newAffineModel(meta.Transform)
	if a == nil {
		return
	}
	return cornerEnvelope(a, width, height, rt), true
}

func tiePointBBox(width, height int, rt RasterType, meta *GeoMetadata) (bbox [4]float64, ok bool) {
	t, ok := newTiePointModel(meta)
	if !ok {
		return
	}
	return cornerEnvelope(t, width, height, rt), true
}

// 四个像元角点映射到源坐标后的外包矩形
func cornerEnvelope(m pixelModel, width, height int, rt RasterType) [4]float64 {
	half := rt.cornerOffset()
	w, h := float64(width), float64(height)
	corners := [4][2]float64{{-half, -half}, {w - half, -half}, {w - half, h - half}, {-half, h - half}}
	xs := make([]float64, 4)
	ys := make([]float64, 4)
	for k, c := range corners {
		xs[k], ys[k] = m.PixelToWorld(c[0], c[1])
	}
	return [4]float64{floats.Min(xs), floats.Min(ys), floats.Max(xs), floats.Max(ys)}
}

// 反算像元所用的模型：无透视且可逆的仿射 > 控制点 > 线性范围
func resolvePixelModel(width, height int, bbox [4]float64, meta *GeoMetadata) pixelModel {
	if a, ok := newAffineModel(meta.Transform); ok {
		return a
	}
	if t, ok := newTiePointModel(meta); ok {
		return t
	}
	return &linearBBoxModel{bbox: bbox, width: float64(width), height: float64(height)}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOr(v, def float64) float64 {
	if isFinite(v) {
		return v
	}
	return def
}

func nonZeroOr(v, def float64) float64 {
	if v == 0 || !isFinite(v) {
		return def
	}
	return v
}
