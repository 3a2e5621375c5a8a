package rasterlayer

import (
	"image"
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// 按区域多边形裁剪叠加图：区域外透明，区域内保留原像素
type MaskCompositor struct {
	proj PlanarProjection
}

func NewMaskCompositor(p PlanarProjection) *MaskCompositor {
	if p == nil {
		p = WebMercator{}
	}
	return &MaskCompositor{proj: p}
}

type maskEdge struct {
	ax, ay, bx, by float64
	minY, maxY     float64
}

// 区域外像素alpha置0，边界像素按覆盖率缩放。退化输入时原样返回img，masked为false
func (m *MaskCompositor) Composite(img *image.NRGBA, bounds geom.Bounds, area *AreaDefinition) (out *image.NRGBA, masked bool) {
	out = img
	if img == nil || area == nil || !validBounds(bounds) {
		return
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w <= 0 || h <= 0 {
		return
	}
	nwX, nwY := m.proj.Project(bounds.Min.X, bounds.Max.Y)
	seX, seY := m.proj.Project(bounds.Max.X, bounds.Min.Y)
	spanX, spanY := seX-nwX, nwY-seY
	if !isFinite(spanX) || !isFinite(spanY) || math.Abs(spanX) < MIN_WORLD_SPAN || math.Abs(spanY) < MIN_WORLD_SPAN {
		return
	}
	sx, sy := float64(w)/spanX, float64(h)/spanY

	var edges []maskEdge
	for _, f := range area.Features {
		if f.Geometry == nil {
			continue
		}
		for _, poly := range f.Geometry.Polygons() {
			for _, ring := range poly {
				pts := make([][2]float64, 0, len(ring)+1)
				for _, p := range ring {
					if !isFinite(p.X) || !isFinite(p.Y) {
						continue
					}
					px, py := m.proj.Project(p.X, p.Y)
					if !isFinite(px) || !isFinite(py) {
						continue
					}
					pts = append(pts, [2]float64{(px - nwX) * sx, (nwY - py) * sy})
				}
				masked = true
				if len(pts) == 0 {
					continue
				}
				edges = appendRingEdges(edges, pts)
			}
		}
	}
	if !masked {
		return
	}
	out = applyCoverage(img, edges)
	return
}

// 闭合环并加入非水平边
func appendRingEdges(edges []maskEdge, pts [][2]float64) []maskEdge {
	n := len(pts)
	for k := 0; k < n; k++ {
		a, b := pts[k], pts[(k+1)%n]
		if a[1] == b[1] {
			continue
		}
		edges = append(edges, maskEdge{
			ax: a[0], ay: a[1], bx: b[0], by: b[1],
			minY: math.Min(a[1], b[1]), maxY: math.Max(a[1], b[1]),
		})
	}
	return edges
}

// 奇偶规则扫描线填充，每行MASK_SUBSAMPLES条子扫描线，水平方向精确计算覆盖长度
func applyCoverage(img *image.NRGBA, edges []maskEdge) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	sort.Slice(edges, func(i, j int) bool { return edges[i].minY < edges[j].minY })

	cov := make([]float64, w)
	xs := make([]float64, 0, 16)
	weight := 1.0 / MASK_SUBSAMPLES
	for y := 0; y < h; y++ {
		for k := range cov {
			cov[k] = 0
		}
		for s := 0; s < MASK_SUBSAMPLES; s++ {
			yy := float64(y) + (float64(s)+0.5)*weight
			xs = xs[:0]
			for _, e := range edges {
				if e.minY > yy {
					break
				}
				if (e.ay <= yy) == (e.by <= yy) {
					continue
				}
				xs = append(xs, e.ax+(yy-e.ay)/(e.by-e.ay)*(e.bx-e.ax))
			}
			sort.Float64s(xs)
			for k := 0; k+1 < len(xs); k += 2 {
				addSpan(cov, xs[k], xs[k+1], weight)
			}
		}
		src := img.Pix[y*img.Stride : y*img.Stride+w*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for x, c := range cov {
			if c <= 0 {
				continue
			}
			p := src[x*4 : x*4+4]
			a := float64(p[3])
			if c < 1 {
				a = math.Floor(a*c + 0.5)
			}
			if a <= 0 {
				continue
			}
			dst[x*4], dst[x*4+1], dst[x*4+2], dst[x*4+3] = p[0], p[1], p[2], uint8(a)
		}
	}
	return out
}

func addSpan(cov []float64, x0, x1, weight float64) {
	w := float64(len(cov))
	x0, x1 = math.Max(x0, 0), math.Min(x1, w)
	if x1 <= x0 {
		return
	}
	for px := int(x0); px < len(cov) && float64(px) < x1; px++ {
		overlap := math.Min(x1, float64(px+1)) - math.Max(x0, float64(px))
		if overlap > 0 {
			cov[px] += overlap * weight
		}
	}
}
