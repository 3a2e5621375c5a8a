package rasterlayer

import (
	"sync"

	"github.com/wgdzlh/rasterlayer/log"

	"github.com/ctessum/geom"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// 栅格的地理参考，解析一次后不再变化
type GeoReference struct {
	Width             int
	Height            int
	EPSG              int // 0表示未知
	RasterType        RasterType
	Geographic        bool
	ProjectionDefined bool
	BBoxSource        TransformKind
	PixelModel        TransformKind
	BBox              [4]float64  // 源坐标系范围
	Bounds            geom.Bounds // 经纬度范围，Min为西南角

	model pixelModel
}

// 数值型、非经纬度且无可用定义的坐标系
func (g *GeoReference) ProjectionUndefined() bool {
	return g.EPSG != 0 && !g.Geographic && !g.ProjectionDefined
}

// 需要重投影到经纬度网格
func (g *GeoReference) NeedsReprojection() bool {
	return g.EPSG != 0 && !g.Geographic && g.ProjectionDefined
}

func (g *GeoReference) PixelToWorld(i, j float64) (x, y float64) {
	return g.model.PixelToWorld(i, j)
}

func (g *GeoReference) WorldToPixel(x, y float64) (i, j float64) {
	return g.model.WorldToPixel(x, y)
}

type ResolveOptions struct {
	Registry  *ProjectionRegistry
	ForceEPSG int
}

// 由元数据选取坐标系代码
func SelectEPSG(keys GeoKeys, force int) int {
	if force > 0 {
		return force
	}
	switch keys.ModelType {
	case ModelTypeGeographic:
		if keys.GeographicType > 0 {
			return keys.GeographicType
		}
	case ModelTypeProjected:
		if keys.ProjectedType > 0 {
			return keys.ProjectedType
		}
	}
	if keys.GeographicType > 0 {
		return keys.GeographicType
	}
	if keys.ProjectedType > 0 {
		return keys.ProjectedType
	}
	return 0
}

// 解析栅格地理参考，元数据缺失时退回默认值，不会失败
func ResolveGeoReference(width, height int, meta *GeoMetadata, opts ResolveOptions) *GeoReference {
	if meta == nil {
		meta = &GeoMetadata{}
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewProjectionRegistry()
	}
	rt := PixelIsArea
	if meta.GeoKeys.RasterType == int(PixelIsPoint) {
		rt = PixelIsPoint
	}
	g := &GeoReference{
		Width:      width,
		Height:     height,
		EPSG:       SelectEPSG(meta.GeoKeys, opts.ForceEPSG),
		RasterType: rt,
	}
	g.BBox, g.BBoxSource = resolveBBox(width, height, rt, meta)
	g.model = resolvePixelModel(width, height, g.BBox, meta)
	g.PixelModel = g.model.Kind()

	b := g.BBox
	g.Bounds = lonLatBounds(b[0], b[1], b[2], b[3])
	if g.EPSG == 0 {
		return g
	}
	if g.EPSG == UNIVERSAL_SRID || reg.IsGeographic(g.EPSG) {
		g.Geographic = true
		g.ProjectionDefined = true
		return g
	}
	if !reg.EnsureDefinition(g.EPSG) {
		return g
	}
	// EnsureDefinition之后注册的也可能是经纬度定义
	if reg.IsGeographic(g.EPSG) {
		g.Geographic = true
		g.ProjectionDefined = true
		return g
	}
	bounds, err := projectCorners(reg, g.EPSG, b)
	if err != nil {
		log.Warn("GeoReference:transform bbox corners failed", zap.Int("srid", g.EPSG), zap.Error(err))
		return g
	}
	g.Bounds = bounds
	g.ProjectionDefined = true
	return g
}

func lonLatBounds(west, south, east, north float64) geom.Bounds {
	return geom.Bounds{
		Min: geom.Point{X: west, Y: south},
		Max: geom.Point{X: east, Y: north},
	}
}

// 四个角点转到经纬度后取外包矩形（近似，未加密边界）
func projectCorners(reg *ProjectionRegistry, code int, b [4]float64) (bounds geom.Bounds, err error) {
	trans, err := reg.ToGeographic(code)
	if err != nil {
		return
	}
	corners := [4][2]float64{{b[0], b[1]}, {b[2], b[1]}, {b[2], b[3]}, {b[0], b[3]}}
	lons := make([]float64, 0, 4)
	lats := make([]float64, 0, 4)
	for _, c := range corners {
		lon, lat, e := trans(c[0], c[1])
		if e != nil {
			err = e
			return
		}
		if !isFinite(lon) || !isFinite(lat) {
			continue
		}
		lons = append(lons, lon)
		lats = append(lats, lat)
	}
	if len(lons) == 0 {
		err = ErrProjectionUndefined
		return
	}
	bounds = lonLatBounds(floats.Min(lons), floats.Min(lats), floats.Max(lons), floats.Max(lats))
	return
}

// 按栅格标识缓存地理参考，只增不删
type GeoCache struct {
	reg    *ProjectionRegistry
	refs   map[string]*GeoReference
	rLock  sync.Mutex
	logTag string
}

func NewGeoCache(reg *ProjectionRegistry) *GeoCache {
	if reg == nil {
		reg = NewProjectionRegistry()
	}
	return &GeoCache{
		reg:    reg,
		refs:   map[string]*GeoReference{},
		logTag: "GeoCache:",
	}
}

func (c *GeoCache) Get(key string) (ref *GeoReference, ok bool) {
	c.rLock.Lock()
	ref, ok = c.refs[key]
	c.rLock.Unlock()
	return
}

// 同一key只解析一次
func (c *GeoCache) Resolve(key string, width, height int, meta *GeoMetadata, forceEPSG int) *GeoReference {
	c.rLock.Lock()
	defer c.rLock.Unlock()
	if ref, ok := c.refs[key]; ok {
		return ref
	}
	ref := ResolveGeoReference(width, height, meta, ResolveOptions{Registry: c.reg, ForceEPSG: forceEPSG})
	c.refs[key] = ref
	log.Debug(c.logTag+"resolved", zap.String("key", key), zap.Int("srid", ref.EPSG),
		zap.Stringer("bboxSource", ref.BBoxSource), zap.Stringer("pixelModel", ref.PixelModel),
		zap.Bool("projDefined", ref.ProjectionDefined))
	return ref
}

func (c *GeoCache) Len() int {
	c.rLock.Lock()
	defer c.rLock.Unlock()
	return len(c.refs)
}
