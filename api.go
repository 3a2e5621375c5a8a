package rasterlayer

import (
	"context"
	"math"

	"github.com/ctessum/geom"
)

// 像元坐标约定：1=PixelIsArea（像元角点），2=PixelIsPoint（像元中心）
type RasterType int

const (
	PixelIsArea  RasterType = 1
	PixelIsPoint RasterType = 2
)

func (t RasterType) String() string {
	if t == PixelIsPoint {
		return "PixelIsPoint"
	}
	return "PixelIsArea"
}

// half pixel offset applied to the raster corners
func (t RasterType) cornerOffset() float64 {
	if t == PixelIsPoint {
		return 0.5
	}
	return 0
}

const (
	ModelTypeProjected  = 1
	ModelTypeGeographic = 2
)

// GeoTIFF GeoKey 字段，0表示缺失
type GeoKeys struct {
	ModelType      int `json:"GTModelTypeGeoKey,omitempty"`
	RasterType     int `json:"GTRasterTypeGeoKey,omitempty"`
	GeographicType int `json:"GeographicTypeGeoKey,omitempty"`
	ProjectedType  int `json:"ProjectedCSTypeGeoKey,omitempty"`
}

type TiePoint struct {
	I, J, K float64
	X, Y, Z float64
}

// 解码器提供的栅格地理元数据
type GeoMetadata struct {
	GeoKeys    GeoKeys
	Transform  []float64  // ModelTransformation 4x4，行优先
	TiePoints  []TiePoint // ModelTiepoint
	PixelScale []float64  // ModelPixelScale
	BBox       []float64  // 解码库给出的范围 [minX,minY,maxX,maxY]，源坐标系单位
	Citation   string     // GeoAsciiParams
}

// 单波段标量栅格
type RasterGrid struct {
	Width     int
	Height    int
	Data      []float32
	NoData    float64
	HasNoData bool
}

func NewRasterGrid(width, height int) *RasterGrid {
	return &RasterGrid{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height),
	}
}

// NaN或等于NoData的像元无效
func (g *RasterGrid) Valid(v float32) bool {
	if v != v {
		return false
	}
	return !(g.HasNoData && float64(v) == g.NoData)
}

func (g *RasterGrid) check() error {
	if g == nil || g.Width <= 0 || g.Height <= 0 {
		return ErrEmptyRaster
	}
	if len(g.Data) != g.Width*g.Height {
		return ErrWrongBufferSize
	}
	return nil
}

// 解码协作方：读取栅格数据及元数据
type RasterSource interface {
	ReadRaster(ctx context.Context) (*RasterGrid, *GeoMetadata, error)
}

// 内存中的栅格来源
type MemorySource struct {
	Grid *RasterGrid
	Meta *GeoMetadata
}

func (s MemorySource) ReadRaster(ctx context.Context) (*RasterGrid, *GeoMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.Grid == nil {
		return nil, nil, ErrEmptyRaster
	}
	meta := s.Meta
	if meta == nil {
		meta = &GeoMetadata{}
	}
	return s.Grid, meta, nil
}

// 观测值范围，仅供展示
type ValueRange struct {
	Min float64
	Max float64
}

func validBounds(b geom.Bounds) bool {
	for _, v := range [4]float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !b.Empty()
}
