// GDAL读取GeoTIFF等栅格文件，作为rasterlayer.RasterSource
package gdalsrc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wgdzlh/rasterlayer"
	"github.com/wgdzlh/rasterlayer/log"
	"github.com/wgdzlh/rasterlayer/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

var (
	ErrInvalidTif    = errors.New("invalid tif")
	ErrWrongTif      = errors.New("tif is malformed")
	ErrTifReadFailed = errors.New("tif read failed")
	ErrVoidSrid      = errors.New("void srid")
)

const logTag = "GdalSource:"

type Source struct {
	Path string
}

func Open(path string) *Source {
	return &Source{Path: path}
}

// 读取第1波段为float32，以及nodata、仿射变换与坐标系
func (s *Source) ReadRaster(ctx context.Context) (grid *rasterlayer.RasterGrid, meta *rasterlayer.GeoMetadata, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	ds, err := gdal.Open(s.Path, gdal.ReadOnly)
	if err != nil {
		log.Error(logTag+"open tif failed", zap.String("path", s.Path), zap.Error(err))
		err = fmt.Errorf("%w: %s: %v", ErrInvalidTif, s.Path, err)
		return
	}
	defer ds.Close()
	if bc := ds.RasterCount(); bc < 1 {
		log.Error(logTag+"tif has no band", zap.String("path", s.Path))
		err = ErrWrongTif
		return
	}
	x, y := ds.RasterXSize(), ds.RasterYSize()
	band := ds.RasterBand(1)
	log.Info(logTag+"read tif band", zap.String("path", s.Path), zap.String("dt", band.RasterDataType().Name()),
		zap.Int("width", x), zap.Int("height", y))
	grid = rasterlayer.NewRasterGrid(x, y)
	if err = band.IO(gdal.Read, 0, 0, x, y, grid.Data, x, y, 0, 0); err != nil {
		log.Error(logTag+"read tif band failed", zap.String("path", s.Path), zap.Error(err))
		grid = nil
		err = fmt.Errorf("%w: %s: %v", ErrTifReadFailed, s.Path, err)
		return
	}
	grid.NoData, grid.HasNoData = band.NoDataValue()

	meta = &rasterlayer.GeoMetadata{}
	isPoint := strings.EqualFold(ds.MetadataItem("AREA_OR_POINT", ""), "Point")
	meta.Transform = geoTransformToMatrix(ds.GeoTransform(), isPoint)
	if isPoint {
		meta.GeoKeys.RasterType = int(rasterlayer.PixelIsPoint)
	} else {
		meta.GeoKeys.RasterType = int(rasterlayer.PixelIsArea)
	}
	if wkt := ds.Projection(); wkt != "" {
		meta.Citation = wkt
		if e := fillGeoKeys(wkt, &meta.GeoKeys); e != nil {
			log.Warn(logTag+"no srid in tif", zap.String("path", s.Path), zap.Error(e))
		}
	}
	return
}

// GDAL六参数 -> 行优先4x4模型变换。GDAL总以像元角点为原点，PixelIsPoint时平移半个像元到中心
func geoTransformToMatrix(gt [6]float64, isPoint bool) []float64 {
	x0, y0 := gt[0], gt[3]
	if isPoint {
		x0 += 0.5*gt[1] + 0.5*gt[2]
		y0 += 0.5*gt[4] + 0.5*gt[5]
	}
	return []float64{
		gt[1], gt[2], 0, x0,
		gt[4], gt[5], 0, y0,
		0, 0, 0, 0,
		0, 0, 0, 1,
	}
}

func fillGeoKeys(wkt string, keys *rasterlayer.GeoKeys) (err error) {
	sp := gdal.CreateSpatialReference(wkt)
	defer sp.Destroy()
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok {
		if e := sp.AutoIdentifyEPSG(); e == nil {
			rawId, ok = sp.AttrValue("AUTHORITY", 1)
		}
	}
	if !ok {
		return ErrVoidSrid
	}
	srid := utils.StrToInt(rawId)
	if srid <= 0 {
		return fmt.Errorf("%w: authority code %q", ErrVoidSrid, rawId)
	}
	switch {
	case sp.IsGeographic():
		keys.ModelType = rasterlayer.ModelTypeGeographic
		keys.GeographicType = srid
	case sp.IsProjected():
		keys.ModelType = rasterlayer.ModelTypeProjected
		keys.ProjectedType = srid
	default:
		keys.ProjectedType = srid
	}
	return
}
