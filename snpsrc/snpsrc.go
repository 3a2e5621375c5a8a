// snappy压缩的float32网格及其图层目录
package snpsrc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wgdzlh/rasterlayer"
	"github.com/wgdzlh/rasterlayer/log"

	"github.com/golang/snappy"
	"go.uber.org/zap"
)

const (
	tileName   = "%s_%s.dat.snp"
	dateLayout = "20060102"
	isoLayout  = "2006-01-02"
	logTag     = "SnappySource:"
)

var (
	ErrNoLayer     = errors.New("layer not in catalog")
	ErrNoDate      = errors.New("date not in layer")
	ErrWrongLength = errors.New("decoded data length mismatch")
)

type Layer struct {
	Name         string    `json:"name"`
	Abstract     string    `json:"abstract"`
	Dates        []string  `json:"dates_iso8601"`
	XSize        int       `json:"x_size"`
	YSize        int       `json:"y_size"`
	Geotransform []float64 `json:"geotransform"`
	NoData       *float64  `json:"no_data"`
	EPSG         int       `json:"epsg"`
	Proj4        string    `json:"proj4"`
}

type Layers map[string]Layer

func ReadLayers(fileName string) (lyrs Layers, err error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return
	}
	lyrs = Layers{}
	if err = json.Unmarshal(data, &lyrs); err != nil {
		log.Error(logTag+"parse layer catalog failed", zap.String("file", fileName), zap.Error(err))
	}
	return
}

func (ls Layers) Names() []string {
	names := make([]string, 0, len(ls))
	for n := range ls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// 图层自带proj4定义时登记到注册表
func (l Layer) RegisterProjection(reg *rasterlayer.ProjectionRegistry) error {
	if l.EPSG == 0 || l.Proj4 == "" {
		return nil
	}
	return reg.Register(l.EPSG, l.Proj4)
}

func (l Layer) hasDate(date time.Time) bool {
	want := date.Format(isoLayout)
	for _, d := range l.Dates {
		if len(d) >= 10 && d[:10] == want {
			return true
		}
	}
	return false
}

func (l Layer) TileName(date time.Time) string {
	return fmt.Sprintf(tileName, l.Name, date.Format(dateLayout))
}

// 某图层某日期的网格文件
type Source struct {
	Dir   string
	Layer Layer
	Date  time.Time
}

// isoDate须在图层的日期列表中（列表为空时不检查）
func NewSource(dir string, layer Layer, isoDate string) (s *Source, err error) {
	date, err := time.Parse(isoLayout, isoDate[:min(len(isoDate), 10)])
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrNoDate, isoDate, err)
		return
	}
	if len(layer.Dates) > 0 && !layer.hasDate(date) {
		err = fmt.Errorf("%w: %s %s", ErrNoDate, layer.Name, isoDate)
		return
	}
	s = &Source{Dir: dir, Layer: layer, Date: date}
	return
}

func (ls Layers) Source(dir, name, isoDate string) (*Source, error) {
	l, ok := ls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLayer, name)
	}
	return NewSource(dir, l, isoDate)
}

// 用作叠加图key，包含日期
func (s *Source) Key() string {
	return s.Layer.TileName(s.Date)
}

func (s *Source) ReadRaster(ctx context.Context) (grid *rasterlayer.RasterGrid, meta *rasterlayer.GeoMetadata, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	path := filepath.Join(s.Dir, s.Key())
	cdata, err := os.ReadFile(path)
	if err != nil {
		log.Error(logTag+"read tile failed", zap.String("path", path), zap.Error(err))
		return
	}
	data, err := snappy.Decode(nil, cdata)
	if err != nil {
		log.Error(logTag+"decompress tile failed", zap.String("path", path), zap.Error(err))
		return
	}
	grid, err = decodeGrid(data, s.Layer.XSize, s.Layer.YSize)
	if err != nil {
		log.Error(logTag+"decode tile failed", zap.String("path", path), zap.Int("bytes", len(data)), zap.Error(err))
		return
	}
	if s.Layer.NoData != nil {
		grid.NoData, grid.HasNoData = *s.Layer.NoData, true
	}
	meta = s.Layer.metadata()
	return
}

// 小端float32
func decodeGrid(data []byte, x, y int) (grid *rasterlayer.RasterGrid, err error) {
	if x <= 0 || y <= 0 {
		err = rasterlayer.ErrEmptyRaster
		return
	}
	if len(data) != x*y*4 {
		err = fmt.Errorf("%w: got %d bytes, want %d", ErrWrongLength, len(data), x*y*4)
		return
	}
	grid = rasterlayer.NewRasterGrid(x, y)
	for i := range grid.Data {
		grid.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return
}

// 编码为snappy压缩的小端float32
func EncodeGrid(grid *rasterlayer.RasterGrid) []byte {
	raw := make([]byte, len(grid.Data)*4)
	for i, v := range grid.Data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return snappy.Encode(nil, raw)
}

func (l Layer) metadata() *rasterlayer.GeoMetadata {
	meta := &rasterlayer.GeoMetadata{}
	if gt := l.Geotransform; len(gt) == 6 {
		meta.Transform = []float64{
			gt[1], gt[2], 0, gt[0],
			gt[4], gt[5], 0, gt[3],
			0, 0, 0, 0,
			0, 0, 0, 1,
		}
	}
	meta.GeoKeys.RasterType = int(rasterlayer.PixelIsArea)
	switch {
	case l.EPSG == rasterlayer.UNIVERSAL_SRID:
		meta.GeoKeys.ModelType = rasterlayer.ModelTypeGeographic
		meta.GeoKeys.GeographicType = l.EPSG
	case l.EPSG > 0:
		meta.GeoKeys.ModelType = rasterlayer.ModelTypeProjected
		meta.GeoKeys.ProjectedType = l.EPSG
	}
	meta.Citation = l.Proj4
	return meta
}
