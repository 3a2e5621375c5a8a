package rasterlayer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wgdzlh/rasterlayer/log"
	"github.com/wgdzlh/rasterlayer/utils"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/dhconnelly/rtreego"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type AreaFeature struct {
	Properties map[string]interface{}
	Geometry   geom.Polygonal
}

// 命名区域：预置（geojson文件）或用户绘制
type AreaDefinition struct {
	ID       string
	Label    string
	FileName string
	Features []AreaFeature
	Custom   bool

	bounds geom.Bounds
}

// 所有面要素的经纬度外包矩形
func (a *AreaDefinition) Bounds() geom.Bounds {
	return a.bounds
}

func (a *AreaDefinition) computeBounds() {
	b := geom.NewBounds()
	for _, f := range a.Features {
		if f.Geometry != nil {
			b.Extend(f.Geometry.Bounds())
		}
	}
	a.bounds = *b
}

// rtreego.Spatial
type areaItem struct {
	area *AreaDefinition
}

func (it areaItem) Bounds() rtreego.Rect {
	b := it.area.bounds
	const minLen = 1e-9
	lengths := []float64{max(b.Max.X-b.Min.X, minLen), max(b.Max.Y-b.Min.Y, minLen)}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min.X, b.Min.Y}, lengths)
	return rect
}

type featureCollection struct {
	Type     string           `json:"type"`
	Features []geojsonFeature `json:"features"`
}

type geojsonFeature struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   *geojson.Geometry      `json:"geometry"`
}

// 解析FeatureCollection/Feature/Polygon/MultiPolygon，只保留面要素
func ParseAreaGeoJSON(data []byte) (features []AreaFeature, err error) {
	var fc featureCollection
	if err = json.Unmarshal(data, &fc); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		return
	}
	switch fc.Type {
	case "FeatureCollection":
	case "Feature":
		var f geojsonFeature
		if err = json.Unmarshal(data, &f); err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
			return
		}
		fc.Features = []geojsonFeature{f}
	case "Polygon", "MultiPolygon":
		var g geojson.Geometry
		if err = json.Unmarshal(data, &g); err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
			return
		}
		fc.Features = []geojsonFeature{{Type: "Feature", Geometry: &g}}
	default:
		err = fmt.Errorf("%w: unexpected type %q", ErrInvalidGeoJSON, fc.Type)
		return
	}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		g, e := decodePolygonal(f.Geometry)
		if e != nil {
			log.Warn("AreaStore:skip feature", zap.Int("idx", i), zap.String("type", f.Geometry.Type), zap.Error(e))
			continue
		}
		features = append(features, AreaFeature{Properties: f.Properties, Geometry: g})
	}
	return
}

// geojson包不支持MultiPolygon，逐个部分按Polygon解码
func decodePolygonal(g *geojson.Geometry) (p geom.Polygonal, err error) {
	switch g.Type {
	case "Polygon":
		var gg geom.Geom
		gg, err = geojson.FromGeoJSON(&geojson.Geometry{Type: g.Type, Coordinates: trimPositions(g.Coordinates, 2)})
		if err != nil {
			return
		}
		p = gg.(geom.Polygon)
	case "MultiPolygon":
		parts, ok := g.Coordinates.([]interface{})
		if !ok {
			err = ErrInvalidGeoJSON
			return
		}
		mp := make(geom.MultiPolygon, 0, len(parts))
		for _, part := range parts {
			var gg geom.Geom
			gg, err = geojson.FromGeoJSON(&geojson.Geometry{Type: "Polygon", Coordinates: trimPositions(part, 2)})
			if err != nil {
				return
			}
			mp = append(mp, gg.(geom.Polygon))
		}
		p = mp
	default:
		err = fmt.Errorf("%w: %s", ErrWrongGeoType, g.Type)
	}
	return
}

// 去掉坐标中的高程等多余维度；depth为坐标点所在的嵌套层数
func trimPositions(v interface{}, depth int) interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return v
	}
	if depth == 0 {
		if len(arr) > 2 {
			return arr[:2]
		}
		return arr
	}
	out := make([]interface{}, len(arr))
	for i, e := range arr {
		out[i] = trimPositions(e, depth-1)
	}
	return out
}

// 区域目录：id -> 区域，另维护R树用于范围查询
type AreaStore struct {
	areas     map[string]*AreaDefinition
	tree      *rtreego.Rtree
	customSeq int
	now       func() time.Time
	rLock     sync.Mutex
	logTag    string
}

func NewAreaStore() *AreaStore {
	return &AreaStore{
		areas:     map[string]*AreaDefinition{},
		tree:      rtreego.NewTree(2, 25, 50),
		customSeq: 1,
		now:       time.Now,
		logTag:    "AreaStore:",
	}
}

// 读取单个geojson或shapefile为预置区域，id为文件名的slug
func LoadAreaFile(path string) (area *AreaDefinition, err error) {
	var features []AreaFeature
	if strings.EqualFold(filepath.Ext(path), FILE_EXT_SHP) {
		features, err = readShapefile(path)
	} else {
		var data []byte
		if data, err = os.ReadFile(path); err != nil {
			return
		}
		features, err = ParseAreaGeoJSON(data)
	}
	if err != nil {
		return
	}
	base := utils.GetFilenameWithoutExt(path)
	area = &AreaDefinition{
		ID:       utils.Slugify(base),
		Label:    base,
		FileName: filepath.Base(path),
		Features: features,
	}
	if area.ID == "" {
		area.ID = "area"
	}
	return
}

// 面要素及全部属性；有.prj时转换到经纬度，否则坐标按经纬度读取
func readShapefile(path string) (features []AreaFeature, err error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return
	}
	defer dec.Close()
	trans, err := shapefileTransform(dec)
	if err != nil {
		return
	}
	fields := dec.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(string(f.Name[:]), "\x00")
	}
	for row := 0; ; row++ {
		g, attrs, more := dec.DecodeRowFields(names...)
		if err = dec.Error(); err != nil || !more {
			return
		}
		if g == nil {
			continue
		}
		if trans != nil {
			if g, err = g.Transform(trans); err != nil {
				return
			}
		}
		p, ok := g.(geom.Polygonal)
		if !ok {
			log.Warn("AreaStore:skip non-polygon shape", zap.String("file", path), zap.Int("row", row))
			continue
		}
		props := make(map[string]interface{}, len(attrs))
		for k, v := range attrs {
			props[k] = strings.TrimSpace(v)
		}
		features = append(features, AreaFeature{Properties: props, Geometry: p})
	}
}

func shapefileTransform(dec *shp.Decoder) (trans proj.Transformer, err error) {
	sr, err := dec.SR()
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}
	wgs84, err := proj.Parse(WGS84_DEF)
	if err != nil {
		return
	}
	return sr.NewTransform(wgs84)
}

// 加载目录下所有*.geojson和*.shp，无法读取的文件跳过，错误合并返回
func (s *AreaStore) LoadDir(dir string) (n int, err error) {
	files, err := utils.ListFiles(dir, FILE_EXT_GEOJSON, FILE_EXT_SHP)
	if err != nil {
		log.Error(s.logTag+"list area dir failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, f := range files {
		area, e := LoadAreaFile(filepath.Join(dir, filepath.FromSlash(f)))
		if e == nil {
			e = s.Add(area)
		}
		if e != nil {
			log.Warn(s.logTag+"skip area file", zap.String("file", f), zap.Error(e))
			err = multierr.Append(err, fmt.Errorf("%s: %w", f, e))
			continue
		}
		n++
	}
	log.Info(s.logTag+"areas loaded", zap.String("dir", dir), zap.Int("count", n))
	return
}

func (s *AreaStore) Add(area *AreaDefinition) error {
	s.rLock.Lock()
	defer s.rLock.Unlock()
	if _, ok := s.areas[area.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAreaExists, area.ID)
	}
	s.insert(area)
	return nil
}

func (s *AreaStore) insert(area *AreaDefinition) {
	area.computeBounds()
	s.areas[area.ID] = area
	if validBounds(area.bounds) {
		s.tree.Insert(areaItem{area})
	}
}

func (s *AreaStore) uniqueID(label string) string {
	base := utils.Slugify(label)
	if base == "" {
		base = "area"
	}
	id := base
	for n := 2; ; n++ {
		if _, ok := s.areas[id]; !ok {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

// 用户绘制的区域，vertices为经纬度点，至少3个
func (s *AreaStore) AddCustom(label string, vertices []geom.Point) (area *AreaDefinition, err error) {
	if len(vertices) < 3 {
		err = ErrNotEnoughVertices
		return
	}
	ring := make([]geom.Point, len(vertices), len(vertices)+1)
	copy(ring, vertices)
	if first, last := ring[0], ring[len(ring)-1]; first != last {
		ring = append(ring, first)
	}

	s.rLock.Lock()
	defer s.rLock.Unlock()
	defLabel := fmt.Sprintf(CUSTOM_AREA_LABEL_TPL, s.customSeq)
	s.customSeq++
	if label = strings.TrimSpace(label); label == "" {
		label = defLabel
	}
	id := s.uniqueID(label)
	area = &AreaDefinition{
		ID:       id,
		Label:    label,
		FileName: id + FILE_EXT_GEOJSON,
		Custom:   true,
		Features: []AreaFeature{{
			Properties: map[string]interface{}{
				"name":      label,
				"source":    CUSTOM_AREA_SOURCE,
				"createdAt": s.now().UTC().Format(time.RFC3339Nano),
			},
			Geometry: geom.Polygon{ring},
		}},
	}
	s.insert(area)
	log.Info(s.logTag+"custom area added", zap.String("id", id), zap.String("label", label))
	return
}

// 仅可删除用户绘制的区域
func (s *AreaStore) Delete(id string) error {
	s.rLock.Lock()
	defer s.rLock.Unlock()
	area, ok := s.areas[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAreaNotFound, id)
	}
	if !area.Custom {
		return fmt.Errorf("%w: %s", ErrAreaNotCustom, id)
	}
	delete(s.areas, id)
	s.rebuildTree()
	log.Info(s.logTag+"custom area deleted", zap.String("id", id))
	return nil
}

func (s *AreaStore) rebuildTree() {
	s.tree = rtreego.NewTree(2, 25, 50)
	for _, a := range s.areas {
		if validBounds(a.bounds) {
			s.tree.Insert(areaItem{a})
		}
	}
}

func (s *AreaStore) Get(id string) (area *AreaDefinition, ok bool) {
	s.rLock.Lock()
	area, ok = s.areas[id]
	s.rLock.Unlock()
	return
}

// 按名称排序
func (s *AreaStore) List() []*AreaDefinition {
	s.rLock.Lock()
	list := make([]*AreaDefinition, 0, len(s.areas))
	for _, a := range s.areas {
		list = append(list, a)
	}
	s.rLock.Unlock()
	sortAreas(list)
	return list
}

func sortAreas(list []*AreaDefinition) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Label != list[j].Label {
			return list[i].Label < list[j].Label
		}
		return list[i].ID < list[j].ID
	})
}

// 与经纬度范围相交的区域，按名称排序
func (s *AreaStore) Intersecting(bounds geom.Bounds) (list []*AreaDefinition) {
	if !validBounds(bounds) {
		return
	}
	lengths := []float64{max(bounds.Max.X-bounds.Min.X, 1e-9), max(bounds.Max.Y-bounds.Min.Y, 1e-9)}
	rect, err := rtreego.NewRect(rtreego.Point{bounds.Min.X, bounds.Min.Y}, lengths)
	if err != nil {
		return
	}
	s.rLock.Lock()
	for _, sp := range s.tree.SearchIntersect(rect) {
		list = append(list, sp.(areaItem).area)
	}
	s.rLock.Unlock()
	sortAreas(list)
	return
}
