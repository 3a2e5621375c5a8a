package rasterlayer

import (
	"fmt"
	"sync"

	"github.com/wgdzlh/rasterlayer/log"

	"github.com/ctessum/geom/proj"
	"go.uber.org/zap"
)

// 坐标系定义注册表：EPSG代码 -> proj4定义
//
// 定义在注册表生命周期内只增不减。每次获取转换函数时都重新解析定义，
// 因为proj.SR在计算时会改写自身字段，不能在多个转换之间共享。
type ProjectionRegistry struct {
	defs   map[int]string
	geog   map[int]bool
	rLock  sync.Mutex
	logTag string
}

func NewProjectionRegistry() *ProjectionRegistry {
	r := &ProjectionRegistry{
		defs:   map[int]string{},
		geog:   map[int]bool{},
		logTag: "ProjectionRegistry:",
	}
	r.defs[UNIVERSAL_SRID] = WGS84_DEF
	r.geog[UNIVERSAL_SRID] = true
	r.defs[WEB_MERC_SRID] = WEB_MERC_DEF
	return r
}

// 由EPSG代码推断WGS84 UTM分带及南北半球
func UTMZone(code int) (zone int, south, ok bool) {
	switch {
	case code >= UTM_NORTH_FIRST && code <= UTM_NORTH_LAST:
		return code - UTM_NORTH_FIRST + 1, false, true
	case code >= UTM_SOUTH_FIRST && code <= UTM_SOUTH_LAST:
		return code - UTM_SOUTH_FIRST + 1, true, true
	}
	return
}

// 生成WGS84 UTM分带的proj4定义
func UTMDefinition(code int) (def string, ok bool) {
	zone, south, ok := UTMZone(code)
	if !ok {
		return
	}
	opt := ""
	if south {
		opt = UTM_SOUTH_OPT
	}
	def = fmt.Sprintf(UTM_DEF_TPL, zone, opt)
	return
}

// 注册坐标系定义，定义须能完成到经纬度的测试转换
func (r *ProjectionRegistry) Register(code int, def string) (err error) {
	sr, err := proj.Parse(def)
	if err != nil {
		log.Error(r.logTag+"parse proj def failed", zap.Int("srid", code), zap.String("def", def), zap.Error(err))
		return fmt.Errorf("%w: EPSG:%d: %v", ErrInvalidProjDef, code, err)
	}
	if err = testTransform(sr); err != nil {
		log.Error(r.logTag+"test transform failed", zap.Int("srid", code), zap.String("def", def), zap.Error(err))
		return fmt.Errorf("%w: EPSG:%d: %v", ErrInvalidProjDef, code, err)
	}
	r.rLock.Lock()
	defer r.rLock.Unlock()
	r.defs[code] = def
	r.geog[code] = sr.Name == "longlat"
	log.Info(r.logTag+"registered proj def", zap.Int("srid", code), zap.String("def", def))
	return
}

func testTransform(sr *proj.SR) error {
	wgs84, err := proj.Parse(WGS84_DEF)
	if err != nil {
		return err
	}
	trans, err := sr.NewTransform(wgs84)
	if err != nil {
		return err
	}
	_, _, err = trans(0, 0)
	return err
}

func (r *ProjectionRegistry) lookup(code int) (def string, ok bool) {
	r.rLock.Lock()
	def, ok = r.defs[code]
	r.rLock.Unlock()
	return
}

// 确认坐标系定义可用；未定义的WGS84 UTM代码会自动合成并注册，其余未知代码返回false且无副作用
func (r *ProjectionRegistry) EnsureDefinition(code int) bool {
	if _, ok := r.lookup(code); ok {
		return true
	}
	def, ok := UTMDefinition(code)
	if !ok {
		log.Warn(r.logTag+"no proj def available", zap.Int("srid", code))
		return false
	}
	return r.Register(code, def) == nil
}

// 是否为经纬度坐标系
func (r *ProjectionRegistry) IsGeographic(code int) bool {
	r.rLock.Lock()
	defer r.rLock.Unlock()
	return r.geog[code]
}

// 坐标系code -> EPSG:4326 的转换函数
func (r *ProjectionRegistry) ToGeographic(code int) (proj.Transformer, error) {
	return r.newTransform(code, UNIVERSAL_SRID)
}

// EPSG:4326 -> 坐标系code 的转换函数
func (r *ProjectionRegistry) FromGeographic(code int) (proj.Transformer, error) {
	return r.newTransform(UNIVERSAL_SRID, code)
}

func (r *ProjectionRegistry) newTransform(srid, tSrid int) (trans proj.Transformer, err error) {
	def, ok := r.lookup(srid)
	if !ok {
		err = fmt.Errorf("%w: EPSG:%d", ErrProjectionUndefined, srid)
		return
	}
	tDef, ok := r.lookup(tSrid)
	if !ok {
		err = fmt.Errorf("%w: EPSG:%d", ErrProjectionUndefined, tSrid)
		return
	}
	ref, err := proj.Parse(def)
	if err != nil {
		return
	}
	tRef, err := proj.Parse(tDef)
	if err != nil {
		return
	}
	trans, err = ref.NewTransform(tRef)
	if err != nil {
		log.Error(r.logTag+"create transform failed", zap.Int("srid", srid), zap.Int("tSrid", tSrid), zap.Error(err))
	}
	return
}
