package rasterlayer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"

	"github.com/wgdzlh/rasterlayer/log"
	"github.com/wgdzlh/rasterlayer/utils"

	"github.com/ctessum/geom"
	"github.com/golang/groupcache/singleflight"
	"go.uber.org/zap"
)

const DEFAULT_OPACITY = 0.8

type Config struct {
	ForceEPSG      int
	ChunkSize      int
	MaxOutputWidth int
	Yield          YieldFunc
	Projection     PlanarProjection
	Ramp           string
	Smoothing      bool
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		ChunkSize:      CHUNK_CELLS,
		MaxOutputWidth: MAX_REPROJECT_WIDTH,
		Yield:          GoschedYield,
		Projection:     WebMercator{},
		Ramp:           DEFAULT_RAMP,
		Smoothing:      true,
	}
}

// 强制使用的坐标系代码，覆盖元数据
func WithForceEPSG(code int) Option {
	return func(c *Config) { c.ForceEPSG = code }
}

func WithChunkSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ChunkSize = n
		}
	}
}

func WithMaxOutputWidth(w int) Option {
	return func(c *Config) {
		if w >= MIN_REPROJECT_SIZE {
			c.MaxOutputWidth = w
		}
	}
}

func WithYield(y YieldFunc) Option {
	return func(c *Config) {
		if y != nil {
			c.Yield = y
		}
	}
}

// 地图的平面投影，裁剪时使用
func WithPlanarProjection(p PlanarProjection) Option {
	return func(c *Config) {
		if p != nil {
			c.Projection = p
		}
	}
}

func WithRamp(name string) Option {
	return func(c *Config) { c.Ramp = name }
}

func WithSmoothing(on bool) Option {
	return func(c *Config) { c.Smoothing = on }
}

// 已激活栅格的叠加状态
type OverlayEntry struct {
	Key         string
	IsoDate     string
	Grid        *RasterGrid  // 工作网格（可能已重投影），渲染时只读
	Image       *image.NRGBA // 按当前色带渲染的结果
	Display     *image.NRGBA // 裁剪后的显示图
	Bounds      geom.Bounds
	NoData      float64
	HasNoData   bool
	GeoRef      *GeoReference
	Range       ValueRange
	Status      string
	Visible     bool
	Opacity     float64
	Reprojected bool
	SrcWidth    int
	SrcHeight   int
	Width       int
	Height      int

	maskKey string
}

func (e *OverlayEntry) MaskKey() string {
	return e.maskKey
}

// 叠加图工具箱：持有坐标系注册表、地理参考缓存、叠加图及当前色带/区域/平滑设置
type OverlayToolbox struct {
	cfg      Config
	reg      *ProjectionRegistry
	geo      *GeoCache
	areas    *AreaStore
	masker   *MaskCompositor
	overlays map[string]*OverlayEntry
	flight   singleflight.Group
	catalog  []string // 栅格目录中的日期

	rampName   string
	ramp       Ramp
	activeArea string
	smoothing  bool

	rLock  sync.Mutex
	opLock sync.Mutex
	logTag string
}

func NewOverlayToolbox(areas *AreaStore, opts ...Option) *OverlayToolbox {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if areas == nil {
		areas = NewAreaStore()
	}
	reg := NewProjectionRegistry()
	t := &OverlayToolbox{
		cfg:       cfg,
		reg:       reg,
		geo:       NewGeoCache(reg),
		areas:     areas,
		masker:    NewMaskCompositor(cfg.Projection),
		overlays:  map[string]*OverlayEntry{},
		smoothing: cfg.Smoothing,
		logTag:    "OverlayToolbox:",
	}
	t.ramp, t.rampName = t.normalizeRamp(cfg.Ramp)
	return t
}

func (t *OverlayToolbox) Registry() *ProjectionRegistry {
	return t.reg
}

func (t *OverlayToolbox) GeoCache() *GeoCache {
	return t.geo
}

func (t *OverlayToolbox) Areas() *AreaStore {
	return t.areas
}

func (t *OverlayToolbox) scheduler() Scheduler {
	return Scheduler{ChunkSize: t.cfg.ChunkSize, Yield: t.cfg.Yield}
}

func (t *OverlayToolbox) normalizeRamp(name string) (Ramp, string) {
	r, ok := RampByName(name)
	if !ok {
		if name != "" {
			log.Warn(t.logTag+"unknown ramp, fallback", zap.String("ramp", name), zap.String("fallback", DEFAULT_RAMP))
		}
		name = DEFAULT_RAMP
	}
	return r, name
}

func (t *OverlayToolbox) lookup(key string) (e *OverlayEntry, ok bool) {
	t.rLock.Lock()
	e, ok = t.overlays[key]
	t.rLock.Unlock()
	return
}

// 叠加图快照
func (t *OverlayToolbox) Entry(key string) (entry OverlayEntry, ok bool) {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	e, ok := t.overlays[key]
	if ok {
		entry = *e
	}
	return
}

// 按key排序
func (t *OverlayToolbox) Keys() []string {
	t.rLock.Lock()
	keys := make([]string, 0, len(t.overlays))
	for k := range t.overlays {
		keys = append(keys, k)
	}
	t.rLock.Unlock()
	sort.Strings(keys)
	return keys
}

// 激活栅格：已存在则直接返回；否则读取、统计、地理参考、重投影、渲染、裁剪后登记。
// 任何失败都不会登记叠加图。同一key的并发激活只执行一次，其余调用共享结果。key为空时随机生成
func (t *OverlayToolbox) Activate(ctx context.Context, key string, src RasterSource) (entry OverlayEntry, err error) {
	if key == "" {
		key = utils.NewRasterKey()
	}
	if _, ok := t.lookup(key); ok {
		entry, _ = t.Entry(key)
		return
	}
	_, err = t.flight.Do(key, func() (interface{}, error) {
		if _, ok := t.lookup(key); ok {
			return nil, nil
		}
		return nil, t.activate(ctx, key, src)
	})
	if err != nil {
		return
	}
	entry, _ = t.Entry(key)
	return
}

func (t *OverlayToolbox) activate(ctx context.Context, key string, src RasterSource) (err error) {
	e, err := t.load(ctx, key, src)
	if err != nil {
		return
	}
	// 与SetRamp/SetActiveArea互斥，保证登记时的色带和区域是当前的
	t.opLock.Lock()
	defer t.opLock.Unlock()
	t.rLock.Lock()
	ramp, area := t.ramp, t.currentArea()
	t.rLock.Unlock()
	if e.Image, err = Render(ctx, e.Grid, ramp, t.scheduler()); err != nil {
		return
	}
	t.rLock.Lock()
	t.applyMask(e, area, true)
	t.overlays[key] = e
	t.rLock.Unlock()
	log.Info(t.logTag+"overlay activated", zap.String("key", key), zap.String("status", e.Status))
	return
}

func (t *OverlayToolbox) load(ctx context.Context, key string, src RasterSource) (e *OverlayEntry, err error) {
	if src == nil {
		err = fmt.Errorf("%w: %s: no source", ErrRasterRead, key)
		return
	}
	grid, meta, err := src.ReadRaster(ctx)
	if err == nil {
		err = grid.check()
	}
	if err != nil {
		log.Error(t.logTag+"read raster failed", zap.String("key", key), zap.Error(err))
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s: %w", ErrRasterRead, key, err)
		}
		return
	}
	sched := t.scheduler()
	vr, err := EstimateRange(ctx, grid, sched)
	if err != nil {
		return
	}
	ref := t.geo.Resolve(key, grid.Width, grid.Height, meta, t.cfg.ForceEPSG)

	work, reprojected := grid, false
	if ref.NeedsReprojection() {
		out, rErr := Reproject(ctx, grid, ref, t.reg, t.cfg.MaxOutputWidth, sched)
		switch {
		case rErr == nil:
			work, reprojected = out, true
		case ctx.Err() != nil:
			err = rErr
			return
		default:
			log.Warn(t.logTag+"reproject failed, display without reprojection", zap.String("key", key), zap.Error(rErr))
		}
	} else if ref.ProjectionUndefined() {
		log.Warn(t.logTag+"no proj def available, display without reprojection", zap.String("key", key), zap.Int("srid", ref.EPSG))
	}

	e = &OverlayEntry{
		Key:         key,
		IsoDate:     utils.ExtractIsoDate(key),
		Grid:        work,
		Bounds:      ref.Bounds,
		NoData:      grid.NoData,
		HasNoData:   grid.HasNoData,
		GeoRef:      ref,
		Range:       vr,
		Opacity:     DEFAULT_OPACITY,
		Reprojected: reprojected,
		SrcWidth:    grid.Width,
		SrcHeight:   grid.Height,
		Width:       work.Width,
		Height:      work.Height,
	}
	e.Status = buildStatus(e)
	return
}

// 调用方须持有rLock
func (t *OverlayToolbox) currentArea() *AreaDefinition {
	if t.activeArea == "" {
		return nil
	}
	a, ok := t.areas.Get(t.activeArea)
	if !ok {
		return nil
	}
	return a
}

// 掩膜key未变且非强制时不处理
func (t *OverlayToolbox) applyMask(e *OverlayEntry, area *AreaDefinition, force bool) {
	key := MASK_KEY_ALL
	if area != nil {
		key = area.ID
	}
	if !force && e.maskKey == key {
		return
	}
	e.Display = e.Image
	if area != nil {
		e.Display, _ = t.masker.Composite(e.Image, e.Bounds, area)
	}
	e.maskKey = key
}

func buildStatus(e *OverlayEntry) string {
	parts := make([]string, 0, 5)
	if d := utils.FormatDisplayDate(e.IsoDate); d != "" {
		parts = append(parts, d)
	}
	ref := e.GeoRef
	crs := "EPSG:unknown"
	if ref != nil && ref.EPSG != 0 {
		crs = fmt.Sprintf("EPSG:%d", ref.EPSG)
	}
	if e.Reprojected {
		crs += fmt.Sprintf("→%d", UNIVERSAL_SRID)
	}
	if ref != nil && ref.ProjectionUndefined() {
		crs += " (undefined)"
	}
	parts = append(parts, crs)
	rt := PixelIsArea
	if ref != nil {
		rt = ref.RasterType
	}
	parts = append(parts, rt.String())
	if e.Reprojected {
		parts = append(parts, fmt.Sprintf("reproj:%dx%d→%dx%d", e.SrcWidth, e.SrcHeight, e.Width, e.Height))
	}
	parts = append(parts, fmt.Sprintf("obs:[%.3f, %.3f] domain:[0,1]", e.Range.Min, e.Range.Max))
	return strings.Join(parts, STATUS_SEP)
}

// 激活并显示
func (t *OverlayToolbox) Show(ctx context.Context, key string, src RasterSource) (entry OverlayEntry, err error) {
	if entry, err = t.Activate(ctx, key, src); err != nil {
		return
	}
	t.rLock.Lock()
	e := t.overlays[entry.Key]
	e.Visible = true
	entry = *e
	t.rLock.Unlock()
	return
}

// 隐藏但保留，再次显示无需重新加载
func (t *OverlayToolbox) Hide(key string) error {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	e, ok := t.overlays[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOverlayNotFound, key)
	}
	e.Visible = false
	return nil
}

// 显示中的叠加图返回完整状态，隐藏的只返回日期
func (t *OverlayToolbox) StatusText(key string) (string, error) {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	e, ok := t.overlays[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrOverlayNotFound, key)
	}
	if e.Visible {
		return e.Status, nil
	}
	if d := utils.FormatDisplayDate(e.IsoDate); d != "" {
		return "Date" + STATUS_SEP + d, nil
	}
	return "", nil
}

func (t *OverlayToolbox) SetOpacity(key string, opacity float64) error {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	e, ok := t.overlays[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOverlayNotFound, key)
	}
	e.Opacity = clamp01(opacity)
	return nil
}

func (t *OverlayToolbox) RampName() string {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	return t.rampName
}

// 切换色带，按各叠加图保留的网格重新渲染并强制重新裁剪；未知名称退回grayscale。
// 全部渲染完成后才一起替换，中止时色带和图像都不变
func (t *OverlayToolbox) SetRamp(ctx context.Context, name string) (err error) {
	t.opLock.Lock()
	defer t.opLock.Unlock()
	ramp, name := t.normalizeRamp(name)

	t.rLock.Lock()
	entries := make([]*OverlayEntry, 0, len(t.overlays))
	for _, e := range t.overlays {
		entries = append(entries, e)
	}
	t.rLock.Unlock()

	sched := t.scheduler()
	imgs := make([]*image.NRGBA, len(entries))
	for i, e := range entries {
		if imgs[i], err = Render(ctx, e.Grid, ramp, sched); err != nil {
			log.Warn(t.logTag+"re-render aborted", zap.String("key", e.Key), zap.String("ramp", name), zap.Error(err))
			return
		}
	}
	t.rLock.Lock()
	t.ramp, t.rampName = ramp, name
	area := t.currentArea()
	for i, e := range entries {
		e.Image = imgs[i]
		t.applyMask(e, area, true)
	}
	t.rLock.Unlock()
	log.Info(t.logTag+"ramp changed", zap.String("ramp", name), zap.Int("overlays", len(entries)))
	return
}

func (t *OverlayToolbox) ActiveArea() string {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	if t.currentArea() == nil {
		return ""
	}
	return t.activeArea
}

// 选择区域，未知id视为不选；与当前相同时不处理；否则对所有叠加图重新裁剪
func (t *OverlayToolbox) SetActiveArea(id string) (active string) {
	var area *AreaDefinition
	if id != "" {
		if a, ok := t.areas.Get(id); ok {
			area, active = a, a.ID
		}
	}
	t.opLock.Lock()
	defer t.opLock.Unlock()
	t.rLock.Lock()
	defer t.rLock.Unlock()
	if t.activeArea == active {
		return
	}
	t.activeArea = active
	for _, e := range t.overlays {
		t.applyMask(e, area, false)
	}
	log.Info(t.logTag+"active area changed", zap.String("area", active), zap.Int("overlays", len(t.overlays)))
	return
}

// 删除用户区域，若为当前区域则取消选择
func (t *OverlayToolbox) DeleteArea(id string) (err error) {
	if err = t.areas.Delete(id); err != nil {
		return
	}
	t.rLock.Lock()
	wasActive := t.activeArea == id
	t.rLock.Unlock()
	if wasActive {
		t.SetActiveArea("")
	}
	return
}

func (t *OverlayToolbox) SetSmoothing(on bool) {
	t.rLock.Lock()
	t.smoothing = on
	t.rLock.Unlock()
}

func (t *OverlayToolbox) Smoothing() bool {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	return t.smoothing
}

// 记录栅格目录中的文件日期，作为无可见图层时的底图日期
func (t *OverlayToolbox) AddCatalog(files ...string) {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	for _, f := range files {
		if iso := utils.ExtractIsoDate(f); iso != "" {
			t.catalog = append(t.catalog, iso)
		}
	}
}

// 可见叠加图中最新的日期；没有时退回目录及所有叠加图中最新的日期
func (t *OverlayToolbox) LatestVisibleDate() string {
	t.rLock.Lock()
	defer t.rLock.Unlock()
	var latest, fallback string
	for _, d := range t.catalog {
		if d = utils.NormalizeDate(d); d > fallback {
			fallback = d
		}
	}
	for _, e := range t.overlays {
		d := utils.NormalizeDate(e.IsoDate)
		if d == "" {
			continue
		}
		if d > fallback {
			fallback = d
		}
		if e.Visible && d > latest {
			latest = d
		}
	}
	if latest != "" {
		return latest
	}
	return fallback
}
