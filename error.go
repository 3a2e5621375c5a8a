package rasterlayer

import "errors"

var (
	ErrProjectionUndefined = errors.New("projection definition unavailable")
	ErrInvalidProjDef      = errors.New("invalid projection definition")
	ErrRasterRead          = errors.New("raster read failed")
	ErrEmptyRaster         = errors.New("empty raster")
	ErrWrongBufferSize     = errors.New("wrong raster buffer size")
	ErrOverlayNotFound     = errors.New("overlay not found")
	ErrAreaNotFound        = errors.New("area not found")
	ErrAreaExists          = errors.New("area id already exists")
	ErrAreaNotCustom       = errors.New("only custom areas can be deleted")
	ErrNotEnoughVertices   = errors.New("not enough area vertices")
	ErrInvalidGeoJSON      = errors.New("invalid GeoJSON")
	ErrWrongGeoType        = errors.New("wrong geo type")
)
