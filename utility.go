package rasterlayer

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

const (
	degToRad = math.Pi / 180

	xr = 20037508.34 / 180
	yr = xr / degToRad
	tr = degToRad / 2

	MAX_MERC_LAT = 85.0511287798
)

func PointsToWkt(lon1, lon2, lat1, lat2 float64) string {
	return fmt.Sprintf("POLYGON((%[1]f %[3]f, %[1]f %[4]f, %[2]f %[4]f, %[2]f %[3]f, %[1]f %[3]f))", lon1, lon2, lat1, lat2)
}

func BoundsToWkt(b geom.Bounds) string {
	return PointsToWkt(b.Min.X, b.Max.X, b.Min.Y, b.Max.Y)
}

func Convert4326To3857(lon, lat float64) (lonIn3857, latIn3857 float64) {
	lonIn3857 = lon * xr
	latIn3857 = math.Log(math.Tan((90+lat)*tr)) * yr
	return
}

// 地图平面投影：经纬度 -> 平面坐标，y向北增大
type PlanarProjection interface {
	Project(lon, lat float64) (x, y float64)
}

// EPSG:3857 球面墨卡托，纬度截断在±85.0511287798°
type WebMercator struct{}

func (WebMercator) Project(lon, lat float64) (x, y float64) {
	if lat > MAX_MERC_LAT {
		lat = MAX_MERC_LAT
	} else if lat < -MAX_MERC_LAT {
		lat = -MAX_MERC_LAT
	}
	return Convert4326To3857(lon, lat)
}

// 直接把经纬度当平面坐标
type PlateCarree struct{}

func (PlateCarree) Project(lon, lat float64) (x, y float64) {
	return lon, lat
}
