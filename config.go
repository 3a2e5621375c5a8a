package rasterlayer

const (
	FILE_EXT_TIF     = ".tif"
	FILE_EXT_TIFF    = ".tiff"
	FILE_EXT_GEOJSON = ".geojson"
	FILE_EXT_SHP     = ".shp"

	UNIVERSAL_SRID = 4326
	WEB_MERC_SRID  = 3857

	UTM_NORTH_FIRST = 32601
	UTM_NORTH_LAST  = 32660
	UTM_SOUTH_FIRST = 32701
	UTM_SOUTH_LAST  = 32760

	WGS84_DEF     = "+proj=longlat +datum=WGS84 +no_defs"
	WEB_MERC_DEF  = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +no_defs"
	UTM_DEF_TPL   = "+proj=utm +zone=%d +datum=WGS84 %s+units=m +no_defs"
	UTM_SOUTH_OPT = "+south "

	CHUNK_CELLS         = 500_000
	MAX_REPROJECT_WIDTH = 4096
	MIN_REPROJECT_SIZE  = 2

	MASK_KEY_ALL    = "ALL"
	MASK_SUBSAMPLES = 4
	MIN_WORLD_SPAN  = 1e-6

	DEFAULT_RAMP = RAMP_GRAYSCALE

	CUSTOM_AREA_LABEL_TPL = "Custom area %d"
	CUSTOM_AREA_SOURCE    = "custom"

	STATUS_SEP = " • "
)
