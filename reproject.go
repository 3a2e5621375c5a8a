package rasterlayer

import (
	"context"
	"fmt"
	"math"

	"github.com/wgdzlh/rasterlayer/log"

	"go.uber.org/zap"
)

// 输出网格尺寸：宽度限制在[2, maxWidth]，高度按比例取整
func ReprojectSize(srcWidth, srcHeight, maxWidth int) (width, height int) {
	if maxWidth <= 0 {
		maxWidth = MAX_REPROJECT_WIDTH
	}
	width = srcWidth
	if width > maxWidth {
		width = maxWidth
	}
	if width < MIN_REPROJECT_SIZE {
		width = MIN_REPROJECT_SIZE
	}
	height = int(math.Round(float64(srcHeight) * float64(width) / float64(max(srcWidth, 1))))
	if height < MIN_REPROJECT_SIZE {
		height = MIN_REPROJECT_SIZE
	}
	return
}

// 最近邻重采样到经纬度等间隔网格，范围为ref.Bounds；仅在完成时返回新网格
func Reproject(ctx context.Context, grid *RasterGrid, ref *GeoReference, reg *ProjectionRegistry, maxWidth int, sched Scheduler) (out *RasterGrid, err error) {
	if err = grid.check(); err != nil {
		return
	}
	if !ref.NeedsReprojection() {
		err = fmt.Errorf("%w: EPSG:%d", ErrProjectionUndefined, ref.EPSG)
		return
	}
	trans, err := reg.FromGeographic(ref.EPSG)
	if err != nil {
		return
	}
	width, height := ReprojectSize(grid.Width, grid.Height, maxWidth)
	b := ref.Bounds
	dLon := (b.Max.X - b.Min.X) / float64(width)
	dLat := (b.Max.Y - b.Min.Y) / float64(height)
	index := math.Floor
	if ref.RasterType == PixelIsPoint {
		index = math.Round
	}
	nan := float32(math.NaN())

	buf := make([]float32, width*height)
	err = sched.RunRows(ctx, height, width, func(rowStart, rowEnd int) {
		for y := rowStart; y < rowEnd; y++ {
			lat := b.Max.Y - (float64(y)+0.5)*dLat
			row := buf[y*width : (y+1)*width]
			for x := range row {
				lon := b.Min.X + (float64(x)+0.5)*dLon
				row[x] = nan
				sx, sy, e := trans(lon, lat)
				if e != nil || !isFinite(sx) || !isFinite(sy) {
					continue
				}
				fi, fj := ref.WorldToPixel(sx, sy)
				i, j := index(fi), index(fj)
				if !(i >= 0 && i < float64(grid.Width) && j >= 0 && j < float64(grid.Height)) {
					continue
				}
				row[x] = grid.Data[int(j)*grid.Width+int(i)]
			}
		}
	})
	if err != nil {
		log.Warn("Reproject:aborted", zap.Int("srid", ref.EPSG), zap.Error(err))
		return
	}
	out = &RasterGrid{
		Width:     width,
		Height:    height,
		Data:      buf,
		NoData:    grid.NoData,
		HasNoData: grid.HasNoData,
	}
	return
}
