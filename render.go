package rasterlayer

import (
	"context"
	"image"
)

// 按色带渲染为RGBA，无效像元完全透明；不修改grid
func Render(ctx context.Context, grid *RasterGrid, ramp Ramp, sched Scheduler) (img *image.NRGBA, err error) {
	if err = grid.check(); err != nil {
		return
	}
	if ramp == nil {
		ramp = Grayscale
	}
	out := image.NewNRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	err = sched.Run(ctx, len(grid.Data), func(start, end int) {
		pix := out.Pix[start*4 : end*4]
		for k, v := range grid.Data[start:end] {
			if !grid.Valid(v) {
				continue
			}
			c := ramp(clamp01(float64(v)))
			p := pix[k*4 : k*4+4 : k*4+4]
			p[0], p[1], p[2], p[3] = c.R, c.G, c.B, 255
		}
	})
	if err != nil {
		return
	}
	img = out
	return
}
