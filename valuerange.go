package rasterlayer

import (
	"context"
	"math"
)

// 统计有效像元的最小/最大值，无有效值时为[0,1]
func EstimateRange(ctx context.Context, grid *RasterGrid, sched Scheduler) (vr ValueRange, err error) {
	if err = grid.check(); err != nil {
		return
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	err = sched.Run(ctx, len(grid.Data), func(start, end int) {
		for _, v := range grid.Data[start:end] {
			if !grid.Valid(v) {
				continue
			}
			f := float64(v)
			if f < lo {
				lo = f
			}
			if f > hi {
				hi = f
			}
		}
	})
	if err != nil {
		return
	}
	if !isFinite(lo) {
		lo = 0
	}
	if !isFinite(hi) {
		hi = 1
	}
	vr = ValueRange{Min: lo, Max: hi}
	return
}
