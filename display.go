package rasterlayer

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// 按显示尺寸缩放裁剪后的叠加图；平滑用双线性，否则最近邻。width/height<=0时用原尺寸
func (t *OverlayToolbox) DisplayImage(key string, width, height int) (img *image.NRGBA, err error) {
	t.rLock.Lock()
	e, ok := t.overlays[key]
	var (
		src     *image.NRGBA
		opacity float64
	)
	if ok {
		src, opacity = e.Display, e.Opacity
	}
	smooth := t.smoothing
	t.rLock.Unlock()
	if !ok {
		err = fmt.Errorf("%w: %s", ErrOverlayNotFound, key)
		return
	}
	return ScaleImage(src, width, height, smooth, opacity), nil
}

func ScaleImage(src *image.NRGBA, width, height int, smooth bool, opacity float64) *image.NRGBA {
	sb := src.Bounds()
	if width <= 0 || height <= 0 {
		width, height = sb.Dx(), sb.Dy()
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	var scaler draw.Scaler = draw.NearestNeighbor
	if smooth {
		scaler = draw.BiLinear
	}
	var opts *draw.Options
	if opacity = clamp01(opacity); opacity < 1 {
		opts = &draw.Options{SrcMask: image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})}
	}
	scaler.Scale(dst, dst.Bounds(), src, sb, draw.Src, opts)
	return dst
}
