package rasterlayer

import (
	"context"
	"runtime"
)

// 分块之间的让出点，返回非nil错误则中止
type YieldFunc func(ctx context.Context) error

func GoschedYield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// 分块处理[0,total)，块间调用yield；中止时返回其错误，调用方丢弃已写入的缓冲
func RunChunked(ctx context.Context, total, chunkSize int, yield YieldFunc, body func(start, end int)) (err error) {
	if chunkSize <= 0 {
		chunkSize = CHUNK_CELLS
	}
	if yield == nil {
		yield = GoschedYield
	}
	if err = ctx.Err(); err != nil {
		return
	}
	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}
		body(start, end)
		if end < total {
			if err = yield(ctx); err != nil {
				return
			}
		}
	}
	return
}

// 分块调度参数
type Scheduler struct {
	ChunkSize int
	Yield     YieldFunc
}

func (s Scheduler) chunkSize() int {
	if s.ChunkSize <= 0 {
		return CHUNK_CELLS
	}
	return s.ChunkSize
}

func (s Scheduler) Run(ctx context.Context, total int, body func(start, end int)) error {
	return RunChunked(ctx, total, s.chunkSize(), s.Yield, body)
}

// 按行分块，每块至少一行
func (s Scheduler) RunRows(ctx context.Context, rows, rowWidth int, body func(rowStart, rowEnd int)) error {
	perChunk := 1
	if rowWidth > 0 && s.chunkSize()/rowWidth > 1 {
		perChunk = s.chunkSize() / rowWidth
	}
	return RunChunked(ctx, rows, perChunk, s.Yield, body)
}
