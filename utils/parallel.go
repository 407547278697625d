// Package utils contains small helpers shared by the depth2metric packages.
package utils

import (
	"context"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// minChunkSize keeps tiny inputs on a single goroutine.
const minChunkSize = 4096

// ChunkWorkFunc handles the half-open index range [from, to) of a larger slice.
type ChunkWorkFunc func(chunkNum, from, to int)

// ChunkRanges splits totalSize into at most numChunks contiguous ranges. The
// last range absorbs the remainder.
func ChunkRanges(totalSize, numChunks int) [][2]int {
	if totalSize <= 0 {
		return nil
	}
	if numChunks <= 0 {
		numChunks = 1
	}
	if numChunks > totalSize {
		numChunks = totalSize
	}
	chunkSize := totalSize / numChunks
	ranges := make([][2]int, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		from := i * chunkSize
		to := from + chunkSize
		if i == numChunks-1 {
			to = totalSize
		}
		ranges = append(ranges, [2]int{from, to})
	}
	return ranges
}

// GroupWorkParallel splits totalSize items into contiguous chunks and runs work
// on each chunk in its own goroutine. Each chunk owns a disjoint index range, so
// work may write to its own sub-slices without locking. Panics inside work are
// captured and logged by go.viam.com/utils instead of crashing the process.
func GroupWorkParallel(ctx context.Context, totalSize int, work ChunkWorkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	numChunks := ParallelFactor
	if totalSize < minChunkSize*numChunks {
		numChunks = totalSize/minChunkSize + 1
	}
	ranges := ChunkRanges(totalSize, numChunks)
	if len(ranges) == 1 {
		work(0, ranges[0][0], ranges[0][1])
		return ctx.Err()
	}

	var wait sync.WaitGroup
	wait.Add(len(ranges))
	for chunkNum, r := range ranges {
		chunkNum, from, to := chunkNum, r[0], r[1]
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			work(chunkNum, from, to)
		})
	}
	wait.Wait()
	return ctx.Err()
}
