package accel

import (
	"fmt"
)

// WorkDiv describes how a global extent is covered: a grid of blocks, each
// made of threads, each thread processing a small extent of elements.
type WorkDiv struct {
	GridBlockExtent   Vec
	BlockThreadExtent Vec
	ThreadElemExtent  Vec
}

// NewWorkDiv builds a work division from explicit extents.
func NewWorkDiv(gridBlocks, blockThreads, threadElems Vec) (WorkDiv, error) {
	wd := WorkDiv{
		GridBlockExtent:   gridBlocks.Clone(),
		BlockThreadExtent: blockThreads.Clone(),
		ThreadElemExtent:  threadElems.Clone(),
	}
	if err := wd.Validate(); err != nil {
		return WorkDiv{}, err
	}
	return wd, nil
}

func (wd WorkDiv) Dim() int {
	return wd.GridBlockExtent.Dim()
}

// Validate checks that all three extents share one dimensionality, that block
// and element extents are at least 1 and that the grid is not negative.
func (wd WorkDiv) Validate() error {
	dim := wd.GridBlockExtent.Dim()
	if wd.BlockThreadExtent.Dim() != dim || wd.ThreadElemExtent.Dim() != dim {
		return newError(KindShapeMismatch, "WorkDiv.Validate",
			fmt.Sprintf("dimension mismatch: grid %s, block %s, elements %s",
				wd.GridBlockExtent, wd.BlockThreadExtent, wd.ThreadElemExtent), nil)
	}
	if err := wd.GridBlockExtent.Validate(); err != nil {
		return err
	}
	for i := 0; i < dim; i++ {
		if wd.BlockThreadExtent[i] < 1 || wd.ThreadElemExtent[i] < 1 {
			return newError(KindShapeMismatch, "WorkDiv.Validate",
				fmt.Sprintf("block %s and element %s extents must be >= 1", wd.BlockThreadExtent, wd.ThreadElemExtent), nil)
		}
	}
	return nil
}

// Coverage returns grid × block × elements per dimension: the extent of
// element coordinates a kernel launched with wd visits.
func (wd WorkDiv) Coverage() Vec {
	return Mul(Mul(wd.GridBlockExtent, wd.BlockThreadExtent), wd.ThreadElemExtent)
}

func (wd WorkDiv) GridBlockCount() int {
	return wd.GridBlockExtent.Prod()
}

func (wd WorkDiv) BlockThreadCount() int {
	return wd.BlockThreadExtent.Prod()
}

func (wd WorkDiv) String() string {
	return fmt.Sprintf("{grid: %s, block: %s, elements: %s}", wd.GridBlockExtent, wd.BlockThreadExtent, wd.ThreadElemExtent)
}

// ComputeWorkDiv picks a work division covering global on dev, with
// elemsPerThread elements per thread.
//
// Element extents are clamped to [1, ThreadElemExtentMax]. Candidate block
// extents per dimension are the powers of two up to the number of threads the
// dimension needs, plus that exact number, all bounded by
// BlockThreadExtentMax; combinations whose thread count exceeds
// BlockThreadCountMax are discarded. Among the rest the division with the
// least padding (covered minus requested elements) wins; ties go to more
// threads per block, then to the larger extent in the fastest varying
// dimension, then the next one, and so on.
func ComputeWorkDiv(dev *Device, global, elemsPerThread Vec) (WorkDiv, error) {
	const op = "ComputeWorkDiv"
	if global.Dim() != elemsPerThread.Dim() {
		return WorkDiv{}, newError(KindShapeMismatch, op,
			fmt.Sprintf("global extent %s and elements per thread %s differ in dimension", global, elemsPerThread), nil)
	}
	if err := global.Validate(); err != nil {
		return WorkDiv{}, err
	}

	props := dev.Props()
	dim := global.Dim()
	elems := make(Vec, dim)
	need := make(Vec, dim)
	for i := 0; i < dim; i++ {
		elems[i] = clamp(elemsPerThread[i], 1, max(props.ThreadElemExtentMax, 1))
		need[i] = (global[i] + elems[i] - 1) / elems[i]
	}

	extentMax := max(props.BlockThreadExtentMax, 1)
	countMax := max(props.BlockThreadCountMax, 1)
	candidates := make([][]int, dim)
	for i := 0; i < dim; i++ {
		candidates[i] = blockCandidates(need[i], extentMax)
	}

	var (
		best      Vec
		bestPad   int
		bestCount int
	)
	block := make(Vec, dim)
	var walk func(d, count int)
	walk = func(d, count int) {
		if d == dim {
			grid := CeilDiv(need, block)
			pad := Mul(Mul(grid, block), elems).Prod() - global.Prod()
			if best == nil || better(block, count, pad, best, bestCount, bestPad) {
				best, bestCount, bestPad = block.Clone(), count, pad
			}
			return
		}
		for _, c := range candidates[d] {
			if count*c > countMax {
				break
			}
			block[d] = c
			walk(d+1, count*c)
		}
	}
	walk(0, 1)

	return WorkDiv{
		GridBlockExtent:   CeilDiv(need, best),
		BlockThreadExtent: best,
		ThreadElemExtent:  elems,
	}, nil
}

// blockCandidates returns ascending block extents for a dimension needing
// need threads. It always contains 1.
func blockCandidates(need, extentMax int) []int {
	limit := min(max(need, 1), extentMax)
	var out []int
	for c := 1; c <= limit; c *= 2 {
		out = append(out, c)
	}
	if need > 1 && need <= extentMax && out[len(out)-1] != need {
		out = append(out, need)
	}
	return out
}

func better(block Vec, count, pad int, best Vec, bestCount, bestPad int) bool {
	if pad != bestPad {
		return pad < bestPad
	}
	if count != bestCount {
		return count > bestCount
	}
	for i := len(block) - 1; i >= 0; i-- {
		if block[i] != best[i] {
			return block[i] > best[i]
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
