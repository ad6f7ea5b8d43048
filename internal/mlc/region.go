package mlc

import (
	"math"

	"github.com/ironsheep/landcover-mcp/internal/raster"
)

// Seed is a cell known to belong to one class.
type Seed struct {
	Row  int    `json:"row"`
	Col  int    `json:"col"`
	Name string `json:"name,omitempty"`
}

// Cell is a raster coordinate.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Extent is the inclusive bounding box of a set of cells.
type Extent struct {
	MinRow int `json:"min_row"`
	MinCol int `json:"min_col"`
	MaxRow int `json:"max_row"`
	MaxCol int `json:"max_col"`
}

// Region holds the pixels admitted while growing from a seed, in admission order.
type Region struct {
	Seed   Seed
	Pixels []raster.BandVector
	Cells  []Cell
}

// Extent returns the bounding box of the admitted cells. ok is false for an
// empty region.
func (r *Region) Extent() (e Extent, ok bool) {
	if len(r.Cells) == 0 {
		return Extent{}, false
	}
	e = Extent{MinRow: math.MaxInt, MinCol: math.MaxInt, MaxRow: -1, MaxCol: -1}
	for _, c := range r.Cells {
		e.MinRow = min(e.MinRow, c.Row)
		e.MinCol = min(e.MinCol, c.Col)
		e.MaxRow = max(e.MaxRow, c.Row)
		e.MaxCol = max(e.MaxCol, c.Col)
	}
	return e, true
}

// Mean returns the per-band mean of the admitted pixels, or nil for an empty
// region.
func (r *Region) Mean() []float64 {
	if len(r.Pixels) == 0 {
		return nil
	}
	mean := make([]float64, len(r.Pixels[0]))
	for _, px := range r.Pixels {
		for j, v := range px {
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(len(r.Pixels))
	}
	return mean
}

// neighborOffsets lists the 8-connected neighbourhood in traversal order.
var neighborOffsets = [8]Cell{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// growState is the visited grid and frontier of one Grow call.
type growState struct {
	cols     int
	visited  []bool
	frontier []Cell
}

func newGrowState(rows, cols int, seed Cell) *growState {
	return &growState{
		cols:     cols,
		visited:  make([]bool, rows*cols),
		frontier: []Cell{seed},
	}
}

func (s *growState) pop() Cell {
	c := s.frontier[len(s.frontier)-1]
	s.frontier = s.frontier[:len(s.frontier)-1]
	return c
}

// SpectralDistance is the Euclidean distance between two band vectors,
// accumulated in float64.
func SpectralDistance(a, b raster.BandVector) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Grow flood-fills outward from seed, admitting 8-connected neighbours whose
// spectral distance to the seed's own vector is strictly below threshold.
//
// Every examined neighbour is marked visited whether or not it is admitted,
// so a rejected cell is never re-tested. Distance is always measured against
// the seed, never against the cell being expanded. The seed cell starts
// unvisited: its vector enters the region only if a neighbour rediscovers it.
//
// The seed must lie inside src; Pipeline validates this before growing.
func Grow(src raster.Source, seed Seed, threshold float64) *Region {
	rows, cols := src.Rows(), src.Cols()
	ref := src.Pixel(seed.Row, seed.Col)
	state := newGrowState(rows, cols, Cell{seed.Row, seed.Col})
	region := &Region{Seed: seed}

	for len(state.frontier) > 0 {
		cur := state.pop()
		for _, off := range neighborOffsets {
			nr, nc := cur.Row+off.Row, cur.Col+off.Col
			if nr < 0 || nr >= rows || nc < 0 || nc >= cols {
				continue
			}
			idx := nr*state.cols + nc
			if state.visited[idx] {
				continue
			}
			px := src.Pixel(nr, nc)
			dist := SpectralDistance(ref, px)
			state.visited[idx] = true
			if dist < threshold {
				region.Pixels = append(region.Pixels, px)
				region.Cells = append(region.Cells, Cell{nr, nc})
				state.frontier = append(state.frontier, Cell{nr, nc})
			}
		}
	}

	return region
}
