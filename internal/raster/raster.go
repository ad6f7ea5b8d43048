package raster

import (
	"fmt"
	"image"
)

// BandVector holds one value per spectral band for a single raster cell.
//
// Vectors returned by a Source share storage with the raster and must be
// treated as read-only.
type BandVector []float32

// Metadata is the spatial reference carried alongside a raster.
//
// The classification core never inspects it; it is read from the source and
// handed to the sink unchanged.
type Metadata struct {
	// Projection is the spatial reference system, typically WKT.
	Projection string `json:"projection,omitempty"`

	// GeoTransform maps pixel/line to georeferenced coordinates using the
	// six-coefficient affine convention. Empty when the raster is not
	// georeferenced.
	GeoTransform []float64 `json:"geotransform,omitempty"`
}

// IsZero reports whether no spatial reference is present.
func (m Metadata) IsZero() bool {
	return m.Projection == "" && len(m.GeoTransform) == 0
}

// Source exposes a multi-band raster held in memory.
type Source interface {
	Rows() int
	Cols() int
	Bands() int
	// Pixel returns the band vector at (row, col). The coordinate must be in bounds.
	Pixel(row, col int) BandVector
	Metadata() Metadata
}

// Sink accepts a completed label raster together with the source metadata.
type Sink interface {
	WriteLabels(labels *Labels, meta Metadata) error
}

// Raster is an in-memory, band-interleaved raster stored as float32.
//
// Cell (row, col) occupies data[(row*cols+col)*bands : (row*cols+col+1)*bands].
type Raster struct {
	rows, cols, bands int
	data              []float32
	meta              Metadata
	bandNames         []string
	depth             int
}

// New allocates a zero-filled raster.
func New(rows, cols, bands int) (*Raster, error) {
	if rows <= 0 || cols <= 0 || bands <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%dx%d", rows, cols, bands)
	}
	return &Raster{
		rows:  rows,
		cols:  cols,
		bands: bands,
		data:  make([]float32, rows*cols*bands),
	}, nil
}

// FromBands builds a raster from per-band planes, each holding rows*cols
// values in row-major order.
func FromBands(rows, cols int, planes ...[]float32) (*Raster, error) {
	r, err := New(rows, cols, len(planes))
	if err != nil {
		return nil, err
	}
	for b, plane := range planes {
		if len(plane) != rows*cols {
			return nil, fmt.Errorf("band %d has %d values, want %d", b, len(plane), rows*cols)
		}
		for i, v := range plane {
			r.data[i*r.bands+b] = v
		}
	}
	return r, nil
}

func (r *Raster) Rows() int  { return r.rows }
func (r *Raster) Cols() int  { return r.cols }
func (r *Raster) Bands() int { return r.bands }

// Pixel returns a read-only view of the band vector at (row, col).
func (r *Raster) Pixel(row, col int) BandVector {
	i := (row*r.cols + col) * r.bands
	return r.data[i : i+r.bands : i+r.bands]
}

// Set overwrites the band vector at (row, col).
func (r *Raster) Set(row, col int, v ...float32) {
	copy(r.data[(row*r.cols+col)*r.bands:], v[:min(len(v), r.bands)])
}

// InBounds reports whether (row, col) addresses a cell of the raster.
func (r *Raster) InBounds(row, col int) bool {
	return row >= 0 && row < r.rows && col >= 0 && col < r.cols
}

func (r *Raster) Metadata() Metadata { return r.meta }

// SetMetadata attaches a spatial reference to the raster.
func (r *Raster) SetMetadata(m Metadata) { r.meta = m }

// BandNames returns the band labels assigned by the loader, if any.
func (r *Raster) BandNames() []string { return r.bandNames }

// Labels is a single-band grid of class indices, one per input cell.
type Labels struct {
	Rows int
	Cols int
	Data []uint8
}

// NewLabels allocates a zero-filled label raster.
func NewLabels(rows, cols int) *Labels {
	return &Labels{Rows: rows, Cols: cols, Data: make([]uint8, rows*cols)}
}

func (l *Labels) At(row, col int) uint8 { return l.Data[row*l.Cols+col] }

func (l *Labels) Set(row, col int, v uint8) { l.Data[row*l.Cols+col] = v }

// Counts returns the number of cells assigned to each of k classes.
func (l *Labels) Counts(k int) []int {
	counts := make([]int, k)
	for _, v := range l.Data {
		if int(v) < k {
			counts[v]++
		}
	}
	return counts
}

// Image returns the labels as a grayscale image whose pixel values are the
// class indices.
func (l *Labels) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, l.Cols, l.Rows))
	for row := 0; row < l.Rows; row++ {
		copy(img.Pix[row*img.Stride:row*img.Stride+l.Cols], l.Data[row*l.Cols:(row+1)*l.Cols])
	}
	return img
}
