package raster

import "fmt"

// PixelResult contains the band values of a single cell.
type PixelResult struct {
	Row    int                `json:"row"`
	Col    int                `json:"col"`
	Values []float32          `json:"values"`
	Named  map[string]float32 `json:"named,omitempty"` // Values keyed by band name when known
}

// SamplePixel returns the band vector at (row, col).
//
// Returns an error if the coordinate lies outside the raster. The values are
// copied, so the result may be retained and modified freely.
func SamplePixel(r *Raster, row, col int) (*PixelResult, error) {
	if !r.InBounds(row, col) {
		return nil, fmt.Errorf("coordinates (row %d, col %d) outside raster bounds %dx%d", row, col, r.rows, r.cols)
	}

	values := append([]float32(nil), r.Pixel(row, col)...)
	res := &PixelResult{Row: row, Col: col, Values: values}
	if len(r.bandNames) == len(values) {
		res.Named = make(map[string]float32, len(values))
		for i, name := range r.bandNames {
			res.Named[name] = values[i]
		}
	}
	return res, nil
}
