package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultPreviewMaxSize bounds the longer side of colour previews.
const DefaultPreviewMaxSize = 1024

// PNGSink writes a label raster as an 8-bit grayscale PNG whose pixel values
// are class indices, and optionally a colour preview of the same labels.
//
// The source metadata is written unchanged to the sidecar of Path (and of
// PreviewPath when set) so that GIS tools can re-attach the georeference.
type PNGSink struct {
	// Path receives the label raster. Required.
	Path string

	// PreviewPath receives a colourised preview. Optional.
	PreviewPath string

	// PreviewMaxSize bounds the longer preview side in pixels. Zero selects
	// DefaultPreviewMaxSize; a negative value keeps full resolution.
	PreviewMaxSize int

	// Classes is the number of classes used to build the preview palette.
	// Zero derives it from the largest label present.
	Classes int
}

// WriteLabels implements Sink.
func (s *PNGSink) WriteLabels(labels *Labels, meta Metadata) error {
	if s.Path == "" {
		return fmt.Errorf("png sink: output path is empty")
	}
	if err := imgio.Save(s.Path, labels.Image(), imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to write label raster: %w", err)
	}
	if err := WriteSidecar(s.Path, meta); err != nil {
		return err
	}

	if s.PreviewPath == "" {
		return nil
	}
	preview := Preview(labels, s.classes(labels), s.PreviewMaxSize)
	if err := imgio.Save(s.PreviewPath, preview, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to write preview: %w", err)
	}
	return WriteSidecar(s.PreviewPath, meta)
}

func (s *PNGSink) classes(labels *Labels) int {
	if s.Classes > 0 {
		return s.Classes
	}
	k := 0
	for _, v := range labels.Data {
		k = max(k, int(v)+1)
	}
	return k
}

// MemorySink keeps the last label raster handed to it. Safe for one writer.
type MemorySink struct {
	Labels   *Labels
	Metadata Metadata
	Writes   int
}

// WriteLabels implements Sink.
func (m *MemorySink) WriteLabels(labels *Labels, meta Metadata) error {
	m.Labels = labels
	m.Metadata = meta
	m.Writes++
	return nil
}

// Palette returns k visually distinct opaque colours, evenly spaced in hue.
// The result is deterministic for a given k.
func Palette(k int) []color.NRGBA {
	p := make([]color.NRGBA, k)
	for i := range p {
		c := colorful.Hsv(360*float64(i)/float64(max(k, 1)), 0.7, 0.9).Clamped()
		r, g, b := c.RGB255()
		p[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return p
}

// Colorize paints each cell with the palette entry of its class. Labels
// outside the palette are painted black.
func Colorize(labels *Labels, palette []color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, labels.Cols, labels.Rows))
	black := color.NRGBA{A: 255}
	for row := 0; row < labels.Rows; row++ {
		for col := 0; col < labels.Cols; col++ {
			c := black
			if v := int(labels.At(row, col)); v < len(palette) {
				c = palette[v]
			}
			img.SetNRGBA(col, row, c)
		}
	}
	return img
}

// Preview colourises labels and shrinks the result so its longer side is at
// most maxSize. Nearest-neighbour resampling keeps class colours pure.
func Preview(labels *Labels, classes, maxSize int) image.Image {
	img := Colorize(labels, Palette(classes))
	if maxSize == 0 {
		maxSize = DefaultPreviewMaxSize
	}
	if maxSize > 0 && (labels.Cols > maxSize || labels.Rows > maxSize) {
		return imaging.Fit(img, maxSize, maxSize, imaging.NearestNeighbor)
	}
	return img
}

// EncodePNGBase64 encodes an image as base64 PNG for transport in JSON.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
