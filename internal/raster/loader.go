package raster

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// BandMode selects how decoded image channels become raster bands.
type BandMode string

const (
	// BandModeGray produces one luminance band.
	BandModeGray BandMode = "gray"
	// BandModeRGB produces red, green and blue bands in source units
	// (0-255 for 8-bit images, 0-65535 for 16-bit images).
	BandModeRGB BandMode = "rgb"
	// BandModeLab produces CIE L*a*b* bands (L in 0-100) so that spectral
	// distance approximates perceptual colour difference.
	BandModeLab BandMode = "lab"
)

// ParseBandMode converts a user supplied mode string. An empty string selects RGB.
func ParseBandMode(s string) (BandMode, error) {
	switch BandMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", BandModeRGB:
		return BandModeRGB, nil
	case BandModeGray:
		return BandModeGray, nil
	case BandModeLab:
		return BandModeLab, nil
	default:
		return "", fmt.Errorf("unknown band mode %q (want gray, rgb or lab)", s)
	}
}

// Load decodes an image file into a raster.
//
// Parameters:
//   - path: Path to a PNG, JPEG, GIF, TIFF or BMP file.
//   - mode: How channels map to bands. See BandMode.
//
// Returns:
//   - *Raster: rows = image height, cols = image width.
//   - error: Non-nil if the file cannot be opened or decoded, or if the geo
//     sidecar exists but is malformed.
//
// # Georeferencing
//
// Image formats carry no spatial reference, so Load looks for a sidecar file
// next to the image (see SidecarPath) and attaches its contents as Metadata.
func Load(path string, mode BandMode) (*Raster, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode raster: %w", err)
	}

	r, err := FromImage(img, mode)
	if err != nil {
		return nil, err
	}

	meta, _, err := ReadSidecar(path)
	if err != nil {
		return nil, err
	}
	r.meta = meta
	return r, nil
}

// FromImage converts a decoded image into a raster using the given band mode.
func FromImage(img image.Image, mode BandMode) (*Raster, error) {
	bounds := img.Bounds()
	depth := bitDepth(img)

	var names []string
	switch mode {
	case BandModeGray:
		names = []string{"gray"}
	case BandModeRGB:
		names = []string{"red", "green", "blue"}
	case BandModeLab:
		names = []string{"L", "a", "b"}
	default:
		return nil, fmt.Errorf("unknown band mode %q", mode)
	}

	r, err := New(bounds.Dy(), bounds.Dx(), len(names))
	if err != nil {
		return nil, err
	}
	r.bandNames = names
	r.depth = depth

	// 8-bit channels widen to 16 bits as v*257; dividing restores source units exactly.
	divisor := 257.0
	if depth == 16 {
		divisor = 1.0
	}
	const maxValue = 65535.0

	for y := 0; y < r.rows; y++ {
		for x := 0; x < r.cols; x++ {
			px := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch mode {
			case BandModeGray:
				g := color.Gray16Model.Convert(px).(color.Gray16)
				r.Set(y, x, float32(float64(g.Y)/divisor))
			case BandModeRGB:
				c := color.NRGBA64Model.Convert(px).(color.NRGBA64)
				r.Set(y, x,
					float32(float64(c.R)/divisor),
					float32(float64(c.G)/divisor),
					float32(float64(c.B)/divisor))
			case BandModeLab:
				c := color.NRGBA64Model.Convert(px).(color.NRGBA64)
				cf := colorful.Color{R: float64(c.R) / maxValue, G: float64(c.G) / maxValue, B: float64(c.B) / maxValue}
				l, a, b := cf.Lab()
				r.Set(y, x, float32(l*100), float32(a*100), float32(b*100))
			}
		}
	}

	return r, nil
}

// bitDepth reports 16 for 16-bit per channel image types and 8 otherwise.
func bitDepth(img image.Image) int {
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		return 16
	}
	return 8
}

// Cache provides thread-safe caching of decoded rasters to avoid redundant disk reads.
//
// Entries are keyed by path and band mode, so the same file loaded as "rgb"
// and as "lab" occupies two entries. Cached rasters are shared between callers
// and must not be modified.
type Cache struct {
	mu      sync.RWMutex
	rasters map[string]*Raster
}

// NewCache creates an empty raster cache.
func NewCache() *Cache {
	return &Cache{
		rasters: make(map[string]*Raster),
	}
}

func cacheKey(path string, mode BandMode) string {
	return string(mode) + "|" + path
}

// Load retrieves a raster from the cache or decodes it from disk if not cached.
func (c *Cache) Load(path string, mode BandMode) (*Raster, error) {
	key := cacheKey(path, mode)

	c.mu.RLock()
	if r, ok := c.rasters[key]; ok {
		c.mu.RUnlock()
		return r, nil
	}
	c.mu.RUnlock()

	r, err := Load(path, mode)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.rasters[key] = r
	c.mu.Unlock()

	return r, nil
}

// Evict removes every cached band mode of the given path.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	for _, mode := range []BandMode{BandModeGray, BandModeRGB, BandModeLab} {
		delete(c.rasters, cacheKey(path, mode))
	}
	c.mu.Unlock()
}

// Clear removes all rasters from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.rasters = make(map[string]*Raster)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rasters)
}

// Info describes a loaded raster.
type Info struct {
	Rows          int      `json:"rows"`
	Cols          int      `json:"cols"`
	Bands         int      `json:"bands"`
	BandNames     []string `json:"band_names"`
	BandMode      BandMode `json:"band_mode"`
	Format        string   `json:"format"`
	BitDepth      string   `json:"bit_depth"`
	Georeferenced bool     `json:"georeferenced"`
	FileSizeBytes int64    `json:"file_size_bytes"`
}

// LoadInfo loads a raster through the cache and returns its metadata.
//
// The format is derived from the file extension; unknown extensions report "unknown".
func LoadInfo(cache *Cache, path string, mode BandMode) (*Info, error) {
	r, err := cache.Load(path, mode)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	case ".tif", ".tiff":
		format = "tiff"
	case ".bmp":
		format = "bmp"
	}

	return &Info{
		Rows:          r.rows,
		Cols:          r.cols,
		Bands:         r.bands,
		BandNames:     r.bandNames,
		BandMode:      mode,
		Format:        format,
		BitDepth:      fmt.Sprintf("%d-bit", r.depth),
		Georeferenced: !r.meta.IsZero(),
		FileSizeBytes: stat.Size(),
	}, nil
}
