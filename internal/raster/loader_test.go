package raster

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// createTestImage writes img as a PNG in a temporary directory and returns its path.
func createTestImage(t *testing.T, img image.Image) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test-image.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// createQuadrantImage creates an image with red top-left, green top-right,
// blue bottom-left and white bottom-right quadrants.
func createQuadrantImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.NRGBA
			switch {
			case x < width/2 && y < height/2:
				c = color.NRGBA{255, 0, 0, 255}
			case x >= width/2 && y < height/2:
				c = color.NRGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.NRGBA{0, 0, 255, 255}
			default:
				c = color.NRGBA{255, 255, 255, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestParseBandMode(t *testing.T) {
	tests := []struct {
		in      string
		want    BandMode
		wantErr bool
	}{
		{"", BandModeRGB, false},
		{"rgb", BandModeRGB, false},
		{"RGB", BandModeRGB, false},
		{" gray ", BandModeGray, false},
		{"lab", BandModeLab, false},
		{"cmyk", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBandMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBandMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBandMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_RGB(t *testing.T) {
	path := createTestImage(t, createQuadrantImage(40, 20))

	r, err := Load(path, BandModeRGB)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if r.Rows() != 20 || r.Cols() != 40 || r.Bands() != 3 {
		t.Fatalf("shape: got %dx%dx%d, want 20x40x3", r.Rows(), r.Cols(), r.Bands())
	}

	tests := []struct {
		name     string
		row, col int
		want     [3]float32
	}{
		{"red", 0, 0, [3]float32{255, 0, 0}},
		{"green", 0, 39, [3]float32{0, 255, 0}},
		{"blue", 19, 0, [3]float32{0, 0, 255}},
		{"white", 19, 39, [3]float32{255, 255, 255}},
	}
	for _, tt := range tests {
		px := r.Pixel(tt.row, tt.col)
		for b := 0; b < 3; b++ {
			if px[b] != tt.want[b] {
				t.Errorf("%s: band %d got %v, want %v", tt.name, b, px[b], tt.want[b])
			}
		}
	}

	names := r.BandNames()
	if len(names) != 3 || names[0] != "red" || names[2] != "blue" {
		t.Errorf("band names: got %v", names)
	}
}

func TestLoad_Gray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 40)
	}
	path := createTestImage(t, img)

	r, err := Load(path, BandModeGray)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r.Bands() != 1 {
		t.Fatalf("bands: got %d, want 1", r.Bands())
	}
	if got := r.Pixel(1, 2)[0]; got != 200 {
		t.Errorf("Pixel(1,2): got %v, want 200", got)
	}
}

func TestLoad_Gray16KeepsFullRange(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 2, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 1000})
	img.SetGray16(1, 0, color.Gray16{Y: 65535})
	path := createTestImage(t, img)

	r, err := Load(path, BandModeGray)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := r.Pixel(0, 0)[0]; got != 1000 {
		t.Errorf("Pixel(0,0): got %v, want 1000", got)
	}
	if got := r.Pixel(0, 1)[0]; got != 65535 {
		t.Errorf("Pixel(0,1): got %v, want 65535", got)
	}
}

func TestLoad_Lab(t *testing.T) {
	path := createTestImage(t, createQuadrantImage(4, 4))

	r, err := Load(path, BandModeLab)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	white := r.Pixel(3, 3)
	if white[0] < 99 || white[0] > 101 {
		t.Errorf("white L: got %v, want ~100", white[0])
	}
	red := r.Pixel(0, 0)
	if red[1] <= 0 {
		t.Errorf("red a*: got %v, want positive", red[1])
	}
}

func TestLoad_NonExistent(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/image.png", BandModeRGB); err == nil {
		t.Error("Load should fail for non-existent file")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, BandModeRGB); err == nil {
		t.Error("Load should fail for invalid image data")
	}
}

func TestLoad_AttachesSidecar(t *testing.T) {
	path := createTestImage(t, createQuadrantImage(4, 4))
	meta := Metadata{Projection: "EPSG:4326", GeoTransform: []float64{10, 0.1, 0, 50, 0, -0.1}}
	if err := WriteSidecar(path, meta); err != nil {
		t.Fatalf("WriteSidecar failed: %v", err)
	}

	r, err := Load(path, BandModeRGB)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := r.Metadata()
	if got.Projection != "EPSG:4326" || len(got.GeoTransform) != 6 || got.GeoTransform[5] != -0.1 {
		t.Errorf("Metadata: got %+v", got)
	}
}

func TestFromImage_UnknownMode(t *testing.T) {
	if _, err := FromImage(createQuadrantImage(2, 2), BandMode("hsv")); err == nil {
		t.Error("FromImage should reject an unknown band mode")
	}
}

func TestCache_Load(t *testing.T) {
	cache := NewCache()
	path := createTestImage(t, createQuadrantImage(10, 10))

	r1, err := cache.Load(path, BandModeRGB)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	r2, err := cache.Load(path, BandModeRGB)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if r1 != r2 {
		t.Error("second Load did not return cached raster")
	}

	r3, err := cache.Load(path, BandModeGray)
	if err != nil {
		t.Fatalf("gray Load failed: %v", err)
	}
	if r3 == r1 {
		t.Error("different band modes must be cached separately")
	}
	if cache.Len() != 2 {
		t.Errorf("Len: got %d, want 2", cache.Len())
	}

	cache.Evict(path)
	if cache.Len() != 0 {
		t.Errorf("Len after Evict: got %d, want 0", cache.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	cache := NewCache()
	for i := 0; i < 3; i++ {
		path := createTestImage(t, createQuadrantImage(4, 4))
		if _, err := cache.Load(path, BandModeRGB); err != nil {
			t.Fatalf("Load failed: %v", err)
		}
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len after Clear: got %d, want 0", cache.Len())
	}
}

func TestCache_Concurrent(t *testing.T) {
	cache := NewCache()
	path := createTestImage(t, createQuadrantImage(20, 20))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Load(path, BandModeRGB); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Load failed: %v", err)
	}
}

func TestLoadInfo(t *testing.T) {
	cache := NewCache()
	path := createTestImage(t, createQuadrantImage(30, 10))

	info, err := LoadInfo(cache, path, BandModeRGB)
	if err != nil {
		t.Fatalf("LoadInfo failed: %v", err)
	}
	if info.Rows != 10 || info.Cols != 30 || info.Bands != 3 {
		t.Errorf("shape: got %dx%dx%d", info.Rows, info.Cols, info.Bands)
	}
	if info.Format != "png" {
		t.Errorf("format: got %s, want png", info.Format)
	}
	if info.Georeferenced {
		t.Error("expected no georeference")
	}
	if info.FileSizeBytes <= 0 {
		t.Errorf("file size: got %d", info.FileSizeBytes)
	}
}
