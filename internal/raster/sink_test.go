package raster

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func stripedLabels(rows, cols, classes int) *Labels {
	l := NewLabels(rows, cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			l.Set(row, col, uint8(col*classes/cols))
		}
	}
	return l
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("failed to decode %s: %v", path, err)
	}
	return img
}

func TestPNGSink_WriteLabels(t *testing.T) {
	dir := t.TempDir()
	sink := &PNGSink{
		Path:        filepath.Join(dir, "classes.png"),
		PreviewPath: filepath.Join(dir, "preview.png"),
	}
	labels := stripedLabels(4, 6, 3)
	meta := Metadata{Projection: "EPSG:3857", GeoTransform: []float64{0, 1, 0, 0, 0, -1}}

	if err := sink.WriteLabels(labels, meta); err != nil {
		t.Fatalf("WriteLabels failed: %v", err)
	}

	gray, ok := decodePNG(t, sink.Path).(*image.Gray)
	if !ok {
		t.Fatal("label raster should decode as 8-bit gray")
	}
	for row := 0; row < 4; row++ {
		for col := 0; col < 6; col++ {
			if got, want := gray.GrayAt(col, row).Y, labels.At(row, col); got != want {
				t.Errorf("label (%d,%d): got %d, want %d", row, col, got, want)
			}
		}
	}

	preview := decodePNG(t, sink.PreviewPath)
	if preview.Bounds().Dx() != 6 || preview.Bounds().Dy() != 4 {
		t.Errorf("preview bounds: got %v", preview.Bounds())
	}

	for _, p := range []string{sink.Path, sink.PreviewPath} {
		got, found, err := ReadSidecar(p)
		if err != nil || !found {
			t.Fatalf("sidecar for %s: found=%v err=%v", p, found, err)
		}
		if got.Projection != "EPSG:3857" {
			t.Errorf("sidecar projection: got %q", got.Projection)
		}
	}
}

func TestPNGSink_NoPathFails(t *testing.T) {
	if err := (&PNGSink{}).WriteLabels(NewLabels(1, 1), Metadata{}); err == nil {
		t.Error("WriteLabels should fail without an output path")
	}
}

func TestPNGSink_UnwritableDirectory(t *testing.T) {
	sink := &PNGSink{Path: filepath.Join(t.TempDir(), "missing", "classes.png")}
	if err := sink.WriteLabels(NewLabels(2, 2), Metadata{}); err == nil {
		t.Error("WriteLabels should fail when the directory does not exist")
	}
}

func TestMemorySink(t *testing.T) {
	sink := &MemorySink{}
	labels := NewLabels(2, 2)
	meta := Metadata{Projection: "EPSG:4326"}

	if err := sink.WriteLabels(labels, meta); err != nil {
		t.Fatalf("WriteLabels failed: %v", err)
	}
	if sink.Labels != labels || sink.Metadata.Projection != "EPSG:4326" || sink.Writes != 1 {
		t.Errorf("MemorySink state: %+v", sink)
	}
}

func TestPalette(t *testing.T) {
	p := Palette(5)
	if len(p) != 5 {
		t.Fatalf("len: got %d, want 5", len(p))
	}
	seen := make(map[[3]uint8]bool)
	for i, c := range p {
		if c.A != 255 {
			t.Errorf("colour %d is not opaque", i)
		}
		key := [3]uint8{c.R, c.G, c.B}
		if seen[key] {
			t.Errorf("colour %d duplicates an earlier colour: %v", i, c)
		}
		seen[key] = true
	}

	again := Palette(5)
	for i := range p {
		if p[i] != again[i] {
			t.Errorf("Palette is not deterministic at %d", i)
		}
	}
}

func TestColorize(t *testing.T) {
	labels := stripedLabels(2, 4, 2)
	palette := Palette(2)

	img := Colorize(labels, palette)
	if img.NRGBAAt(0, 0) != palette[0] || img.NRGBAAt(3, 1) != palette[1] {
		t.Errorf("Colorize used the wrong palette entries")
	}

	labels.Set(0, 0, 9)
	img = Colorize(labels, palette)
	if c := img.NRGBAAt(0, 0); c.R != 0 || c.G != 0 || c.B != 0 {
		t.Errorf("out-of-palette label should be black, got %v", c)
	}
}

func TestPreview_Downscales(t *testing.T) {
	labels := stripedLabels(50, 200, 4)

	tests := []struct {
		name         string
		maxSize      int
		wantW, wantH int
	}{
		{"bounded", 100, 100, 25},
		{"already small", 500, 200, 50},
		{"full resolution", -1, 200, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Preview(labels, 4, tt.maxSize).Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("bounds: got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestEncodePNGBase64(t *testing.T) {
	encoded, err := EncodePNGBase64(Colorize(stripedLabels(3, 3, 3), Palette(3)))
	if err != nil {
		t.Fatalf("EncodePNGBase64 failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("not valid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 3 {
		t.Errorf("width: got %d, want 3", img.Bounds().Dx())
	}
}
