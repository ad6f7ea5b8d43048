package raster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SidecarPath returns the georeference sidecar location for an image:
// the image path with its extension replaced by ".geo.json".
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".geo.json"
}

// ReadSidecar loads the georeference sidecar for an image.
//
// A missing sidecar is not an error: the zero Metadata is returned with
// found == false.
func ReadSidecar(imagePath string) (meta Metadata, found bool, err error) {
	data, err := os.ReadFile(SidecarPath(imagePath))
	if errors.Is(err, fs.ErrNotExist) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("failed to read geo sidecar: %w", err)
	}

	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("failed to parse geo sidecar: %w", err)
	}
	if n := len(meta.GeoTransform); n != 0 && n != 6 {
		return Metadata{}, false, fmt.Errorf("geo sidecar geotransform has %d coefficients, want 6", n)
	}
	return meta, true, nil
}

// WriteSidecar stores meta next to imagePath. Nothing is written when meta is empty.
func WriteSidecar(imagePath string, meta Metadata) error {
	if meta.IsZero() {
		return nil
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode geo sidecar: %w", err)
	}
	if err := os.WriteFile(SidecarPath(imagePath), data, 0o644); err != nil {
		return fmt.Errorf("failed to write geo sidecar: %w", err)
	}
	return nil
}
