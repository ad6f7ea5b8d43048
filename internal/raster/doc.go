// Package raster provides the in-memory multi-band raster used by the
// classifier, together with the file I/O around it.
//
// # Coordinate System
//
// Cells are addressed as (row, col), both 0-based, with (0,0) at the top-left.
// When a raster is decoded from an image, row is the image Y coordinate and col
// is the image X coordinate.
//
// # Storage
//
// Band values are stored as float32, band-interleaved and row-major. Statistics
// computed from rasters elsewhere widen to float64; the narrow storage type keeps
// whole scenes in memory.
//
// # Decoding
//
// Load decodes PNG, JPEG, GIF, TIFF and BMP files and maps their channels to
// bands according to a BandMode:
//   - gray: one luminance band
//   - rgb: red, green, blue in source units (8- or 16-bit)
//   - lab: CIE L*a*b*, useful when thresholds should track perceived colour
//
// # Georeferencing
//
// Spatial reference travels in a JSON sidecar ("scene.geo.json" for
// "scene.tif") holding the projection and the six-coefficient geotransform.
// The sidecar is attached on load and written next to every output unchanged.
//
// # Output
//
// PNGSink writes labels as an 8-bit grayscale PNG (pixel value = class index)
// and an optional colour preview. MemorySink keeps labels in memory.
//
// # Thread Safety
//
// Cache is safe for concurrent use. A Raster is not synchronised; once loaded it
// is treated as immutable and may then be read from any number of goroutines.
package raster
