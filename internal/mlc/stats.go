package mlc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SingularityTolerance is the smallest accepted determinant of the
// correlation matrix implied by a covariance (det Σ / Π Σii). The ratio is
// scale free and lies in [0, 1]; values below the tolerance mean the bands
// are linearly dependent within the region.
const SingularityTolerance = 1e-12

// ClassModel is the Gaussian model estimated from one grown region.
type ClassModel struct {
	Seed       Seed
	Mean       []float64
	Covariance *mat.SymDense
	// Pixels is the number of region pixels the model was estimated from.
	Pixels int
}

// Bands returns the dimensionality of the model.
func (m ClassModel) Bands() int { return len(m.Mean) }

// Estimate computes the per-band mean and the sample covariance
// Xᵗ·X / (n−1) of the mean-centred region pixels.
//
// Band values widen from float32 to float64 before accumulation.
// Returns *DegenerateRegionError when the region has fewer than two pixels or
// the covariance is singular.
func Estimate(region *Region) (ClassModel, error) {
	n := len(region.Pixels)
	if n < 2 {
		return ClassModel{}, &DegenerateRegionError{
			Class:  -1,
			Seed:   region.Seed,
			Pixels: n,
			Reason: "fewer than 2 pixels",
		}
	}

	bands := len(region.Pixels[0])
	x := mat.NewDense(n, bands, nil)
	for i, px := range region.Pixels {
		row := x.RawRowView(i)
		for j, v := range px {
			row[j] = float64(v)
		}
	}

	mean := make([]float64, bands)
	col := make([]float64, n)
	for j := range mean {
		mat.Col(col, j, x)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(bands, nil)
	stat.CovarianceMatrix(cov, x, nil)

	if reason := singularity(cov); reason != "" {
		return ClassModel{}, &DegenerateRegionError{
			Class:  -1,
			Seed:   region.Seed,
			Pixels: n,
			Reason: reason,
		}
	}

	return ClassModel{
		Seed:       region.Seed,
		Mean:       mean,
		Covariance: cov,
		Pixels:     n,
	}, nil
}

// singularity returns a description of why cov cannot be inverted, or "" if
// it is usable. The test runs in log space so that many high-variance bands
// do not overflow.
func singularity(cov *mat.SymDense) string {
	logDet, sign := mat.LogDet(cov)
	if math.IsNaN(logDet) || math.IsNaN(sign) {
		return "covariance determinant is not finite"
	}
	if sign <= 0 || math.IsInf(logDet, -1) {
		return "covariance determinant is zero"
	}

	var logDiag float64
	for i := 0; i < cov.SymmetricDim(); i++ {
		v := cov.At(i, i)
		if v <= 0 {
			return fmt.Sprintf("band %d has zero variance", i)
		}
		logDiag += math.Log(v)
	}
	if logDet-logDiag < math.Log(SingularityTolerance) {
		return "covariance matrix is near-singular"
	}
	return ""
}
