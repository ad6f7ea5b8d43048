package mlc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/landcover-mcp/internal/raster"
)

// classTerms are the per-class quantities reused for every pixel.
type classTerms struct {
	mean    []float64
	inverse *mat.SymDense
	logDet  float64
}

// factorize is swapped out by tests to count factorisations.
var factorize = factorizeModel

func factorizeModel(m ClassModel) (classTerms, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(m.Covariance); !ok {
		return classTerms{}, errors.New("covariance is not positive definite")
	}

	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		// An ill-conditioned but invertible matrix still yields a usable
		// inverse; only a failed inversion is fatal.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return classTerms{}, fmt.Errorf("failed to invert covariance: %w", err)
		}
	}

	return classTerms{
		mean:    append([]float64(nil), m.Mean...),
		inverse: &inv,
		logDet:  chol.LogDet(),
	}, nil
}

// Classifier assigns pixels to the class with the highest multivariate
// Gaussian log-likelihood
//
//	logP_k = -0.5·ln det Σk - 0.5·(x-μk)ᵗ Σk⁻¹ (x-μk)
//
// The determinant and inverse of every class are computed once in
// NewClassifier. A Classifier is immutable and safe for concurrent use;
// per-goroutine scratch space lives in an Evaluator.
type Classifier struct {
	bands int
	terms []classTerms
}

// NewClassifier factorises each class model once.
//
// Models must share one band count. A model whose covariance cannot be
// factorised yields a *ClassificationError with Row and Col set to -1.
func NewClassifier(models []ClassModel) (*Classifier, error) {
	if len(models) == 0 {
		return nil, &DataError{Reason: "no class models"}
	}

	c := &Classifier{
		bands: models[0].Bands(),
		terms: make([]classTerms, len(models)),
	}
	for k, m := range models {
		if m.Bands() != c.bands {
			return nil, &DataError{Reason: fmt.Sprintf("class %d has %d bands, class 0 has %d", k, m.Bands(), c.bands)}
		}
		t, err := factorize(m)
		if err != nil {
			return nil, &ClassificationError{Row: -1, Col: -1, Class: k, LogLikelihood: math.NaN(), Err: err}
		}
		c.terms[k] = t
	}
	return c, nil
}

// Classes returns the number of classes.
func (c *Classifier) Classes() int { return len(c.terms) }

// Bands returns the number of bands each pixel must have.
func (c *Classifier) Bands() int { return c.bands }

// Classify is a convenience for one-off calls. Sweeps should reuse an Evaluator.
func (c *Classifier) Classify(x raster.BandVector) (int, error) {
	return c.Evaluator().Classify(x)
}

// LogLikelihoods is the one-off form of Evaluator.LogLikelihoods.
func (c *Classifier) LogLikelihoods(x raster.BandVector, dst []float64) []float64 {
	return c.Evaluator().LogLikelihoods(x, dst)
}

// Evaluator carries the scratch buffers for classifying pixels on one
// goroutine.
type Evaluator struct {
	c    *Classifier
	diff *mat.VecDense
}

// Evaluator returns a new evaluator bound to c.
func (c *Classifier) Evaluator() *Evaluator {
	return &Evaluator{c: c, diff: mat.NewVecDense(c.bands, nil)}
}

func (e *Evaluator) logLikelihood(k int, x raster.BandVector) float64 {
	t := &e.c.terms[k]
	for j, v := range x {
		e.diff.SetVec(j, float64(v)-t.mean[j])
	}
	return -0.5*t.logDet - 0.5*mat.Inner(e.diff, t.inverse, e.diff)
}

// Classify returns the index of the most likely class for x.
//
// Classes are compared in model order and a later class replaces the current
// best only when strictly more likely, so ties resolve to the lowest index.
// Returns *ClassificationError (Row and Col -1) if any log-likelihood is NaN
// or infinite.
func (e *Evaluator) Classify(x raster.BandVector) (int, error) {
	best := 0
	bestP := math.Inf(-1)
	for k := range e.c.terms {
		p := e.logLikelihood(k, x)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, &ClassificationError{Row: -1, Col: -1, Class: k, LogLikelihood: p}
		}
		if k == 0 || p > bestP {
			best, bestP = k, p
		}
	}
	return best, nil
}

// LogLikelihoods writes the log-likelihood of x under every class into dst,
// growing it as needed, and returns it. Non-finite values are returned as is.
func (e *Evaluator) LogLikelihoods(x raster.BandVector, dst []float64) []float64 {
	dst = dst[:0]
	for k := range e.c.terms {
		dst = append(dst, e.logLikelihood(k, x))
	}
	return dst
}
