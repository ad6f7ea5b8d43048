package mlc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/landcover-mcp/internal/raster"
)

// MaxClasses is the largest number of seeds a run accepts. Labels are 8-bit.
const MaxClasses = 256

// DefaultBatchRows is the number of rows a sweep task classifies between
// cancellation checks.
const DefaultBatchRows = 16

// Pipeline drives region growing, model estimation and the classification
// sweep. The zero value is ready to use.
type Pipeline struct {
	// Workers bounds the goroutines used for growing and sweeping.
	// Zero or negative means runtime.GOMAXPROCS(0).
	Workers int

	// BatchRows is the number of rows per sweep task. Zero means DefaultBatchRows.
	BatchRows int

	// Logger receives progress events. Nil disables logging.
	Logger *zerolog.Logger
}

// Result is the outcome of a complete classification run.
type Result struct {
	Labels      *raster.Labels
	Models      []ClassModel
	ClassCounts []int
	Seeds       []Seed
	Threshold   float64
	Metadata    raster.Metadata
	Elapsed     time.Duration
}

func (p *Pipeline) workers() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (p *Pipeline) batchRows() int {
	if p.BatchRows > 0 {
		return p.BatchRows
	}
	return DefaultBatchRows
}

func (p *Pipeline) log() *zerolog.Logger {
	if p.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return p.Logger
}

// Validate checks a run's inputs. It returns *DataError for an empty raster,
// a seed count outside [1, MaxClasses], a threshold that is not a positive
// finite number, or a seed outside the raster.
func Validate(src raster.Source, seeds []Seed, threshold float64) error {
	if src == nil {
		return &DataError{Reason: "no raster source"}
	}
	rows, cols, bands := src.Rows(), src.Cols(), src.Bands()
	if rows <= 0 || cols <= 0 || bands <= 0 {
		return &DataError{Reason: fmt.Sprintf("empty raster %dx%d with %d bands", rows, cols, bands)}
	}
	if len(seeds) == 0 {
		return &DataError{Reason: "no seeds"}
	}
	if len(seeds) > MaxClasses {
		return &DataError{Reason: fmt.Sprintf("%d seeds exceeds the %d class limit", len(seeds), MaxClasses)}
	}
	if !(threshold > 0) || math.IsInf(threshold, 1) {
		return &DataError{Reason: fmt.Sprintf("threshold must be a positive finite number, got %v", threshold)}
	}
	for i, s := range seeds {
		if s.Row < 0 || s.Row >= rows || s.Col < 0 || s.Col >= cols {
			return &DataError{Reason: fmt.Sprintf("seed %d (row %d, col %d) outside raster %dx%d", i, s.Row, s.Col, rows, cols)}
		}
	}
	return nil
}

// GrowRegions grows one region per seed. Seeds are independent and grown
// concurrently; the result is in seed order.
func (p *Pipeline) GrowRegions(ctx context.Context, src raster.Source, seeds []Seed, threshold float64) ([]*Region, error) {
	if err := Validate(src, seeds, threshold); err != nil {
		return nil, err
	}

	regions := make([]*Region, len(seeds))
	var g errgroup.Group
	g.SetLimit(p.workers())
	for i, seed := range seeds {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			regions[i] = Grow(src, seed, threshold)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}

// Models grows a region around each seed and estimates its class model.
//
// All seeds are processed even if one fails, so that the reported error is
// always the one of the lowest failing seed index regardless of scheduling.
func (p *Pipeline) Models(ctx context.Context, src raster.Source, seeds []Seed, threshold float64) ([]ClassModel, error) {
	if err := Validate(src, seeds, threshold); err != nil {
		return nil, err
	}

	log := p.log()
	models := make([]ClassModel, len(seeds))
	errs := make([]error, len(seeds))

	var g errgroup.Group
	g.SetLimit(p.workers())
	for i, seed := range seeds {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			region := Grow(src, seed, threshold)
			log.Debug().
				Int("class", i).
				Str("name", seed.Name).
				Int("pixels", len(region.Pixels)).
				Msg("region grown")

			model, err := Estimate(region)
			if err != nil {
				var de *DegenerateRegionError
				if errors.As(err, &de) {
					de.Class = i
				}
				errs[i] = err
				return err
			}
			models[i] = model
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			log.Error().Err(err).Msg("class model estimation failed")
			return nil, err
		}
	}
	return models, nil
}

// Classify builds every class model, then labels every pixel of src.
//
// Classification starts only after all models exist. Rows are swept in
// batches on parallel workers sharing one Classifier; each cell is written
// exactly once. When several cells fail, the first in row-major order is
// reported. No labels are returned unless the whole sweep succeeds.
func (p *Pipeline) Classify(ctx context.Context, src raster.Source, seeds []Seed, threshold float64) (*Result, error) {
	start := time.Now()

	models, err := p.Models(ctx, src, seeds, threshold)
	if err != nil {
		return nil, err
	}

	clf, err := NewClassifier(models)
	if err != nil {
		return nil, err
	}
	if clf.Bands() != src.Bands() {
		return nil, &DataError{Reason: fmt.Sprintf("models have %d bands, raster has %d", clf.Bands(), src.Bands())}
	}

	labels, err := p.sweep(ctx, src, clf)
	if err != nil {
		p.log().Error().Err(err).Msg("classification sweep failed")
		return nil, err
	}

	res := &Result{
		Labels:      labels,
		Models:      models,
		ClassCounts: labels.Counts(len(models)),
		Seeds:       append([]Seed(nil), seeds...),
		Threshold:   threshold,
		Metadata:    src.Metadata(),
		Elapsed:     time.Since(start),
	}
	p.log().Info().
		Int("rows", labels.Rows).
		Int("cols", labels.Cols).
		Int("classes", len(models)).
		Ints("class_counts", res.ClassCounts).
		Dur("elapsed", res.Elapsed).
		Msg("classification complete")
	return res, nil
}

// Run classifies src and hands the completed labels and the source metadata
// to sink. The sink is not called if classification fails.
func (p *Pipeline) Run(ctx context.Context, src raster.Source, sink raster.Sink, seeds []Seed, threshold float64) (*Result, error) {
	res, err := p.Classify(ctx, src, seeds, threshold)
	if err != nil {
		return nil, err
	}
	if err := sink.WriteLabels(res.Labels, res.Metadata); err != nil {
		return nil, fmt.Errorf("failed to write labels: %w", err)
	}
	return res, nil
}

func (p *Pipeline) sweep(ctx context.Context, src raster.Source, clf *Classifier) (*raster.Labels, error) {
	rows, cols := src.Rows(), src.Cols()
	labels := raster.NewLabels(rows, cols)
	batch := p.batchRows()
	batches := (rows + batch - 1) / batch
	errs := make([]error, batches)

	var g errgroup.Group
	g.SetLimit(p.workers())
	for b := 0; b < batches; b++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ev := clf.Evaluator()
			for row := b * batch; row < min((b+1)*batch, rows); row++ {
				for col := 0; col < cols; col++ {
					k, err := ev.Classify(src.Pixel(row, col))
					if err != nil {
						var ce *ClassificationError
						if errors.As(err, &ce) {
							ce.Row, ce.Col = row, col
						}
						errs[b] = err
						return err
					}
					labels.Set(row, col, uint8(k))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return labels, nil
}
