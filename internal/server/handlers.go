package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/landcover-mcp/internal/logging"
	"github.com/ironsheep/landcover-mcp/internal/mlc"
	"github.com/ironsheep/landcover-mcp/internal/raster"
	"github.com/ironsheep/landcover-mcp/internal/store"
)

const defaultListLimit = 20

// errInvalidParams marks tool failures caused by the caller's arguments.
var errInvalidParams = errors.New("invalid params")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "raster_load", "raster_classify").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Malformed arguments and unusable classification inputs return code -32602;
// any other tool failure returns -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warn().Str("tool", params.Name).Err(err).Msg("tool failed")
		var de *mlc.DataError
		if errors.Is(err, errInvalidParams) || errors.As(err, &de) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Raster Inspection
	case "raster_load":
		return s.handleRasterLoad(args)
	case "raster_sample_pixel":
		return s.handleRasterSamplePixel(args)

	// Training
	case "raster_grow_region":
		return s.handleRasterGrowRegion(args)
	case "raster_class_models":
		return s.handleRasterClassModels(ctx, args)
	case "raster_pixel_likelihoods":
		return s.handleRasterPixelLikelihoods(ctx, args)

	// Classification
	case "raster_classify":
		return s.handleRasterClassify(ctx, args)

	// Run History
	case "raster_list_runs":
		return s.handleListRuns(ctx, args)
	case "raster_get_run":
		return s.handleGetRun(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}

// loadRaster resolves the common path and band_mode arguments.
func (s *Server) loadRaster(path, bandMode string) (*raster.Raster, raster.BandMode, error) {
	if path == "" {
		return nil, "", fmt.Errorf("%w: path is required", errInvalidParams)
	}
	mode, err := raster.ParseBandMode(bandMode)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	r, err := s.cache.Load(path, mode)
	if err != nil {
		return nil, "", &mlc.DataError{Reason: "cannot read input raster", Err: err}
	}
	return r, mode, nil
}

func (s *Server) pipeline(workers int) *mlc.Pipeline {
	if workers <= 0 {
		workers = s.workers
	}
	log := logging.Component(s.log, "mlc")
	return &mlc.Pipeline{Workers: workers, Logger: &log}
}

// === Raster Inspection Handlers ===

type rasterLoadArgs struct {
	Path     string `json:"path"`
	BandMode string `json:"band_mode"`
}

func (s *Server) handleRasterLoad(args json.RawMessage) (interface{}, error) {
	var a rasterLoadArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("%w: path is required", errInvalidParams)
	}
	mode, err := raster.ParseBandMode(a.BandMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	info, err := raster.LoadInfo(s.cache, a.Path, mode)
	if err != nil {
		return nil, &mlc.DataError{Reason: "cannot read input raster", Err: err}
	}
	return info, nil
}

type rasterSamplePixelArgs struct {
	Path     string `json:"path"`
	BandMode string `json:"band_mode"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
}

func (s *Server) handleRasterSamplePixel(args json.RawMessage) (interface{}, error) {
	var a rasterSamplePixelArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r, _, err := s.loadRaster(a.Path, a.BandMode)
	if err != nil {
		return nil, err
	}
	res, err := raster.SamplePixel(r, a.Row, a.Col)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return res, nil
}

// === Training Handlers ===

type rasterGrowRegionArgs struct {
	Path      string  `json:"path"`
	BandMode  string  `json:"band_mode"`
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	Threshold float64 `json:"threshold"`
}

// GrowRegionResult summarises one grown region.
type GrowRegionResult struct {
	Seed       mlc.Seed    `json:"seed"`
	SeedValues []float32   `json:"seed_values"`
	Pixels     int         `json:"pixels"`
	Coverage   float64     `json:"coverage"` // Fraction of all raster cells
	Extent     *mlc.Extent `json:"extent,omitempty"`
	Mean       []float64   `json:"mean,omitempty"`
	Usable     bool        `json:"usable"` // At least two pixels, so a class model can be attempted
}

func (s *Server) handleRasterGrowRegion(args json.RawMessage) (interface{}, error) {
	var a rasterGrowRegionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r, _, err := s.loadRaster(a.Path, a.BandMode)
	if err != nil {
		return nil, err
	}

	seed := mlc.Seed{Row: a.Row, Col: a.Col}
	if err := mlc.Validate(r, []mlc.Seed{seed}, a.Threshold); err != nil {
		return nil, err
	}
	region := mlc.Grow(r, seed, a.Threshold)

	res := &GrowRegionResult{
		Seed:       seed,
		SeedValues: append([]float32(nil), r.Pixel(a.Row, a.Col)...),
		Pixels:     len(region.Pixels),
		Coverage:   float64(len(region.Pixels)) / float64(r.Rows()*r.Cols()),
		Mean:       region.Mean(),
		Usable:     len(region.Pixels) >= 2,
	}
	if e, ok := region.Extent(); ok {
		res.Extent = &e
	}
	return res, nil
}

type rasterClassModelsArgs struct {
	Path      string     `json:"path"`
	BandMode  string     `json:"band_mode"`
	Seeds     []mlc.Seed `json:"seeds"`
	Threshold float64    `json:"threshold"`
	Workers   int        `json:"workers"`
}

func (s *Server) handleRasterClassModels(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a rasterClassModelsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r, _, err := s.loadRaster(a.Path, a.BandMode)
	if err != nil {
		return nil, err
	}

	models, err := s.pipeline(a.Workers).Models(ctx, r, a.Seeds, a.Threshold)
	if err != nil {
		return nil, err
	}
	out := make([]store.ClassModel, len(models))
	for i, m := range models {
		out[i] = store.ModelFrom(i, m)
	}
	return map[string]interface{}{
		"bands":  r.Bands(),
		"models": out,
	}, nil
}

type rasterPixelLikelihoodsArgs struct {
	Path      string     `json:"path"`
	BandMode  string     `json:"band_mode"`
	Seeds     []mlc.Seed `json:"seeds"`
	Threshold float64    `json:"threshold"`
	Row       int        `json:"row"`
	Col       int        `json:"col"`
}

// PixelLikelihoodsResult reports how one cell scores under every class.
type PixelLikelihoodsResult struct {
	Row            int       `json:"row"`
	Col            int       `json:"col"`
	Values         []float32 `json:"values"`
	LogLikelihoods []float64 `json:"log_likelihoods"`
	Class          int       `json:"class"`
	ClassName      string    `json:"class_name,omitempty"`
}

func (s *Server) handleRasterPixelLikelihoods(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a rasterPixelLikelihoodsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r, _, err := s.loadRaster(a.Path, a.BandMode)
	if err != nil {
		return nil, err
	}
	if !r.InBounds(a.Row, a.Col) {
		return nil, fmt.Errorf("%w: cell (row %d, col %d) outside raster %dx%d",
			errInvalidParams, a.Row, a.Col, r.Rows(), r.Cols())
	}

	models, err := s.pipeline(0).Models(ctx, r, a.Seeds, a.Threshold)
	if err != nil {
		return nil, err
	}
	clf, err := mlc.NewClassifier(models)
	if err != nil {
		return nil, err
	}

	x := r.Pixel(a.Row, a.Col)
	ev := clf.Evaluator()
	k, err := ev.Classify(x)
	if err != nil {
		var ce *mlc.ClassificationError
		if errors.As(err, &ce) {
			ce.Row, ce.Col = a.Row, a.Col
		}
		return nil, err
	}
	return &PixelLikelihoodsResult{
		Row:            a.Row,
		Col:            a.Col,
		Values:         append([]float32(nil), x...),
		LogLikelihoods: ev.LogLikelihoods(x, nil),
		Class:          k,
		ClassName:      a.Seeds[k].Name,
	}, nil
}

// === Classification Handlers ===

type rasterClassifyArgs struct {
	Path           string     `json:"path"`
	BandMode       string     `json:"band_mode"`
	Seeds          []mlc.Seed `json:"seeds"`
	Threshold      float64    `json:"threshold"`
	Workers        int        `json:"workers"`
	Output         string     `json:"output"`
	Preview        string     `json:"preview"`
	PreviewMaxSize int        `json:"preview_max_size"`
	IncludePreview bool       `json:"include_preview"`
}

// ClassSummary describes one class of a completed run.
type ClassSummary struct {
	Index          int     `json:"index"`
	Name           string  `json:"name,omitempty"`
	SeedRow        int     `json:"seed_row"`
	SeedCol        int     `json:"seed_col"`
	TrainingPixels int     `json:"training_pixels"`
	Cells          int     `json:"cells"`
	Fraction       float64 `json:"fraction"`
}

// ClassifyResult is returned by raster_classify.
type ClassifyResult struct {
	RunID         string         `json:"run_id,omitempty"`
	Rows          int            `json:"rows"`
	Cols          int            `json:"cols"`
	Bands         int            `json:"bands"`
	BandMode      string         `json:"band_mode"`
	Threshold     float64        `json:"threshold"`
	Classes       []ClassSummary `json:"classes"`
	Output        string         `json:"output,omitempty"`
	Preview       string         `json:"preview,omitempty"`
	Georeferenced bool           `json:"georeferenced"`
	ElapsedMS     int64          `json:"elapsed_ms"`
	PreviewPNG    string         `json:"preview_png_base64,omitempty"`
}

func (s *Server) handleRasterClassify(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a rasterClassifyArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Preview != "" && a.Output == "" {
		return nil, fmt.Errorf("%w: preview requires output", errInvalidParams)
	}
	r, mode, err := s.loadRaster(a.Path, a.BandMode)
	if err != nil {
		return nil, err
	}

	var sink raster.Sink = &raster.MemorySink{}
	if a.Output != "" {
		sink = &raster.PNGSink{
			Path:           a.Output,
			PreviewPath:    a.Preview,
			PreviewMaxSize: a.PreviewMaxSize,
			Classes:        len(a.Seeds),
		}
	}

	res, err := s.pipeline(a.Workers).Run(ctx, r, sink, a.Seeds, a.Threshold)
	if err != nil {
		return nil, err
	}

	out := &ClassifyResult{
		Rows:          res.Labels.Rows,
		Cols:          res.Labels.Cols,
		Bands:         r.Bands(),
		BandMode:      string(mode),
		Threshold:     res.Threshold,
		Output:        a.Output,
		Preview:       a.Preview,
		Georeferenced: !res.Metadata.IsZero(),
		ElapsedMS:     res.Elapsed.Milliseconds(),
	}
	total := float64(res.Labels.Rows * res.Labels.Cols)
	for i, m := range res.Models {
		out.Classes = append(out.Classes, ClassSummary{
			Index:          i,
			Name:           m.Seed.Name,
			SeedRow:        m.Seed.Row,
			SeedCol:        m.Seed.Col,
			TrainingPixels: m.Pixels,
			Cells:          res.ClassCounts[i],
			Fraction:       float64(res.ClassCounts[i]) / total,
		})
	}

	if a.IncludePreview {
		encoded, err := raster.EncodePNGBase64(raster.Preview(res.Labels, len(res.Models), a.PreviewMaxSize))
		if err != nil {
			return nil, err
		}
		out.PreviewPNG = encoded
	}

	if s.store != nil {
		run := store.NewRun(res, a.Path, string(mode), r.Bands())
		run.OutputPath = a.Output
		run.PreviewPath = a.Preview
		id, err := s.store.SaveRun(ctx, run)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to record run")
		} else {
			out.RunID = id
		}
	}

	s.log.Info().
		Str("path", a.Path).
		Str("run_id", out.RunID).
		Int("classes", len(res.Models)).
		Int64("elapsed_ms", out.ElapsedMS).
		Msg("raster classified")
	return out, nil
}

// === Run History Handlers ===

type listRunsArgs struct {
	Limit int `json:"limit"`
}

func (s *Server) handleListRuns(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a listRunsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, errors.New("run history is disabled")
	}
	if a.Limit <= 0 {
		a.Limit = defaultListLimit
	}
	runs, err := s.store.ListRuns(ctx, a.Limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	}, nil
}

type getRunArgs struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleGetRun(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a getRunArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.RunID == "" {
		return nil, fmt.Errorf("%w: run_id is required", errInvalidParams)
	}
	if s.store == nil {
		return nil, errors.New("run history is disabled")
	}
	return s.store.GetRun(ctx, a.RunID)
}
