package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var (
	pathProperty = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the raster image (PNG, JPEG, GIF, TIFF or BMP)",
	}
	bandModeProperty = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"gray", "rgb", "lab"},
		"description": "How image channels become bands: gray (1 band), rgb (3 bands in source units) or lab (CIE L*a*b*). Default rgb",
		"default":     "rgb",
	}
	rowProperty = map[string]interface{}{
		"type":        "integer",
		"description": "Row (image Y, 0-based from the top)",
	}
	colProperty = map[string]interface{}{
		"type":        "integer",
		"description": "Column (image X, 0-based from the left)",
	}
	thresholdProperty = map[string]interface{}{
		"type":        "number",
		"description": "Spectral distance threshold. Neighbours whose Euclidean band distance to the seed is strictly below it join the region",
	}
	seedsProperty = map[string]interface{}{
		"type":        "array",
		"description": "One seed per class, in class order. Class index = position in this list",
		"minItems":    1,
		"maxItems":    256,
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"row":  map[string]interface{}{"type": "integer"},
				"col":  map[string]interface{}{"type": "integer"},
				"name": map[string]interface{}{"type": "string", "description": "Optional class name, e.g. water"},
			},
			"required": []string{"row", "col"},
		},
	}
	workersProperty = map[string]interface{}{
		"type":        "integer",
		"description": "Optional worker count. Default: server setting (all CPUs)",
	}
)

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Raster Inspection
		{
			Name:        "raster_load",
			Description: "Load a raster image and return its rows, columns, bands and whether a .geo.json georeference sidecar was found. The raster is cached for subsequent calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"band_mode": bandModeProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "raster_sample_pixel",
			Description: "Return the band values at a cell. Use this to choose seeds and thresholds.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"band_mode": bandModeProperty,
					"row":       rowProperty,
					"col":       colProperty,
				},
				"required": []string{"path", "row", "col"},
			},
		},

		// Training
		{
			Name:        "raster_grow_region",
			Description: "Grow an 8-connected region from one seed and report its pixel count, bounding box and mean. Use this to tune the threshold before classifying.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"band_mode": bandModeProperty,
					"row":       rowProperty,
					"col":       colProperty,
					"threshold": thresholdProperty,
				},
				"required": []string{"path", "row", "col", "threshold"},
			},
		},
		{
			Name:        "raster_class_models",
			Description: "Grow a region for every seed and return each class's mean vector, covariance matrix and log-determinant.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"band_mode": bandModeProperty,
					"seeds":     seedsProperty,
					"threshold": thresholdProperty,
					"workers":   workersProperty,
				},
				"required": []string{"path", "seeds", "threshold"},
			},
		},
		{
			Name:        "raster_pixel_likelihoods",
			Description: "Return the Gaussian log-likelihood of one cell under every class model, and the class it would be assigned.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"band_mode": bandModeProperty,
					"seeds":     seedsProperty,
					"threshold": thresholdProperty,
					"row":       rowProperty,
					"col":       colProperty,
				},
				"required": []string{"path", "seeds", "threshold", "row", "col"},
			},
		},

		// Classification
		{
			Name:        "raster_classify",
			Description: "Run seeded maximum-likelihood classification over the whole raster. Optionally writes an 8-bit label PNG (pixel value = class index) and a colour preview, each with the source georeference sidecar. The run is recorded in the run history.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":      pathProperty,
					"band_mode": bandModeProperty,
					"seeds":     seedsProperty,
					"threshold": thresholdProperty,
					"workers":   workersProperty,
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Optional path for the label PNG",
					},
					"preview": map[string]interface{}{
						"type":        "string",
						"description": "Optional path for the colour preview PNG",
					},
					"preview_max_size": map[string]interface{}{
						"type":        "integer",
						"description": "Longest preview side in pixels. Default 1024",
						"default":     1024,
					},
					"include_preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the colour preview as base64-encoded PNG. Default false",
						"default":     false,
					},
				},
				"required": []string{"path", "seeds", "threshold"},
			},
		},

		// Run History
		{
			Name:        "raster_list_runs",
			Description: "List recorded classification runs, newest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of runs. Default 20",
						"default":     20,
					},
				},
			},
		},
		{
			Name:        "raster_get_run",
			Description: "Return one recorded run with its class models.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"run_id": map[string]interface{}{
						"type":        "string",
						"description": "Run ID returned by raster_classify or raster_list_runs",
					},
				},
				"required": []string{"run_id"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
