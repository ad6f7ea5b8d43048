// Package server implements the MCP (Model Context Protocol) server for
// land-cover classification tools.
//
// This package provides a JSON-RPC 2.0 server that exposes seeded
// maximum-likelihood classification of raster images through the MCP protocol,
// so that an MCP client can inspect a scene, pick seeds, tune the region
// threshold and classify.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Raster Inspection:
//   - raster_load: Decode a raster and report its shape and georeference
//   - raster_sample_pixel: Band values at a cell
//
// Training:
//   - raster_grow_region: Grow one seed and summarise the region
//   - raster_class_models: Estimate the Gaussian model of every seed
//   - raster_pixel_likelihoods: Score one cell under every class
//
// Classification:
//   - raster_classify: Label every cell, optionally writing PNG outputs
//
// Run History:
//   - raster_list_runs: Recorded runs, newest first
//   - raster_get_run: One run with its class models
//
// # Raster Caching
//
// Rasters are cached by path and band mode for the lifetime of the server
// process, so tuning a threshold over several calls decodes the image once.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32602 for malformed arguments or unusable classification input
//     (empty raster, bad threshold, seed outside the raster), -32000 for any
//     other failure such as a degenerate region
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.Config{Store: st, Logger: log})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal().Err(err).Msg("server error")
//	}
package server
