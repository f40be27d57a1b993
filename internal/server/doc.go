// Package server implements the MCP (Model Context Protocol) server that
// exposes the form extraction pipeline as tools.
//
// The server communicates over stdio using JSON-RPC 2.0, one request per
// line. Supported methods are initialize, tools/list, tools/call and ping.
//
// # Available Tools
//
//   - form_load: Load a form and report its metadata and pipeline fingerprint
//   - form_boundaries: Locate the four sample quadrants
//   - form_partition: List the attribute regions of every quadrant
//   - form_region: Return one region as PNG with its ink coverage
//   - form_predict: Rate every region with the configured classifier
//   - form_overlay: Draw quadrants and attribute bands onto the form
//   - form_edges: Show the edge map the geometric detector works from
//   - form_header: Read the printed header with OCR, when available
//
// Every tool runs the same Extractor used by batch sessions, so the region
// an agent inspects is byte-for-byte the region the classifier rates.
//
// Loaded forms are cached by path with a TTL (see DefaultCacheTTL).
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and the Go error string in data.
package server
