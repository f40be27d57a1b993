package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/detection"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/imaging"
	"github.com/ironsheep/formscan/internal/ocr"
	"github.com/ironsheep/formscan/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "form_load", "form_predict").
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
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
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
	case "form_load":
		return s.handleFormLoad(args)
	case "form_boundaries":
		return s.handleFormBoundaries(ctx, args)
	case "form_partition":
		return s.handleFormPartition(ctx, args)
	case "form_region":
		return s.handleFormRegion(ctx, args)
	case "form_predict":
		return s.handleFormPredict(ctx, args)
	case "form_overlay":
		return s.handleFormOverlay(ctx, args)
	case "form_edges":
		return s.handleFormEdges(ctx, args)
	case "form_header":
		return s.handleFormHeader(ctx, args)
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
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

type pathArgs struct {
	Path string `json:"path"`
}

func parsePath(args json.RawMessage) (string, error) {
	var p pathArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if p.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	return p.Path, nil
}

// extract loads path through the cache and runs the shared pipeline on it.
func (s *Server) extract(ctx context.Context, args json.RawMessage) (*pipeline.Extraction, error) {
	path, err := parsePath(args)
	if err != nil {
		return nil, err
	}
	raw, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(ctx, raw)
}

// FormInfo is the result of form_load.
type FormInfo struct {
	*imaging.ImageInfo
	Path        string `json:"path"`
	Pipeline    string `json:"pipeline_version"`
	Fingerprint string `json:"pipeline_fingerprint"`
}

func (s *Server) handleFormLoad(args json.RawMessage) (interface{}, error) {
	path, err := parsePath(args)
	if err != nil {
		return nil, err
	}
	raw, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	p := s.extractor.Config()
	return &FormInfo{
		ImageInfo:   imaging.Info(raw),
		Path:        path,
		Pipeline:    p.Version,
		Fingerprint: p.Fingerprint(),
	}, nil
}

func (s *Server) handleFormBoundaries(ctx context.Context, args json.RawMessage) (interface{}, error) {
	ex, err := s.extract(ctx, args)
	if err != nil {
		return nil, err
	}
	return ex.Boundaries, nil
}

// RegionInfo describes one region without its pixels.
type RegionInfo struct {
	Sample    form.SampleID   `json:"sample"`
	Attribute string          `json:"attribute"`
	Band      image.Rectangle `json:"band"`
	Rect      image.Rectangle `json:"rect"`
}

// PartitionResult is the result of form_partition.
type PartitionResult struct {
	Source  boundary.Source `json:"boundary_source"`
	Regions []RegionInfo    `json:"regions"`
	Empty   []RegionInfo    `json:"empty,omitempty"`
}

func (s *Server) handleFormPartition(ctx context.Context, args json.RawMessage) (interface{}, error) {
	ex, err := s.extract(ctx, args)
	if err != nil {
		return nil, err
	}
	res := &PartitionResult{Source: ex.Boundaries.Source, Regions: make([]RegionInfo, 0, len(ex.Regions))}
	for _, r := range ex.Regions {
		res.Regions = append(res.Regions, RegionInfo{
			Sample:    r.SampleID,
			Attribute: r.Attribute.Name,
			Band:      r.Band,
			Rect:      r.Rect,
		})
	}
	for _, w := range ex.Warnings {
		res.Empty = append(res.Empty, RegionInfo{Sample: w.SampleID, Attribute: w.Attribute.Name, Rect: w.Rect})
	}
	return res, nil
}

// RegionImage is the result of form_region.
type RegionImage struct {
	*imaging.EncodedImage
	Sample    form.SampleID       `json:"sample"`
	Attribute string              `json:"attribute"`
	Rect      image.Rectangle     `json:"rect"`
	Ink       detection.InkReport `json:"ink"`
}

func (s *Server) handleFormRegion(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var p struct {
		Path      string `json:"path"`
		Sample    int    `json:"sample"`
		Attribute string `json:"attribute"`
		Resized   *bool  `json:"resized"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if !form.SampleID(p.Sample).Valid() {
		return nil, fmt.Errorf("sample must be 1-%d, got %d", form.SampleCount, p.Sample)
	}
	resized := p.Resized == nil || *p.Resized

	ex, err := s.extract(ctx, args)
	if err != nil {
		return nil, err
	}
	for _, r := range ex.Regions {
		if int(r.SampleID) != p.Sample || r.Attribute.Name != p.Attribute {
			continue
		}
		img := r.Crop
		if resized {
			img = r.Image
		}
		enc, err := imaging.EncodePNG(img)
		if err != nil {
			return nil, err
		}
		return &RegionImage{
			EncodedImage: enc,
			Sample:       r.SampleID,
			Attribute:    r.Attribute.Name,
			Rect:         r.Rect,
			Ink:          detection.AnalyzeInk(r.Crop, 0),
		}, nil
	}
	for _, w := range ex.Warnings {
		if int(w.SampleID) == p.Sample && w.Attribute.Name == p.Attribute {
			return nil, w
		}
	}
	return nil, fmt.Errorf("no attribute %q on this form", p.Attribute)
}

// Rating is one entry of form_predict.
type Rating struct {
	Sample    form.SampleID `json:"sample"`
	Attribute string        `json:"attribute"`
	Rating    form.Rating   `json:"rating"`
	Degraded  bool          `json:"degraded"`
	Reason    string        `json:"reason,omitempty"`
}

// PredictResult is the result of form_predict.
type PredictResult struct {
	Classifier string   `json:"classifier"`
	Ratings    []Rating `json:"ratings"`
	Empty      []string `json:"empty,omitempty"`
}

func (s *Server) handleFormPredict(ctx context.Context, args json.RawMessage) (interface{}, error) {
	ex, err := s.extract(ctx, args)
	if err != nil {
		return nil, err
	}
	res := &PredictResult{Classifier: s.classifier.Name(), Ratings: make([]Rating, 0, len(ex.Regions))}
	for _, r := range ex.Regions {
		pred, err := s.classifier.Predict(ctx, r.Image)
		if err != nil {
			return nil, err
		}
		res.Ratings = append(res.Ratings, Rating{
			Sample:    r.SampleID,
			Attribute: r.Attribute.Name,
			Rating:    pred.Rating,
			Degraded:  pred.Degraded,
			Reason:    pred.Reason,
		})
	}
	for _, w := range ex.Warnings {
		res.Empty = append(res.Empty, fmt.Sprintf("sample %d %s", w.SampleID, w.Attribute.Name))
	}
	return res, nil
}

func (s *Server) handleFormOverlay(ctx context.Context, args json.RawMessage) (interface{}, error) {
	ex, err := s.extract(ctx, args)
	if err != nil {
		return nil, err
	}
	return imaging.OverlayPNG(ex.Raw.Image, s.extractor.Partitioner().Overlay(ex.Boundaries))
}

// handleFormEdges returns the Canny edge map the geometric detector sees,
// computed on the preprocessed form with the pipeline's thresholds.
func (s *Server) handleFormEdges(ctx context.Context, args json.RawMessage) (interface{}, error) {
	ex, err := s.extract(ctx, args)
	if err != nil {
		return nil, err
	}
	d := s.extractor.Config().Detection
	return imaging.EdgeDetect(ex.Processed, d.CannyLow, d.CannyHigh)
}

func (s *Server) handleFormHeader(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if s.ocr == nil {
		return nil, ocr.ErrUnavailable
	}
	path, err := parsePath(args)
	if err != nil {
		return nil, err
	}
	raw, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return s.ocr.ReadHeader(ctx, raw.Image)
}
