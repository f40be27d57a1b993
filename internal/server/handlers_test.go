package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ironsheep/formscan/internal/boundary"
)

// callTool runs a tools/call request and decodes the text content into out.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, out interface{}) *MCPResponse {
	t.Helper()

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, _ := json.Marshal(params)

	resp := s.handleToolsCall(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleToolsCall returned nil")
	}
	if resp.Error != nil || out == nil {
		return resp
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	if len(content) != 1 || content[0]["type"] != "text" {
		t.Fatalf("unexpected content: %v", content)
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), out); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
	return resp
}

func TestHandleToolsCall_FormLoad(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	var info struct {
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		Format      string `json:"format"`
		Path        string `json:"path"`
		Fingerprint string `json:"pipeline_fingerprint"`
	}
	resp := callTool(t, s, "form_load", map[string]interface{}{"path": path}, &info)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	if info.Width != 600 || info.Height != 480 {
		t.Errorf("dimensions: got %dx%d, want 600x480", info.Width, info.Height)
	}
	if info.Path != path {
		t.Errorf("path: got %s, want %s", info.Path, path)
	}
	if info.Fingerprint != s.extractor.Config().Fingerprint() {
		t.Errorf("fingerprint mismatch: %s", info.Fingerprint)
	}
	if s.cache.Len() != 1 {
		t.Errorf("cache should hold the form, has %d", s.cache.Len())
	}
}

func TestHandleToolsCall_FormBoundaries(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	var set boundary.Set
	resp := callTool(t, s, "form_boundaries", map[string]interface{}{"path": path}, &set)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if set.Source == "" {
		t.Error("boundary source should be set")
	}
}

func TestHandleToolsCall_FormPartition(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	var res PartitionResult
	resp := callTool(t, s, "form_partition", map[string]interface{}{"path": path}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if len(res.Regions) != 20 {
		t.Fatalf("got %d regions, want 20", len(res.Regions))
	}
	for _, r := range res.Regions {
		if !r.Band.In(r.Rect) {
			t.Errorf("%d %s: band %v not inside padded rect %v", r.Sample, r.Attribute, r.Band, r.Rect)
		}
	}
}

func TestHandleToolsCall_FormRegion(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)
	regions := s.extractor.Config().Regions

	tests := []struct {
		name    string
		resized interface{}
		check   func(t *testing.T, img RegionImage)
	}{
		{"default resized", nil, func(t *testing.T, img RegionImage) {
			if img.Width != regions.TargetWidth || img.Height != regions.TargetHeight {
				t.Errorf("got %dx%d, want %dx%d", img.Width, img.Height, regions.TargetWidth, regions.TargetHeight)
			}
		}},
		{"raw crop", false, func(t *testing.T, img RegionImage) {
			if img.Width != img.Rect.Dx() || img.Height != img.Rect.Dy() {
				t.Errorf("got %dx%d, want crop %v", img.Width, img.Height, img.Rect)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]interface{}{"path": path, "sample": 2, "attribute": "aroma"}
			if tt.resized != nil {
				args["resized"] = tt.resized
			}
			var img RegionImage
			resp := callTool(t, s, "form_region", args, &img)
			if resp.Error != nil {
				t.Fatalf("Unexpected error: %v", resp.Error)
			}
			if img.MimeType != "image/png" {
				t.Errorf("mime type: got %s", img.MimeType)
			}
			if _, err := base64.StdEncoding.DecodeString(img.ImageBase64); err != nil {
				t.Errorf("invalid base64: %v", err)
			}
			if img.Sample != 2 || img.Attribute != "aroma" {
				t.Errorf("got sample %d %s", img.Sample, img.Attribute)
			}
			tt.check(t, img)
		})
	}
}

func TestHandleToolsCall_FormRegionErrors(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"sample out of range", map[string]interface{}{"path": path, "sample": 5, "attribute": "aroma"}, "sample must be"},
		{"unknown attribute", map[string]interface{}{"path": path, "sample": 1, "attribute": "colour"}, "no attribute"},
		{"missing path", map[string]interface{}{"sample": 1, "attribute": "aroma"}, "path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, s, "form_region", tt.args, nil)
			if resp.Error == nil {
				t.Fatal("expected error")
			}
			if resp.Error.Code != -32000 {
				t.Errorf("code: got %d, want -32000", resp.Error.Code)
			}
			if !strings.Contains(resp.Error.Data.(string), tt.want) {
				t.Errorf("data %q should contain %q", resp.Error.Data, tt.want)
			}
		})
	}
}

func TestHandleToolsCall_FormPredict(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	var res PredictResult
	resp := callTool(t, s, "form_predict", map[string]interface{}{"path": path}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Classifier != "placeholder" {
		t.Errorf("classifier: got %s", res.Classifier)
	}
	if len(res.Ratings) != 20 {
		t.Fatalf("got %d ratings, want 20", len(res.Ratings))
	}
	for _, r := range res.Ratings {
		if !r.Degraded {
			t.Errorf("%d %s: placeholder rating must be degraded", r.Sample, r.Attribute)
		}
	}
}

func TestHandleToolsCall_FormOverlay(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	var res struct {
		Width  int `json:"width"`
		Height int `json:"height"`
		Boxes  int `json:"boxes"`
	}
	resp := callTool(t, s, "form_overlay", map[string]interface{}{"path": path}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Width != 600 || res.Height != 480 {
		t.Errorf("overlay size: got %dx%d", res.Width, res.Height)
	}
	if res.Boxes != 4 {
		t.Errorf("boxes: got %d, want 4", res.Boxes)
	}
}

func TestHandleToolsCall_FormEdges(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	var res struct {
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		ImageBase64 string `json:"image_base64"`
	}
	resp := callTool(t, s, "form_edges", map[string]interface{}{"path": path}, &res)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if res.Width != 600 || res.Height != 480 {
		t.Errorf("edge map size: got %dx%d, want 600x480", res.Width, res.Height)
	}
	if res.ImageBase64 == "" {
		t.Error("edge map should not be empty")
	}
}

func TestHandleToolsCall_FormHeaderWithoutOCR(t *testing.T) {
	s := newTestServer(t, nil)
	path := createTestForm(t)

	resp := callTool(t, s, "form_header", map[string]interface{}{"path": path}, nil)
	if resp.Error == nil {
		t.Fatal("expected error without an OCR reader")
	}
	if !strings.Contains(resp.Error.Data.(string), "ocr unavailable") {
		t.Errorf("data: got %v", resp.Error.Data)
	}
}

func TestHandleToolsCall_NonExistentFile(t *testing.T) {
	s := newTestServer(t, nil)

	for _, name := range expectedTools {
		t.Run(name, func(t *testing.T) {
			args := map[string]interface{}{"path": "/nonexistent/form.png", "sample": 1, "attribute": "aroma"}
			resp := callTool(t, s, name, args, nil)
			if resp.Error == nil {
				t.Error("expected error for missing file")
			}
		})
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.handleToolsCall(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Params:  json.RawMessage(`{invalid`),
	})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("got %+v, want -32602", resp.Error)
	}
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := s.executeTool(context.Background(), "image_crop", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("got %v, want unknown tool error", err)
	}
}
