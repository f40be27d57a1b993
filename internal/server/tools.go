package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// pathProperty is the schema of the form path argument every tool takes.
var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the scanned form image",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "form_load",
			Description: "Load a scanned evaluation form and return its dimensions, format and the fingerprint of the active extraction pipeline. The image is cached for subsequent calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_boundaries",
			Description: "Locate the four sample quadrants of a form. Returns each quadrant's pixel rectangle, the cross point and which strategy produced them (geometric, oracle or default).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_partition",
			Description: "Divide every quadrant into its attribute bands. Returns the unpadded band and padded crop rectangle of each region, plus any attribute skipped because its crop was empty.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_region",
			Description: "Return one attribute region as base64-encoded PNG together with its ink coverage. Use this to look at exactly what the classifier sees.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"sample": map[string]interface{}{
						"type":        "integer",
						"description": "Sample number, 1-4 (top-left, top-right, bottom-left, bottom-right)",
						"minimum":     1,
						"maximum":     4,
					},
					"attribute": map[string]interface{}{
						"type":        "string",
						"description": "Attribute name, e.g. aroma",
					},
					"resized": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the region at the classifier's input size instead of the original crop. Default true",
						"default":     true,
					},
				},
				"required": []string{"path", "sample", "attribute"},
			},
		},
		{
			Name:        "form_predict",
			Description: "Rate every attribute region of a form with the loaded classifier. Ratings are 1-9; without a trained model every rating is the neutral 5 and marked degraded.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_overlay",
			Description: "Draw the detected quadrants and attribute band separators onto the form and return it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_edges",
			Description: "Return the Canny edge map of the preprocessed form as base64-encoded PNG, using the pipeline's thresholds. Shows which lines the geometric boundary detector can see.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_header",
			Description: "Read the printed header of a form (panel, date, panelist) with Tesseract OCR. Only available when OCR is enabled.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
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
