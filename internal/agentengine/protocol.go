package agentengine

// Chunk is the outer envelope every newline-delimited JSON line decodes
// into; Type dispatches to the shape-specific fields (spec §4.6).
type Chunk struct {
	Type    string          `json:"type"`
	Message AssistantMessage `json:"message"`
	ResultChunk
}

// AssistantMessage is the `message` field of an `assistant` chunk.
type AssistantMessage struct {
	Content []ContentItem `json:"content"`
}

// ContentItem is one entry of an assistant message's content array: either
// a tool_use invocation or a text delta.
type ContentItem struct {
	Type  string         `json:"type"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
	Text  string         `json:"text,omitempty"`
}

// ResultChunk is the terminal `type: result` chunk's payload, also reused
// as the shape of a flat `--output-format json` response.
type ResultChunk struct {
	IsError              bool                  `json:"is_error"`
	Result               string                `json:"result"`
	SessionID            string                `json:"session_id"`
	TotalCostUSD         float64               `json:"total_cost_usd"`
	DurationMs           int64                 `json:"duration_ms"`
	DurationAPIMs        int64                 `json:"duration_api_ms"`
	NumTurns             int                   `json:"num_turns"`
	Usage                Usage                 `json:"usage"`
	ModelUsage           map[string]RawModelUse `json:"modelUsage"`
}

// Usage is the result chunk's `usage` block.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// RawModelUse is one entry of the result chunk's `modelUsage` map, in the
// CLI's own camelCase field names.
type RawModelUse struct {
	CostUSD      float64 `json:"costUSD"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
}

// TextEvent is delivered to an on-event callback for each streamed text
// delta within an assistant chunk.
type TextEvent struct {
	Text string
}

// ToolUseEvent is delivered to an on-event callback whenever the assistant
// invokes a tool, carrying enough of the tool's input to log a one-line
// progress summary (spec §4.6: "tool-use events drive progress logging").
type ToolUseEvent struct {
	Name  string
	Input map[string]any
}
