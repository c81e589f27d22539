package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datachat-ai/datachat/core"
)

// DataContext describes the table the query targets: the cached metadata
// plus a few sample rows, enough for the model to plan an operation without
// seeing the full dataset.
type DataContext struct {
	Meta   core.FileMeta    `json:"meta"`
	Sample []map[string]any `json:"sample"`
}

// Request is the normalized input to a model adapter.
type Request struct {
	Query   string
	History []core.ConversationEntry
	Data    *DataContext
}

// Response is the analysis plan produced by the model. Operation, when
// present, is the raw operation descriptor to be validated and executed;
// the remaining fields are presentation hints passed through to the caller.
type Response struct {
	Answer           string          `json:"answer"`
	Operation        json.RawMessage `json:"data_operation,omitempty"`
	DataType         string          `json:"data_type,omitempty"`
	SuggestedVizType string          `json:"suggested_viz_type,omitempty"`
	CodeSnippet      string          `json:"code_snippet,omitempty"`
	Suggestions      []string        `json:"suggestions,omitempty"`
}

// Model is the collaborator contract: a query plus context in, an analysis
// plan out. Implementations must be safe for concurrent use.
type Model interface {
	Analyze(ctx context.Context, req Request) (*Response, error)
}

// SystemPrompt renders the instruction prompt shared by the provider
// adapters. It embeds the data context and pins the JSON response shape the
// adapters decode.
func SystemPrompt(data *DataContext) string {
	var b strings.Builder
	b.WriteString("You are a data analysis assistant. Answer the user's question about their dataset\n")
	b.WriteString("and, when a transformation is needed, plan it as a structured operation.\n\n")
	if data != nil {
		info, _ := json.Marshal(struct {
			Columns []core.ColumnInfo `json:"columns"`
			Rows    int               `json:"row_count"`
			Sample  []map[string]any  `json:"sample"`
		}{data.Meta.Columns, data.Meta.RowCount, data.Sample})
		fmt.Fprintf(&b, "Dataset info: %s\n\n", info)
	}
	b.WriteString(`Respond with a single JSON object of this shape:
{
  "answer": "explanation of the analysis",
  "data_operation": {
    "type": "aggregation|filter|sort|statistical",
    "method": "for statistical: correlation|describe",
    "columns": ["columns involved"],
    "target_columns": ["aggregation targets"],
    "agg_func": "mean|sum|count|min|max",
    "ascending": true,
    "predicate": "for filter: e.g. sales > 10 AND region == 'EU'"
  },
  "data_type": "table|series|aggregation",
  "suggested_viz_type": "suggested chart type",
  "suggestions": ["follow-up analysis ideas"]
}
Omit "data_operation" when the question needs no data transformation.`)
	return b.String()
}

// DecodeResponse parses the model's reply. Replies that are not valid JSON
// degrade to a plain answer instead of failing, since a conversational model
// can always fall out of the structured format.
func DecodeResponse(text string) *Response {
	text = strings.TrimSpace(text)
	// Models occasionally wrap JSON in a markdown fence.
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err == nil && resp.Answer != "" {
		return &resp
	}
	return &Response{Answer: text}
}

// HistoryAnswer extracts the display answer from a stored conversation
// response payload, falling back to the raw text when the payload is not the
// structured shape.
func HistoryAnswer(raw json.RawMessage) string {
	var partial struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &partial); err == nil && partial.Answer != "" {
		return partial.Answer
	}
	return string(raw)
}
