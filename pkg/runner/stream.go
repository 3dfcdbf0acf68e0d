package runner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// streamEvent is one line of the CLI's stream-json output. Only the fields
// this tool consumes are declared; everything else is ignored.
type streamEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`

	// type == "assistant"
	Message *assistantMessage `json:"message"`

	// type == "result"
	IsError       bool    `json:"is_error"`
	Result        string  `json:"result"`
	DurationMs    int64   `json:"duration_ms"`
	DurationAPIMs int64   `json:"duration_api_ms"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	NumTurns      int     `json:"num_turns"`
	Usage         *Usage  `json:"usage"`
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

// Usage is the token accounting the CLI reports in its result message.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// streamAccumulator folds stream-json lines into a Result.
type streamAccumulator struct {
	text      strings.Builder
	toolsUsed []string
	toolsSeen map[string]bool
	result    *streamEvent
	sessionID string
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{toolsSeen: map[string]bool{}}
}

// consume parses one output line. Lines that are not valid JSON objects are
// skipped; the CLI occasionally emits blank lines between events.
func (a *streamAccumulator) consume(line []byte) error {
	if len(line) == 0 {
		return nil
	}

	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil
	}

	if ev.SessionID != "" {
		a.sessionID = ev.SessionID
	}

	switch ev.Type {
	case "assistant":
		if ev.Message == nil {
			return nil
		}
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				a.text.WriteString(block.Text)
			case "tool_use":
				if block.Name != "" && !a.toolsSeen[block.Name] {
					a.toolsSeen[block.Name] = true
					a.toolsUsed = append(a.toolsUsed, block.Name)
				}
			}
		}
	case "result":
		a.result = &ev
	}
	return nil
}

// finish materializes the accumulated Result. An output stream with no
// result message means the CLI died mid-run.
func (a *streamAccumulator) finish() (*Result, error) {
	if a.result == nil {
		return nil, fmt.Errorf("output stream ended without a result message")
	}

	text := a.result.Result
	if text == "" {
		text = a.text.String()
	}

	res := &Result{
		Text:          text,
		SessionID:     a.sessionID,
		IsError:       a.result.IsError,
		Subtype:       a.result.Subtype,
		DurationMs:    a.result.DurationMs,
		DurationAPIMs: a.result.DurationAPIMs,
		TotalCostUSD:  a.result.TotalCostUSD,
		NumTurns:      a.result.NumTurns,
		ToolsUsed:     a.toolsUsed,
	}
	if a.result.Usage != nil {
		res.Usage = *a.result.Usage
	}
	return res, nil
}
