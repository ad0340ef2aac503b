package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JobTypeSummarize marks AI summary jobs. Tool jobs use the tool name as their type.
const JobTypeSummarize = "ai-summarize"

var (
	ErrInvalidPayload = errors.New("invalid job payload")
	ErrForbiddenInput = errors.New("input path is not owned by the caller")
)

// Payload is the job payload stored with every job record
type Payload struct {
	InputPaths []string       `json:"input_paths"`
	Params     map[string]any `json:"params,omitempty"`
	OutputName string         `json:"output_name,omitempty"`
	Prompt     string         `json:"prompt,omitempty"`
}

// Job is the unit of work the runner executes
type Job struct {
	ID      string
	UserID  string
	Type    string
	Payload Payload
}

// Result is what a run produced. It is stored as the job result, except for URL
// which is signed per request.
type Result struct {
	OutputPath  string `json:"output_path"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	Filename    string `json:"filename"`
	Text        string `json:"text,omitempty"`
	Model       string `json:"model,omitempty"`
	TokenCount  int    `json:"token_count,omitempty"`
	URL         string `json:"-"`
}

func ParsePayload(raw string) (Payload, error) {
	var p Payload
	if strings.TrimSpace(raw) == "" {
		return p, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}

// ParseResult decodes a stored job result
func ParseResult(raw string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &r, nil
}
