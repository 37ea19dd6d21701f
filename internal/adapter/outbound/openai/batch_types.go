package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"
)

const (
	completionsEndpoint = "/v1/chat/completions"
	completionWindow    = "24h"
	filePurpose         = "batch"
)

// systemPrompt instructs the model to emit the extraction schema the ingestor
// validates against. Keep the field names in sync with analysis.ExtractedEntity.
const systemPrompt = `You are a media analysis system. Extract every named entity ` +
	`(person, organization, country, group) from the news article and score how ` +
	`the article portrays each one on two dimensions: power_score (-2 very weak ` +
	`to +2 very powerful) and moral_score (-2 villainous to +2 virtuous). ` +
	`Respond with JSON only, no prose, in the form: ` +
	`{"entities":[{"name":"...","type":"...","power_score":0.0,"moral_score":0.0,"context":"sentence the judgment is based on"}]}`

// chatMessage is one message in a chat completion request body.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the body of one batched /v1/chat/completions call.
type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// batchInputLine is one line of the uploaded JSONL input file.
type batchInputLine struct {
	CustomID string            `json:"custom_id"`
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Body     completionRequest `json:"body"`
}

// fileResponse is the provider's answer to a file upload.
type fileResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Bytes   int64  `json:"bytes"`
	Purpose string `json:"purpose"`
}

// batchResponse is the provider's representation of a batch, shared by
// create, get, and list calls.
type batchResponse struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	Status        string `json:"status"`
	InputFileID   string `json:"input_file_id"`
	OutputFileID  string `json:"output_file_id"`
	ErrorFileID   string `json:"error_file_id"`
	CreatedAt     int64  `json:"created_at"`
	CompletedAt   int64  `json:"completed_at"`
	RequestCounts struct {
		Total     int `json:"total"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"request_counts"`
}

// batchListResponse is the paginated /v1/batches listing.
type batchListResponse struct {
	Object  string           `json:"object"`
	Data    []*batchResponse `json:"data"`
	HasMore bool             `json:"has_more"`
	LastID  string           `json:"last_id"`
}

// createBatchRequest opens a batch over an uploaded input file.
type createBatchRequest struct {
	InputFileID      string `json:"input_file_id"`
	Endpoint         string `json:"endpoint"`
	CompletionWindow string `json:"completion_window"`
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// encodeBatchInput renders the per-document requests as the JSONL input file
// body. Each document ID becomes the line's custom_id correlation key.
func encodeBatchInput(requests []outbound.BatchRequest, model string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, req := range requests {
		line := batchInputLine{
			CustomID: req.DocumentID.String(),
			Method:   "POST",
			URL:      completionsEndpoint,
			Body: completionRequest{
				Model: model,
				Messages: []chatMessage{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: req.Text},
				},
			},
		}
		// Encode appends the newline, giving one request per line.
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("failed to encode batch input line for %s: %w", req.DocumentID, err)
		}
	}
	return buf.Bytes(), nil
}

func unixTime(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
