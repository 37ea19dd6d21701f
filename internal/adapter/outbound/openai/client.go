// Package openai implements the BatchInferenceClient port against the OpenAI
// Batch API: JSONL file upload, batch creation, status polling, and output
// download.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/domain/valueobject"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultTimeout = 60 * time.Second
)

// ClientConfig configures the batch inference client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client talks to the OpenAI Batch API. It holds no pipeline state; every
// method is a stateless HTTP exchange and retry policy lives at the call site.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates a batch inference client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// SubmitBatch uploads the requests as one JSONL file and opens a batch over
// it. A partial failure (file uploaded, batch creation failed) leaves only an
// orphaned provider file, never pipeline state.
func (c *Client) SubmitBatch(ctx context.Context, requests []outbound.BatchRequest) (*outbound.ProviderBatch, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("cannot submit an empty batch")
	}

	input, err := encodeBatchInput(requests, c.model)
	if err != nil {
		return nil, err
	}

	file, err := c.uploadFile(ctx, input)
	if err != nil {
		return nil, err
	}

	slogger.Debug(ctx, "Uploaded batch input file", slogger.Fields{
		"file_id":  file.ID,
		"requests": len(requests),
		"bytes":    len(input),
	})

	batch, err := c.createBatch(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	return toProviderBatch(batch)
}

// GetBatch polls the current provider status of a batch.
func (c *Client) GetBatch(ctx context.Context, batchRef string) (*outbound.ProviderBatch, error) {
	var batch batchResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/batches/"+url.PathEscape(batchRef), nil, &batch); err != nil {
		return nil, err
	}
	return toProviderBatch(&batch)
}

// ListBatches pages through provider-side batches, newest first. The returned
// cursor is empty once the listing is exhausted.
func (c *Client) ListBatches(ctx context.Context, after string, limit int) ([]*outbound.ProviderBatch, string, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		q.Set("after", after)
	}

	path := "/v1/batches"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var list batchListResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, "", err
	}

	batches := make([]*outbound.ProviderBatch, 0, len(list.Data))
	for _, raw := range list.Data {
		batch, err := toProviderBatch(raw)
		if err != nil {
			return nil, "", err
		}
		batches = append(batches, batch)
	}

	cursor := ""
	if list.HasMore {
		cursor = list.LastID
	}
	return batches, cursor, nil
}

// DownloadOutput streams the JSONL output artifact of a completed batch.
func (c *Client) DownloadOutput(ctx context.Context, outputFileID string) (io.ReadCloser, error) {
	if outputFileID == "" {
		return nil, fmt.Errorf("output file ID is required")
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(outputFileID)+"/content", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, networkError("download output", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	return resp.Body, nil
}

// uploadFile posts the JSONL body as a multipart file with purpose=batch.
func (c *Client) uploadFile(ctx context.Context, content []byte) (*fileResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("purpose", filePurpose); err != nil {
		return nil, fmt.Errorf("failed to write purpose field: %w", err)
	}
	part, err := writer.CreateFormFile("file", "batch_input.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/files", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var file fileResponse
	if err := c.send(req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) createBatch(ctx context.Context, inputFileID string) (*batchResponse, error) {
	payload := createBatchRequest{
		InputFileID:      inputFileID,
		Endpoint:         completionsEndpoint,
		CompletionWindow: completionWindow,
	}

	var batch batchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/batches", payload, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// doJSON performs a JSON-in/JSON-out exchange against the API.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkError(req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &outbound.ProviderError{
			StatusCode: resp.StatusCode,
			Code:       "invalid_response",
			Message:    fmt.Sprintf("failed to decode response from %s: %v", req.URL.Path, err),
		}
	}
	return nil
}

// readAPIError converts a non-2xx response into a typed ProviderError.
// Rate limits and server-side failures are marked retryable.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var envelope apiError
	message := string(body)
	code := ""
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
		code = envelope.Error.Code
		if code == "" {
			code = envelope.Error.Type
		}
	}

	return &outbound.ProviderError{
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    message,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
	}
}

func networkError(operation string, err error) error {
	return &outbound.ProviderError{
		Code:      "network_error",
		Message:   fmt.Sprintf("%s: %v", operation, err),
		Retryable: true,
	}
}

// toProviderBatch maps the wire batch onto the port type, rejecting statuses
// outside the documented set.
func toProviderBatch(raw *batchResponse) (*outbound.ProviderBatch, error) {
	status, err := valueobject.NewBatchStatus(raw.Status)
	if err != nil {
		return nil, &outbound.ProviderError{
			Code:    "unknown_status",
			Message: fmt.Sprintf("batch %s reported unknown status %q", raw.ID, raw.Status),
		}
	}

	return &outbound.ProviderBatch{
		BatchRef:     raw.ID,
		Status:       status,
		InputFileID:  raw.InputFileID,
		OutputFileID: raw.OutputFileID,
		CreatedAt:    unixTime(raw.CreatedAt),
	}, nil
}
