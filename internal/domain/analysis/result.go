// Package analysis defines the typed boundary between raw batch-inference
// output and the rest of the pipeline. Every output line is parsed and
// validated here before it may touch the document store.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RecordKind discriminates the parsed result variant.
type RecordKind string

const (
	// RecordSuccess carries a validated entity extraction.
	RecordSuccess RecordKind = "success"
	// RecordSchemaError marks a line the provider answered but whose payload
	// does not satisfy the result schema. Isolated to its document.
	RecordSchemaError RecordKind = "schema_error"
	// RecordProviderError marks a line the provider itself failed to answer.
	RecordProviderError RecordKind = "provider_error"
)

// ExtractedEntity is one validated entity extraction from a document.
type ExtractedEntity struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	PowerScore float64 `json:"power_score"`
	MoralScore float64 `json:"moral_score"`
	Context    string  `json:"context"`
}

// Record is the validated form of one batch output line. CustomID is always
// populated when the line carried a parseable custom_id, even for error
// variants, so failures can be attributed to their document.
type Record struct {
	Kind     RecordKind
	CustomID uuid.UUID
	Entities []ExtractedEntity
	Reason   string
}

// IsSuccess reports whether the record carries usable extractions.
func (r Record) IsSuccess() bool {
	return r.Kind == RecordSuccess
}

// Wire shapes of the OpenAI batch output line.
type outputLine struct {
	CustomID string          `json:"custom_id"`
	Response *outputResponse `json:"response"`
	Error    *outputError    `json:"error"`
}

type outputResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

type outputError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type completionBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type extractionPayload struct {
	Entities []ExtractedEntity `json:"entities"`
}

// Score bounds enforced at the schema boundary. Kept in sync with the
// entity_mentions check constraints.
const (
	minScore = -2.0
	maxScore = 2.0
)

// ParseRecord validates one JSONL output line into a typed Record. It never
// returns a Go error: unusable lines become SchemaError or ProviderError
// variants so a single malformed record cannot abort batch ingestion.
func ParseRecord(line []byte) Record {
	var raw outputLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{Kind: RecordSchemaError, Reason: fmt.Sprintf("unparseable output line: %v", err)}
	}

	docID, err := uuid.Parse(strings.TrimSpace(raw.CustomID))
	if err != nil {
		return Record{Kind: RecordSchemaError, Reason: fmt.Sprintf("custom_id is not a document ID: %q", raw.CustomID)}
	}

	if raw.Error != nil {
		return Record{
			Kind:     RecordProviderError,
			CustomID: docID,
			Reason:   fmt.Sprintf("provider error %s: %s", raw.Error.Code, raw.Error.Message),
		}
	}

	if raw.Response == nil {
		return schemaError(docID, "output line has neither response nor error")
	}
	if raw.Response.StatusCode != 0 && raw.Response.StatusCode != 200 {
		return Record{
			Kind:     RecordProviderError,
			CustomID: docID,
			Reason:   fmt.Sprintf("provider returned status %d", raw.Response.StatusCode),
		}
	}

	var body completionBody
	if err := json.Unmarshal(raw.Response.Body, &body); err != nil {
		return schemaError(docID, fmt.Sprintf("unparseable response body: %v", err))
	}
	if len(body.Choices) == 0 {
		return schemaError(docID, "response has no choices")
	}

	content := strings.TrimSpace(body.Choices[0].Message.Content)
	content = stripCodeFence(content)
	if content == "" {
		return schemaError(docID, "model returned empty content")
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return schemaError(docID, fmt.Sprintf("model content is not valid extraction JSON: %v", err))
	}

	if reason := validateEntities(payload.Entities); reason != "" {
		return schemaError(docID, reason)
	}

	return Record{Kind: RecordSuccess, CustomID: docID, Entities: payload.Entities}
}

func schemaError(docID uuid.UUID, reason string) Record {
	return Record{Kind: RecordSchemaError, CustomID: docID, Reason: reason}
}

// validateEntities checks the extraction list against the result schema and
// returns a human-readable reason on the first violation.
func validateEntities(entities []ExtractedEntity) string {
	for i, e := range entities {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Sprintf("entity %d has empty name", i)
		}
		if strings.TrimSpace(e.Type) == "" {
			return fmt.Sprintf("entity %q has empty type", e.Name)
		}
		if e.PowerScore < minScore || e.PowerScore > maxScore {
			return fmt.Sprintf("entity %q power_score %.2f out of range", e.Name, e.PowerScore)
		}
		if e.MoralScore < minScore || e.MoralScore > maxScore {
			return fmt.Sprintf("entity %q moral_score %.2f out of range", e.Name, e.MoralScore)
		}
	}
	return ""
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around its JSON answer.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
