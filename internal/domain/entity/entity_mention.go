package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Score bounds for power and moral dimensions.
const (
	MinScore = -2.0
	MaxScore = 2.0
)

var (
	ErrEmptyEntityName = errors.New("entity name cannot be empty")
	ErrEmptyEntityType = errors.New("entity type cannot be empty")
	ErrScoreOutOfRange = errors.New("score must be between -2 and 2")
)

// NamedEntity is an actor extracted from documents, deduplicated by its
// canonical key so the same entity accumulates mentions across documents.
type NamedEntity struct {
	id        uuid.UUID
	name      string
	entType   string
	createdAt time.Time
}

// CanonicalEntityKey normalizes an entity (name, type) pair for
// case-insensitive deduplication.
func CanonicalEntityKey(name, entType string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(entType))
}

// NewNamedEntity creates a new named entity.
func NewNamedEntity(name, entType string) (*NamedEntity, error) {
	name = strings.TrimSpace(name)
	entType = strings.TrimSpace(entType)
	if name == "" {
		return nil, ErrEmptyEntityName
	}
	if entType == "" {
		return nil, ErrEmptyEntityType
	}

	return &NamedEntity{
		id:        uuid.New(),
		name:      name,
		entType:   entType,
		createdAt: time.Now(),
	}, nil
}

// RestoreNamedEntity creates a NamedEntity from stored data.
func RestoreNamedEntity(id uuid.UUID, name, entType string, createdAt time.Time) *NamedEntity {
	return &NamedEntity{
		id:        id,
		name:      name,
		entType:   entType,
		createdAt: createdAt,
	}
}

// ID returns the entity ID.
func (e *NamedEntity) ID() uuid.UUID {
	return e.id
}

// Name returns the entity name as first extracted.
func (e *NamedEntity) Name() string {
	return e.name
}

// Type returns the entity type (person, organization, country, ...).
func (e *NamedEntity) Type() string {
	return e.entType
}

// CreatedAt returns the creation timestamp.
func (e *NamedEntity) CreatedAt() time.Time {
	return e.createdAt
}

// CanonicalKey returns the dedup key for this entity.
func (e *NamedEntity) CanonicalKey() string {
	return CanonicalEntityKey(e.name, e.entType)
}

// EntityMention is one scored appearance of an entity in one document.
// Mentions are immutable once written; the (document, entity, context hash)
// triple makes re-ingestion of the same batch output a no-op.
type EntityMention struct {
	documentID  uuid.UUID
	entityID    uuid.UUID
	powerScore  float64
	moralScore  float64
	context     string
	contextHash string
}

// HashMentionContext derives the dedup hash for a mention's context snippet.
func HashMentionContext(context string) string {
	sum := sha256.Sum256([]byte(context))
	return hex.EncodeToString(sum[:])
}

// NewEntityMention creates a mention after validating score bounds.
func NewEntityMention(documentID, entityID uuid.UUID, powerScore, moralScore float64, context string) (*EntityMention, error) {
	if powerScore < MinScore || powerScore > MaxScore {
		return nil, ErrScoreOutOfRange
	}
	if moralScore < MinScore || moralScore > MaxScore {
		return nil, ErrScoreOutOfRange
	}

	return &EntityMention{
		documentID:  documentID,
		entityID:    entityID,
		powerScore:  powerScore,
		moralScore:  moralScore,
		context:     context,
		contextHash: HashMentionContext(context),
	}, nil
}

// RestoreEntityMention creates an EntityMention from stored data.
func RestoreEntityMention(
	documentID, entityID uuid.UUID,
	powerScore, moralScore float64,
	context, contextHash string,
) *EntityMention {
	return &EntityMention{
		documentID:  documentID,
		entityID:    entityID,
		powerScore:  powerScore,
		moralScore:  moralScore,
		context:     context,
		contextHash: contextHash,
	}
}

// DocumentID returns the owning document ID.
func (m *EntityMention) DocumentID() uuid.UUID {
	return m.documentID
}

// EntityID returns the mentioned entity ID.
func (m *EntityMention) EntityID() uuid.UUID {
	return m.entityID
}

// PowerScore returns the power dimension score in [-2, 2].
func (m *EntityMention) PowerScore() float64 {
	return m.powerScore
}

// MoralScore returns the moral dimension score in [-2, 2].
func (m *EntityMention) MoralScore() float64 {
	return m.moralScore
}

// Context returns the sentence fragment the mention was scored from.
func (m *EntityMention) Context() string {
	return m.context
}

// ContextHash returns the dedup hash of the context.
func (m *EntityMention) ContextHash() string {
	return m.contextHash
}
