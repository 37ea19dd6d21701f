package entity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNamedEntity(t *testing.T) {
	e, err := NewNamedEntity("  Angela Merkel ", "person")
	require.NoError(t, err)

	assert.Equal(t, "Angela Merkel", e.Name(), "name is trimmed")
	assert.Equal(t, "person", e.Type())
	assert.Equal(t, "angela merkel|person", e.CanonicalKey())
}

func TestNewNamedEntity_Validation(t *testing.T) {
	_, err := NewNamedEntity("   ", "person")
	assert.ErrorIs(t, err, ErrEmptyEntityName)

	_, err = NewNamedEntity("Angela Merkel", "")
	assert.ErrorIs(t, err, ErrEmptyEntityType)
}

func TestCanonicalEntityKey(t *testing.T) {
	// Same entity regardless of casing and padding.
	assert.Equal(t,
		CanonicalEntityKey("NATO", "Organization"),
		CanonicalEntityKey("  nato ", "organization"),
	)
	// Type participates in identity.
	assert.NotEqual(t,
		CanonicalEntityKey("Georgia", "country"),
		CanonicalEntityKey("Georgia", "person"),
	)
}

func TestNewEntityMention(t *testing.T) {
	docID, entID := uuid.New(), uuid.New()

	m, err := NewEntityMention(docID, entID, 1.5, -0.5, "Merkel pressed the council to act.")
	require.NoError(t, err)

	assert.Equal(t, docID, m.DocumentID())
	assert.Equal(t, entID, m.EntityID())
	assert.Equal(t, 1.5, m.PowerScore())
	assert.Equal(t, -0.5, m.MoralScore())
	assert.Equal(t, HashMentionContext("Merkel pressed the council to act."), m.ContextHash())
}

func TestNewEntityMention_ScoreBounds(t *testing.T) {
	docID, entID := uuid.New(), uuid.New()

	for _, scores := range [][2]float64{{2.1, 0}, {-2.1, 0}, {0, 2.1}, {0, -2.1}} {
		_, err := NewEntityMention(docID, entID, scores[0], scores[1], "ctx")
		assert.ErrorIs(t, err, ErrScoreOutOfRange)
	}

	// Bounds are inclusive.
	_, err := NewEntityMention(docID, entID, MaxScore, MinScore, "ctx")
	assert.NoError(t, err)
}

func TestHashMentionContext_Deterministic(t *testing.T) {
	a := HashMentionContext("the same sentence")
	b := HashMentionContext("the same sentence")
	c := HashMentionContext("a different sentence")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
