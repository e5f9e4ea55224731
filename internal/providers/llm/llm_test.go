package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yoockh/vaihub/internal/models"
)

func TestCheckTurns(t *testing.T) {
	assert.ErrorIs(t, CheckTurns(nil), ErrNoTurns)
	assert.ErrorIs(t, CheckTurns([]models.ChatTurn{
		{Role: models.TurnUser, Content: "hi"},
		{Role: models.TurnAssistant, Content: "hello"},
	}), ErrLastNotUser)
	assert.ErrorIs(t, CheckTurns([]models.ChatTurn{{Role: models.TurnUser, Content: "  "}}), ErrLastNotUser)
	assert.NoError(t, CheckTurns([]models.ChatTurn{{Role: models.TurnUser, Content: "How do I price my services?"}}))
}

func TestGeminiRole(t *testing.T) {
	assert.Equal(t, "model", geminiRole(models.TurnAssistant))
	assert.Equal(t, "user", geminiRole(models.TurnUser))
}
