package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/vaihub/internal/models"
)

type Provider interface {
	// Complete answers the last user turn given the earlier ones.
	Complete(ctx context.Context, system string, turns []models.ChatTurn) (string, error)
	// Stream returns a stream of text chunks (incremental).
	Stream(ctx context.Context, system string, turns []models.ChatTurn) (chunks <-chan string, errs <-chan error)
	Close() error
}

var (
	ErrNoTurns       = errors.New("llm: at least one turn is required")
	ErrLastNotUser   = errors.New("llm: last turn must come from the user")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// CheckTurns is the precondition every provider enforces.
func CheckTurns(turns []models.ChatTurn) error {
	if len(turns) == 0 {
		return ErrNoTurns
	}
	last := turns[len(turns)-1]
	if last.Role != models.TurnUser || strings.TrimSpace(last.Content) == "" {
		return ErrLastNotUser
	}
	return nil
}
