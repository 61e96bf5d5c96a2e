package session

import (
	"context"
	"errors"

	"github.com/hupe1980/agentdesk/core"
)

// ErrEmptySessionID is returned when a session id is blank.
var ErrEmptySessionID = errors.New("session: id is required")

// Store is an append-only message log keyed by session id.
//
// Implementations must be safe for concurrent use. Messages returns the
// messages of a session in append order; an unknown session yields an empty
// slice, not an error.
type Store interface {
	Append(ctx context.Context, sessionID string, msgs ...core.Message) error
	Messages(ctx context.Context, sessionID string) ([]core.Message, error)
	Sessions(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, sessionID string) error
}

// Load returns the history of sessionID as a State.
func Load(ctx context.Context, s Store, sessionID string) (core.State, error) {
	msgs, err := s.Messages(ctx, sessionID)
	if err != nil {
		return core.State{}, err
	}
	return core.NewState(msgs...), nil
}
