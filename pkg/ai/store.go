package ai

import (
	"context"
	"errors"
)

// DefaultSessionID 是未指定会话时使用的会话 ID。
const DefaultSessionID = "abc123"

// ErrSessionID 表示会话 ID 非法。
var ErrSessionID = errors.New("invalid session id")

// SessionStore manages per-session transcripts.
type SessionStore interface {
	// GetOrCreate returns the transcript for sessionID, creating an empty one on first use.
	GetOrCreate(ctx context.Context, sessionID string) (*Transcript, error)

	// Sessions lists the known session IDs.
	Sessions(ctx context.Context) ([]string, error)

	// ResetAll removes every session.
	ResetAll(ctx context.Context) error
}
