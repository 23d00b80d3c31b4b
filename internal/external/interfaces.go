package external

import (
	"context"

	"upkeep/internal/types"
)

// EmailProvider delivers one rendered plain-text email and returns the
// provider's message ID.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}
