package sim

import (
	"time"

	"github.com/google/uuid"
)

// CommandType enumerates the requests other goroutines can queue for the
// loop owner.
type CommandType string

const (
	CommandResetWorld  CommandType = "ResetWorld"
	CommandShareAnchor CommandType = "ShareAnchor"
)

// Command represents a request captured for processing on the next fixed tick.
type Command struct {
	Type     CommandType `json:"type"`
	Origin   string      `json:"origin,omitempty"`
	IssuedAt time.Time   `json:"issuedAt"`
	Anchor   uuid.UUID   `json:"anchor,omitempty"`
}
