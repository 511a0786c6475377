package ops

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/salawat/internal/contribution"
	"github.com/hpungsan/salawat/internal/errors"
)

// addKeyPrefix keeps operator event ids apart from channel message ids.
const addKeyPrefix = "add:"

// AddInput contains parameters for the Add operation.
type AddInput struct {
	Amount  int64
	EventID string // default: new ULID
}

// AddOutput contains the result of the Add operation.
type AddOutput struct {
	EventID   string `json:"event_id"`
	Amount    int64  `json:"amount"`
	Total     int64  `json:"total"`
	Duplicate bool   `json:"duplicate"`
}

// Add applies a contribution outside of any channel, for operators.
// Repeating an EventID applies nothing and reports Duplicate with the current total.
func (e *Engine) Add(ctx context.Context, input AddInput) (*AddOutput, error) {
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		id, err := generateULID()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		eventID = id
	}

	total, duplicate, err := e.apply(ctx, addKeyPrefix+eventID, input.Amount)
	if err != nil {
		return nil, err
	}
	if duplicate {
		total, err = e.CurrentTotal(ctx)
		if err != nil {
			return nil, err
		}
	}

	return &AddOutput{
		EventID:   eventID,
		Amount:    input.Amount,
		Total:     total,
		Duplicate: duplicate,
	}, nil
}

// ParseAmount parses an operator-supplied amount with the same grammar as channel messages.
func ParseAmount(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, errors.NewInvalidRequest("amount is required")
	}
	n, ok := contribution.Extract(s)
	if !ok {
		return 0, errors.NewInvalidRequest("amount must be a signed integer")
	}
	return n, nil
}

func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
