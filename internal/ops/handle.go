package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/salawat/internal/contribution"
	"github.com/hpungsan/salawat/internal/errors"
	"github.com/hpungsan/salawat/internal/metrics"
)

// Handle processes one inbound event.
//
// It returns (nil, nil) when the event is not a contribution: it came from a
// non-group or non-allowed channel, its text is not a pure integer, or it was
// already applied. A non-nil Confirmation means the amount is durable.
func (e *Engine) Handle(ctx context.Context, ev contribution.Event) (*contribution.Confirmation, error) {
	if !ev.ChannelKind.IsGroup() || !e.cfg.ChannelAllowed(ev.ChannelID) {
		e.metrics.Skipped(metrics.SkipRouting)
		return nil, nil
	}

	amount, ok := contribution.Extract(ev.Text)
	if !ok {
		e.metrics.Skipped(metrics.SkipParse)
		return nil, nil
	}

	total, duplicate, err := e.apply(ctx, ev.Key(), amount)
	if err != nil {
		e.logger.Error("failed to apply contribution",
			zap.String("channel_id", ev.ChannelID),
			zap.String("event_id", ev.EventID),
			zap.Int64("amount", amount),
			zap.String("code", string(errors.CodeOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	if duplicate {
		e.metrics.Skipped(metrics.SkipDuplicate)
		e.logger.Debug("duplicate event skipped",
			zap.String("channel_id", ev.ChannelID),
			zap.String("event_id", ev.EventID),
		)
		return nil, nil
	}

	return &contribution.Confirmation{
		ContributorLabel: contribution.ContributorLabel(ev.SenderHandle, ev.SenderGivenName, e.cfg.ContributorPlaceholder),
		ChannelLabel:     contribution.ChannelLabel(ev.ChannelTitle, e.cfg.ChannelPlaceholder),
		Amount:           amount,
		NewTotal:         total,
	}, nil
}
