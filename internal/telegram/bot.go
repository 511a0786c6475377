package telegram

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/salawat/internal/contribution"
	"github.com/hpungsan/salawat/internal/errors"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second

	// ackTimeout bounds the offset confirmation sent on shutdown.
	ackTimeout = 5 * time.Second

	// defaultShutdownGrace is how long in-flight updates may run after Run's ctx ends.
	defaultShutdownGrace = 10 * time.Second
)

// Engine is the part of ops.Engine the bot drives.
type Engine interface {
	Handle(ctx context.Context, ev contribution.Event) (*contribution.Confirmation, error)
	CurrentTotal(ctx context.Context) (int64, error)
}

// Bot long-polls for messages and routes them to the engine.
type Bot struct {
	client      *Client
	engine      Engine
	logger      *zap.Logger
	workers     int
	pollTimeout time.Duration
	grace       time.Duration
	username    string
}

type BotOption func(b *Bot)

func WithLogger(l *zap.Logger) BotOption {
	return BotOption(func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	})
}

// WithWorkers limits how many updates of one batch are handled at once.
func WithWorkers(n int) BotOption {
	return BotOption(func(b *Bot) {
		if n > 0 {
			b.workers = n
		}
	})
}

func WithPollTimeout(d time.Duration) BotOption {
	return BotOption(func(b *Bot) {
		if d >= 0 {
			b.pollTimeout = d
		}
	})
}

// WithShutdownGrace bounds how long handlers already running may continue
// once Run's context is cancelled.
func WithShutdownGrace(d time.Duration) BotOption {
	return BotOption(func(b *Bot) {
		if d >= 0 {
			b.grace = d
		}
	})
}

func NewBot(client *Client, engine Engine, opts ...BotOption) *Bot {
	b := &Bot{
		client:      client,
		engine:      engine,
		logger:      zap.NewNop(),
		workers:     8,
		pollTimeout: 30 * time.Second,
		grace:       defaultShutdownGrace,
	}
	for _, o := range opts {
		o(b)
	}
	b.logger = b.logger.With(zap.String("component", "telegram"))
	return b
}

// Run polls until ctx is cancelled. It fails only if the token is rejected at startup.
//
// The poll offset advances past an update only once it has been handled. An
// update whose contribution failed in a retryable way holds the offset, so
// Telegram delivers it again together with the rest of its batch; updates that
// were already applied are then absorbed by the engine's idempotency markers.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return err
	}
	b.username = me.Username
	b.logger.Info("bot started", zap.String("username", me.Username))

	// Handlers outlive ctx by the shutdown grace so in-flight contributions can finish.
	work, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stopGrace := context.AfterFunc(ctx, func() { time.AfterFunc(b.grace, cancelWork) })
	defer stopGrace()

	var (
		offset  int64
		backoff = minBackoff
	)
	defer func() {
		if offset != 0 {
			b.ack(offset)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := b.client.GetUpdates(ctx, UpdatesRequest{
			Offset:         offset,
			Timeout:        int(b.pollTimeout / time.Second),
			AllowedUpdates: []string{"message"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := backoff
			var apiErr *APIError
			if stderrors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			b.logger.Warn("getUpdates failed", zap.Duration("retry_in", wait), zap.Error(err))
			if !sleep(ctx, wait) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if len(updates) == 0 {
			backoff = minBackoff
			continue
		}
		offset = b.dispatch(work, updates)
		if offset > updates[len(updates)-1].UpdateID {
			backoff = minBackoff
			continue
		}

		b.logger.Warn("update not applied, waiting for redelivery",
			zap.Int64("update_id", offset),
			zap.Duration("retry_in", backoff),
		)
		if !sleep(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// dispatch handles every update of a batch and waits for all of them.
// It returns the offset to poll from next: the first update that must be
// retried, or the one after the batch.
func (b *Bot) dispatch(ctx context.Context, updates []Update) int64 {
	var (
		mu     sync.Mutex
		failed bool
		first  int64
	)

	var g errgroup.Group
	g.SetLimit(b.workers)
	for _, u := range updates {
		g.Go(func() error {
			if err := b.handleUpdate(ctx, u); err != nil {
				mu.Lock()
				if !failed || u.UpdateID < first {
					failed, first = true, u.UpdateID
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed {
		return first
	}
	return updates[len(updates)-1].UpdateID + 1
}

// handleUpdate returns an error only when the update must be delivered again.
func (b *Bot) handleUpdate(ctx context.Context, u Update) error {
	msg := u.Message
	if msg == nil || msg.Text == "" {
		return nil
	}

	if name, ok := b.command(msg.Text); ok {
		if name == "total" {
			b.replyTotal(ctx, msg)
		}
		return nil
	}

	conf, err := b.engine.Handle(ctx, msg.Event())
	if err != nil {
		// Failures are logged by the engine; nothing was applied.
		if retryable(err) {
			return err
		}
		return nil
	}
	if conf == nil {
		return nil
	}
	if err := b.client.SendMessage(ctx, msg.Chat.ID, conf.Text(), 0); err != nil {
		b.logger.Warn("failed to send confirmation",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int64("message_id", msg.MessageID),
			zap.Int64("new_total", conf.NewTotal),
			zap.Error(err),
		)
	}
	return nil
}

// retryable reports whether a redelivery of the same update could succeed.
// An overflowing amount never will.
func retryable(err error) bool {
	return !errors.Is(err, errors.ErrOverflow) && !errors.Is(err, errors.ErrInvalidRequest)
}

func (b *Bot) replyTotal(ctx context.Context, msg *Message) {
	total, err := b.engine.CurrentTotal(ctx)
	if err != nil {
		b.logger.Error("failed to read total", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		return
	}
	if err := b.client.SendMessage(ctx, msg.Chat.ID, contribution.TotalReply(total), msg.MessageID); err != nil {
		b.logger.Warn("failed to send total", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

// command returns the lower-cased command name of text if it starts with one
// addressed to this bot. "/total@otherbot" is a command, but not ours.
func (b *Bot) command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := strings.Fields(text)[0][1:]
	name, target, addressed := strings.Cut(word, "@")
	if addressed && !strings.EqualFold(target, b.username) {
		return "", true
	}
	return strings.ToLower(name), true
}

// ack confirms everything below offset so a restart does not replay handled updates.
func (b *Bot) ack(offset int64) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	if _, err := b.client.GetUpdates(ctx, UpdatesRequest{Offset: offset, Limit: 1, Timeout: 0}); err != nil {
		b.logger.Warn("failed to confirm last batch", zap.Int64("offset", offset), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
