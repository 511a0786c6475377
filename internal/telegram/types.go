package telegram

import (
	"strconv"

	"github.com/hpungsan/salawat/internal/contribution"
)

// Update is one entry of a getUpdates result. Only message updates are requested.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Event converts m into the transport-neutral event handled by the engine.
func (m *Message) Event() contribution.Event {
	ev := contribution.Event{
		EventID:      strconv.FormatInt(m.MessageID, 10),
		ChannelID:    strconv.FormatInt(m.Chat.ID, 10),
		ChannelTitle: m.Chat.Title,
		ChannelKind:  contribution.ChannelKind(m.Chat.Type),
		Text:         m.Text,
	}
	if m.From != nil {
		ev.SenderID = strconv.FormatInt(m.From.ID, 10)
		ev.SenderHandle = m.From.Username
		ev.SenderGivenName = m.From.FirstName
	}
	return ev
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse[T any] struct {
	OK          bool                `json:"ok"`
	Result      T                   `json:"result"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

type responseParameters struct {
	RetryAfter int `json:"retry_after"`
}
