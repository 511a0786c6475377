package contribution

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Placeholder labels used when the transport supplies no display name.
const (
	DefaultContributorLabel = "Someone"
	DefaultChannelLabel     = "Group Salawat"
)

// ChannelKind is the kind of conversation an event originates from.
type ChannelKind string

const (
	ChannelPrivate    ChannelKind = "private"
	ChannelGroup      ChannelKind = "group"
	ChannelSupergroup ChannelKind = "supergroup"
	ChannelBroadcast  ChannelKind = "channel"
)

// IsGroup reports whether participants of k share the running total.
func (k ChannelKind) IsGroup() bool {
	return k == ChannelGroup || k == ChannelSupergroup
}

// Event is one inbound text message as delivered by the transport.
// Optional fields are empty strings when absent.
type Event struct {
	EventID         string
	ChannelID       string
	ChannelTitle    string
	ChannelKind     ChannelKind
	SenderID        string
	SenderHandle    string
	SenderGivenName string
	Text            string
}

// Key identifies the event for idempotency tracking. Empty when the event has no id.
func (e Event) Key() string {
	if e.EventID == "" {
		return ""
	}
	return e.ChannelID + ":" + e.EventID
}

// Confirmation is produced for every contribution that was durably applied.
type Confirmation struct {
	ContributorLabel string `json:"contributor_label"`
	ChannelLabel     string `json:"channel_label"`
	Amount           int64  `json:"amount"`
	NewTotal         int64  `json:"new_total"`
}

// Text renders the confirmation as posted back to the channel.
func (c Confirmation) Text() string {
	return fmt.Sprintf("%s added %d to %s\n%s", c.ContributorLabel, c.Amount, c.ChannelLabel, TotalReply(c.NewTotal))
}

// TotalReply renders the reply to a total query.
func TotalReply(total int64) string {
	return fmt.Sprintf("Total count: %d", total)
}

// ContributorLabel picks the first non-blank of handle, givenName, placeholder.
func ContributorLabel(handle, givenName, placeholder string) string {
	label, _ := lo.Coalesce(strings.TrimSpace(handle), strings.TrimSpace(givenName), placeholder)
	return label
}

// ChannelLabel returns the channel title, or placeholder when it has none.
func ChannelLabel(title, placeholder string) string {
	label, _ := lo.Coalesce(strings.TrimSpace(title), placeholder)
	return label
}
