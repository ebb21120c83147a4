package domain

import "strings"

// ChannelType classifies a conversation.
type ChannelType string

const (
	ChannelPublic      ChannelType = "public"
	ChannelPrivate     ChannelType = "private"
	ChannelDirect      ChannelType = "direct"
	ChannelGroupDirect ChannelType = "group_direct"
)

// Valid reports whether t is one of the known channel types.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelPublic, ChannelPrivate, ChannelDirect, ChannelGroupDirect:
		return true
	}
	return false
}

// CanonicalMessage is the interface-independent shape of one inbound chat message.
// UserID, ChannelID and Text are always set on a message produced by NewCanonicalMessage.
type CanonicalMessage struct {
	UserID      string
	UserName    string
	Text        string
	ChannelID   string
	ThreadID    string
	Timestamp   string
	Attachments []string
	SourceTag   string
}

// ChannelDescriptor describes the conversation a message belongs to.
type ChannelDescriptor struct {
	ChannelID   string
	ChannelName string
	ChannelType ChannelType
	MemberIDs   []string // unique
}

// MemberDescriptor describes one participant of a conversation.
type MemberDescriptor struct {
	UserID      string
	UserName    string
	DisplayName string
}

// ConversationContext is the read-only conversation state paired with a message.
type ConversationContext struct {
	Channel        ChannelDescriptor
	Members        []MemberDescriptor
	RecentMessages []CanonicalMessage // most recent last
	SourceTag      string
}

// MessageFields are the values an adapter extracted from a front-end payload,
// before structural validation.
type MessageFields struct {
	UserID      string
	UserName    string
	Text        string
	ChannelID   string
	ThreadID    string
	Timestamp   string
	Attachments []string
	SourceTag   string
}

// NewCanonicalMessage validates extracted fields and builds a CanonicalMessage.
// Only structure is checked; whether the channel or user exists is not.
// A required field holding only whitespace counts as missing.
func NewCanonicalMessage(f MessageFields) (*CanonicalMessage, error) {
	if strings.TrimSpace(f.UserID) == "" {
		return nil, &InvalidMessageError{Field: "user_id", Reason: "required"}
	}
	if strings.TrimSpace(f.ChannelID) == "" {
		return nil, &InvalidMessageError{Field: "channel_id", Reason: "required"}
	}
	if strings.TrimSpace(f.Text) == "" {
		return nil, &InvalidMessageError{Field: "text", Reason: "required"}
	}
	attachments := f.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return &CanonicalMessage{
		UserID:      f.UserID,
		UserName:    f.UserName,
		Text:        f.Text,
		ChannelID:   f.ChannelID,
		ThreadID:    f.ThreadID,
		Timestamp:   f.Timestamp,
		Attachments: attachments,
		SourceTag:   f.SourceTag,
	}, nil
}

// Validate re-checks the canonical invariants of an already built message.
func (m *CanonicalMessage) Validate() error {
	if m == nil {
		return &InvalidMessageError{Field: "message", Reason: "missing"}
	}
	_, err := NewCanonicalMessage(MessageFields{UserID: m.UserID, ChannelID: m.ChannelID, Text: m.Text})
	return err
}

// UniqueIDs returns ids with duplicates and empty values removed, preserving first occurrence.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
