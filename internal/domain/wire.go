package domain

// MessageData is the wire form of a CanonicalMessage ("message_data").
// The pairs user/user_id, user_text/text, ts/message_ts and channel/channel_id
// carry the same value; downstream consumers read either name.
type MessageData struct {
	User      string   `json:"user"`
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	UserText  string   `json:"user_text"`
	Text      string   `json:"text"`
	ChannelID string   `json:"channel_id"`
	Channel   string   `json:"channel"`
	TS        string   `json:"ts"`
	MessageTS string   `json:"message_ts"`
	ThreadTS  string   `json:"thread_ts,omitempty"`
	Files     []string `json:"files,omitempty"`
	Source    string   `json:"source"`
}

// ChannelData is the wire form of a ChannelDescriptor.
type ChannelData struct {
	ChannelID   string   `json:"channel_id"`
	ChannelName string   `json:"channel_name"`
	ChannelType string   `json:"channel_type"`
	Members     []string `json:"members"`
}

// MemberData is the wire form of a MemberDescriptor.
type MemberData struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	DisplayName string `json:"display_name,omitempty"`
}

// SlackData is the wire form of a ConversationContext ("slack_data").
type SlackData struct {
	Channel        ChannelData   `json:"channel"`
	Members        []MemberData  `json:"members"`
	RecentMessages []MessageData `json:"recent_messages"`
	Source         string        `json:"source"`
}

// Wire encodes the message with all alias fields populated.
func (m *CanonicalMessage) Wire() MessageData {
	return MessageData{
		User:      m.UserID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		UserText:  m.Text,
		Text:      m.Text,
		ChannelID: m.ChannelID,
		Channel:   m.ChannelID,
		TS:        m.Timestamp,
		MessageTS: m.Timestamp,
		ThreadTS:  m.ThreadID,
		Files:     m.Attachments,
		Source:    m.SourceTag,
	}
}

// Wire encodes the conversation context.
func (c *ConversationContext) Wire() SlackData {
	members := make([]MemberData, 0, len(c.Members))
	for _, mb := range c.Members {
		members = append(members, MemberData{UserID: mb.UserID, UserName: mb.UserName, DisplayName: mb.DisplayName})
	}
	recent := make([]MessageData, 0, len(c.RecentMessages))
	for i := range c.RecentMessages {
		recent = append(recent, c.RecentMessages[i].Wire())
	}
	memberIDs := c.Channel.MemberIDs
	if memberIDs == nil {
		memberIDs = []string{}
	}
	return SlackData{
		Channel: ChannelData{
			ChannelID:   c.Channel.ChannelID,
			ChannelName: c.Channel.ChannelName,
			ChannelType: string(c.Channel.ChannelType),
			Members:     memberIDs,
		},
		Members:        members,
		RecentMessages: recent,
		Source:         c.SourceTag,
	}
}

// Conversation decodes a wire conversation. Recent messages that fail
// validation are dropped rather than carried forward half-formed.
func (d SlackData) Conversation() *ConversationContext {
	members := make([]MemberDescriptor, 0, len(d.Members))
	for _, mb := range d.Members {
		members = append(members, MemberDescriptor{UserID: mb.UserID, UserName: mb.UserName, DisplayName: mb.DisplayName})
	}
	var recent []CanonicalMessage
	for _, md := range d.RecentMessages {
		msg, err := md.Canonical()
		if err != nil {
			continue
		}
		recent = append(recent, *msg)
	}
	ct := ChannelType(d.Channel.ChannelType)
	if !ct.Valid() {
		ct = ChannelPublic
	}
	return &ConversationContext{
		Channel: ChannelDescriptor{
			ChannelID:   d.Channel.ChannelID,
			ChannelName: d.Channel.ChannelName,
			ChannelType: ct,
			MemberIDs:   UniqueIDs(d.Channel.Members),
		},
		Members:        members,
		RecentMessages: recent,
		SourceTag:      d.Source,
	}
}

// Canonical decodes a wire message, preferring the primary field of each alias pair.
func (d MessageData) Canonical() (*CanonicalMessage, error) {
	return NewCanonicalMessage(MessageFields{
		UserID:      firstNonEmpty(d.UserID, d.User),
		UserName:    d.UserName,
		Text:        firstNonEmpty(d.Text, d.UserText),
		ChannelID:   firstNonEmpty(d.ChannelID, d.Channel),
		ThreadID:    d.ThreadTS,
		Timestamp:   firstNonEmpty(d.TS, d.MessageTS),
		Attachments: d.Files,
		SourceTag:   d.Source,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
