package adapter

import (
	"time"

	"kirabridge/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const DiscordTag = "discord"

// Discord maps gateway MESSAGE_CREATE payloads.
type Discord struct{}

func NewDiscord() *Discord { return &Discord{} }

func (d *Discord) Name() string { return DiscordTag }

func (d *Discord) Check(p Payload) error {
	if err := requireStrings(p, DiscordTag, "channel_id"); err != nil {
		return err
	}
	if _, ok := p["author"].(map[string]any); !ok {
		return &domain.InvalidMessageError{Source: DiscordTag, Field: "author", Reason: "required"}
	}
	return nil
}

func (d *Discord) Validate(p Payload) bool { return d.Check(p) == nil }

func (d *Discord) Adapt(p Payload, hint *domain.ConversationContext) (*domain.CanonicalMessage, *domain.ConversationContext, error) {
	if err := d.Check(p); err != nil {
		return nil, nil, err
	}
	var m discordgo.Message
	if err := decode(p, &m); err != nil {
		return nil, nil, &domain.InvalidMessageError{Source: DiscordTag, Field: "message", Reason: err.Error()}
	}
	if m.Author == nil {
		return nil, nil, &domain.InvalidMessageError{Source: DiscordTag, Field: "author", Reason: "required"}
	}

	userName := m.Author.GlobalName
	if userName == "" {
		userName = m.Author.Username
	}
	var threadID string
	if m.MessageReference != nil {
		threadID = m.MessageReference.MessageID
	}
	var ts string
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.UTC().Format(time.RFC3339)
	}
	files := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if a != nil && a.URL != "" {
			files = append(files, a.URL)
		}
	}

	msg, err := domain.NewCanonicalMessage(domain.MessageFields{
		UserID:      m.Author.ID,
		UserName:    userName,
		Text:        m.Content,
		ChannelID:   m.ChannelID,
		ThreadID:    threadID,
		Timestamp:   ts,
		Attachments: files,
		SourceTag:   DiscordTag,
	})
	if err != nil {
		return nil, nil, err
	}

	if conv := withSource(hint, DiscordTag); conv != nil {
		return msg, conv, nil
	}
	ct := domain.ChannelPublic
	if m.GuildID == "" {
		ct = domain.ChannelDirect
	}
	display := userName
	if m.Member != nil && m.Member.Nick != "" {
		display = m.Member.Nick
	}
	return msg, &domain.ConversationContext{
		Channel: domain.ChannelDescriptor{
			ChannelID:   m.ChannelID,
			ChannelName: m.ChannelID,
			ChannelType: ct,
			MemberIDs:   []string{m.Author.ID},
		},
		Members:   []domain.MemberDescriptor{{UserID: m.Author.ID, UserName: m.Author.Username, DisplayName: display}},
		SourceTag: DiscordTag,
	}, nil
}
