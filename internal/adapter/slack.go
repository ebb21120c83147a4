package adapter

import "kirabridge/internal/domain"

const SlackTag = "slack"

// Slack passes native Slack event payloads through. The conversation comes from
// the hint when the caller already fetched it, otherwise a minimal public channel
// is assumed.
type Slack struct{}

func NewSlack() *Slack { return &Slack{} }

func (s *Slack) Name() string { return SlackTag }

func (s *Slack) Check(p Payload) error {
	return requireStrings(p, SlackTag, "user", "channel")
}

func (s *Slack) Validate(p Payload) bool { return s.Check(p) == nil }

func (s *Slack) Adapt(p Payload, hint *domain.ConversationContext) (*domain.CanonicalMessage, *domain.ConversationContext, error) {
	if err := s.Check(p); err != nil {
		return nil, nil, err
	}
	user, _ := str(p, "user")
	channel, _ := str(p, "channel")
	text, _ := str(p, "text")
	userName, _ := str(p, "user_name")
	ts, _ := str(p, "ts")
	threadTS, _ := str(p, "thread_ts")

	msg, err := domain.NewCanonicalMessage(domain.MessageFields{
		UserID:      user,
		UserName:    userName,
		Text:        text,
		ChannelID:   channel,
		ThreadID:    threadTS,
		Timestamp:   ts,
		Attachments: references(p["files"]),
		SourceTag:   SlackTag,
	})
	if err != nil {
		return nil, nil, err
	}

	if conv := withSource(hint, SlackTag); conv != nil {
		return msg, conv, nil
	}
	rawType, _ := str(p, "channel_type")
	return msg, &domain.ConversationContext{
		Channel: domain.ChannelDescriptor{
			ChannelID:   channel,
			ChannelName: channel,
			ChannelType: channelType(rawType, domain.ChannelPublic),
			MemberIDs:   []string{},
		},
		Members:   []domain.MemberDescriptor{},
		SourceTag: SlackTag,
	}, nil
}
