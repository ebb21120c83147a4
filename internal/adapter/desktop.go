package adapter

import "kirabridge/internal/domain"

const (
	DesktopTag = "desktop"
	WebTag     = "web"
)

// Desktop maps the camelCase payload sent by the desktop shell and the browser
// chat UI: userId→user_id, userName→user_name, channelId→channel_id,
// timestamp→ts, threadId→thread_ts, files→attachments.
type Desktop struct {
	tag string
}

// NewDesktop returns a field-mapping adapter labelled with tag.
func NewDesktop(tag string) *Desktop { return &Desktop{tag: tag} }

func (d *Desktop) Name() string { return d.tag }

func (d *Desktop) Check(p Payload) error {
	return requireStrings(p, d.tag, "text", "userId", "userName", "channelId")
}

func (d *Desktop) Validate(p Payload) bool { return d.Check(p) == nil }

func (d *Desktop) Adapt(p Payload, hint *domain.ConversationContext) (*domain.CanonicalMessage, *domain.ConversationContext, error) {
	if err := d.Check(p); err != nil {
		return nil, nil, err
	}
	text, _ := str(p, "text")
	userID, _ := str(p, "userId")
	userName, _ := str(p, "userName")
	channelID, _ := str(p, "channelId")
	ts, _ := str(p, "timestamp")
	threadID, _ := str(p, "threadId")

	msg, err := domain.NewCanonicalMessage(domain.MessageFields{
		UserID:      userID,
		UserName:    userName,
		Text:        text,
		ChannelID:   channelID,
		ThreadID:    threadID,
		Timestamp:   ts,
		Attachments: references(p["files"]),
		SourceTag:   d.tag,
	})
	if err != nil {
		return nil, nil, err
	}

	if conv := withSource(hint, d.tag); conv != nil {
		return msg, conv, nil
	}
	// A desktop conversation is the sender talking to the assistant.
	return msg, &domain.ConversationContext{
		Channel: domain.ChannelDescriptor{
			ChannelID:   channelID,
			ChannelName: channelID,
			ChannelType: domain.ChannelDirect,
			MemberIDs:   []string{userID},
		},
		Members: []domain.MemberDescriptor{
			{UserID: userID, UserName: userName, DisplayName: userName},
		},
		SourceTag: d.tag,
	}, nil
}
