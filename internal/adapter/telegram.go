package adapter

import (
	"strconv"
	"time"

	"kirabridge/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const TelegramTag = "telegram"

// Telegram maps Bot API updates (the JSON body of a webhook or getUpdates entry).
type Telegram struct{}

func NewTelegram() *Telegram { return &Telegram{} }

func (t *Telegram) Name() string { return TelegramTag }

func (t *Telegram) Check(p Payload) error {
	if _, ok := p["update_id"]; !ok {
		return &domain.InvalidMessageError{Source: TelegramTag, Field: "update_id", Reason: "required"}
	}
	_, err := t.message(p)
	return err
}

func (t *Telegram) Validate(p Payload) bool { return t.Check(p) == nil }

func (t *Telegram) message(p Payload) (*tgbotapi.Message, error) {
	var update tgbotapi.Update
	if err := decode(p, &update); err != nil {
		return nil, &domain.InvalidMessageError{Source: TelegramTag, Field: "update", Reason: err.Error()}
	}
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return nil, &domain.InvalidMessageError{Source: TelegramTag, Field: "message", Reason: "required"}
	}
	if msg.Chat == nil {
		return nil, &domain.InvalidMessageError{Source: TelegramTag, Field: "message.chat", Reason: "required"}
	}
	if msg.From == nil && msg.SenderChat == nil {
		return nil, &domain.InvalidMessageError{Source: TelegramTag, Field: "message.from", Reason: "required"}
	}
	return msg, nil
}

func (t *Telegram) Adapt(p Payload, hint *domain.ConversationContext) (*domain.CanonicalMessage, *domain.ConversationContext, error) {
	if err := t.Check(p); err != nil {
		return nil, nil, err
	}
	m, _ := t.message(p)

	var userID, userName string
	if m.From != nil {
		userID = strconv.FormatInt(m.From.ID, 10)
		userName = m.From.String()
	} else {
		userID = strconv.FormatInt(m.SenderChat.ID, 10)
		userName = m.SenderChat.Title
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	var threadID string
	if m.ReplyToMessage != nil {
		threadID = strconv.Itoa(m.ReplyToMessage.MessageID)
	}

	msg, err := domain.NewCanonicalMessage(domain.MessageFields{
		UserID:      userID,
		UserName:    userName,
		Text:        text,
		ChannelID:   chatID,
		ThreadID:    threadID,
		Timestamp:   time.Unix(int64(m.Date), 0).UTC().Format(time.RFC3339),
		Attachments: telegramFiles(m),
		SourceTag:   TelegramTag,
	})
	if err != nil {
		return nil, nil, err
	}

	if conv := withSource(hint, TelegramTag); conv != nil {
		return msg, conv, nil
	}
	name := m.Chat.Title
	if name == "" {
		name = m.Chat.UserName
	}
	if name == "" {
		name = chatID
	}
	return msg, &domain.ConversationContext{
		Channel: domain.ChannelDescriptor{
			ChannelID:   chatID,
			ChannelName: name,
			ChannelType: telegramChatType(m.Chat),
			MemberIDs:   []string{userID},
		},
		Members:   []domain.MemberDescriptor{{UserID: userID, UserName: userName, DisplayName: userName}},
		SourceTag: TelegramTag,
	}, nil
}

func telegramChatType(c *tgbotapi.Chat) domain.ChannelType {
	switch {
	case c.IsPrivate():
		return domain.ChannelDirect
	case c.IsGroup():
		return domain.ChannelGroupDirect
	case c.IsSuperGroup():
		return domain.ChannelPrivate
	}
	return domain.ChannelPublic
}

// telegramFiles returns Bot API file IDs. Only the largest photo size is kept.
func telegramFiles(m *tgbotapi.Message) []string {
	files := []string{}
	if n := len(m.Photo); n > 0 {
		files = append(files, m.Photo[n-1].FileID)
	}
	if m.Document != nil {
		files = append(files, m.Document.FileID)
	}
	if m.Voice != nil {
		files = append(files, m.Voice.FileID)
	}
	if m.Audio != nil {
		files = append(files, m.Audio.FileID)
	}
	if m.Video != nil {
		files = append(files, m.Video.FileID)
	}
	return files
}
