package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"kirabridge/internal/adapter"
	"kirabridge/internal/domain"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	slackChannelName  = "slack"
	slackMaxMsgLen    = 4000
	slackHistoryLimit = 10
)

// slackAPI is the subset of the Slack Web API the channel uses.
type slackAPI interface {
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	Persona  string // persona applied to every Slack message; empty uses the pipeline default
	Logger   *slog.Logger
}

// Slack implements domain.Channel over Socket Mode. Each message is published
// as a native Slack payload together with the conversation it belongs to.
type Slack struct {
	botToken string
	appToken string
	persona  string
	api      slackAPI
	bus      domain.MessageBus
	botUID   string
	logger   *slog.Logger

	namesMu sync.Mutex
	names   map[string]string // user ID -> display name
}

func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		persona:  cfg.Persona,
		logger:   cfg.Logger,
		names:    make(map[string]string),
	}
}

func (s *Slack) Name() string { return slackChannelName }

// Start connects via Socket Mode and blocks until ctx is done.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.api = api
	s.bus = bus
	s.botUID = auth.UserID
	s.logger.Info("slack bot connected", "user", auth.User, "user_id", auth.UserID)

	bus.OnOutbound(slackChannelName, func(msg domain.OutboundMessage) {
		if msg.Content != "" {
			s.send(context.Background(), msg)
		}
	})

	socket := socketmode.New(api)
	go func() {
		for evt := range socket.Events {
			if evt.Request != nil {
				socket.Ack(*evt.Request)
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				if ev, ok := evt.Data.(slackevents.EventsAPIEvent); ok {
					s.handleEventsAPI(ctx, ev)
				}
			case socketmode.EventTypeConnected:
				s.logger.Info("slack socket mode connected")
			case socketmode.EventTypeConnectionError:
				s.logger.Warn("slack socket mode connection error")
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- socket.RunContext(ctx) }()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) Stop() error { return nil }

func (s *Slack) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.User == "" || ev.User == s.botUID || ev.SubType != "" || ev.BotID != "" {
			return
		}
		// Channel mentions arrive again as app_mention; only DMs are taken here.
		if ev.ChannelType != "im" {
			return
		}
		s.publish(ctx, slackEvent{
			user: ev.User, channel: ev.Channel, channelType: ev.ChannelType,
			text: ev.Text, ts: ev.TimeStamp, threadTS: ev.ThreadTimeStamp,
		})
	case *slackevents.AppMentionEvent:
		if ev.User == "" || ev.User == s.botUID {
			return
		}
		s.publish(ctx, slackEvent{
			user: ev.User, channel: ev.Channel,
			text: stripMention(ev.Text), ts: ev.TimeStamp, threadTS: ev.ThreadTimeStamp,
		})
	}
}

type slackEvent struct {
	user, channel, channelType string
	text, ts, threadTS         string
}

// payload renders the event in the shape of a native Slack message event.
func (e slackEvent) payload(userName string) adapter.Payload {
	p := adapter.Payload{
		"user":    e.user,
		"channel": e.channel,
		"text":    e.text,
		"ts":      e.ts,
	}
	if userName != "" {
		p["user_name"] = userName
	}
	if e.threadTS != "" {
		p["thread_ts"] = e.threadTS
	}
	if e.channelType != "" {
		p["channel_type"] = e.channelType
	}
	return p
}

func (s *Slack) publish(ctx context.Context, e slackEvent) {
	if strings.TrimSpace(e.text) == "" {
		return
	}
	s.logger.Info("slack message received", "user", e.user, "channel", e.channel, "content_len", len(e.text))

	thread := e.threadTS
	if thread == "" {
		thread = e.ts
	}
	err := s.bus.Publish(ctx, domain.InboundMessage{
		ID:        uuid.NewString(),
		Channel:   slackChannelName,
		ChatID:    e.channel,
		ThreadID:  thread,
		SenderID:  e.user,
		Payload:   e.payload(s.userName(ctx, e.user)),
		Hint:      s.conversation(ctx, e),
		SourceTag: adapter.SlackTag,
		Persona:   s.persona,
	})
	if err != nil {
		s.logger.Error("slack publish failed", "channel", e.channel, "err", err)
	}
}

// userName resolves and caches a user's display name. Lookups are best effort.
func (s *Slack) userName(ctx context.Context, userID string) string {
	s.namesMu.Lock()
	name, ok := s.names[userID]
	s.namesMu.Unlock()
	if ok {
		return name
	}

	u, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		s.logger.Debug("slack user lookup failed", "user", userID, "err", err)
		return ""
	}
	name = u.Profile.DisplayName
	if name == "" {
		name = u.RealName
	}
	if name == "" {
		name = u.Name
	}
	s.namesMu.Lock()
	s.names[userID] = name
	s.namesMu.Unlock()
	return name
}

// conversation builds the slack_data for the event from the channel info and
// recent history. It returns nil when the channel cannot be read, letting the
// adapter fall back to a minimal conversation.
func (s *Slack) conversation(ctx context.Context, e slackEvent) *domain.ConversationContext {
	info, err := s.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: e.channel})
	if err != nil {
		s.logger.Debug("slack channel lookup failed", "channel", e.channel, "err", err)
		return nil
	}

	conv := &domain.ConversationContext{
		Channel: domain.ChannelDescriptor{
			ChannelID:   e.channel,
			ChannelName: info.Name,
			ChannelType: slackChannelType(info),
		},
		SourceTag: adapter.SlackTag,
	}
	if conv.Channel.ChannelName == "" {
		conv.Channel.ChannelName = e.channel
	}

	history, err := s.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: e.channel,
		Limit:     slackHistoryLimit,
	})
	if err != nil {
		s.logger.Debug("slack history lookup failed", "channel", e.channel, "err", err)
	}

	var memberIDs []string
	if history != nil {
		// History is newest first; recent messages are kept oldest first.
		for i := len(history.Messages) - 1; i >= 0; i-- {
			m := history.Messages[i]
			msg, err := domain.NewCanonicalMessage(domain.MessageFields{
				UserID:    m.User,
				Text:      m.Text,
				ChannelID: e.channel,
				ThreadID:  m.ThreadTimestamp,
				Timestamp: m.Timestamp,
				SourceTag: adapter.SlackTag,
			})
			if err != nil {
				continue
			}
			conv.RecentMessages = append(conv.RecentMessages, *msg)
			memberIDs = append(memberIDs, m.User)
		}
	}
	memberIDs = append(memberIDs, e.user)

	conv.Channel.MemberIDs = domain.UniqueIDs(memberIDs)
	for _, id := range conv.Channel.MemberIDs {
		name := s.userName(ctx, id)
		conv.Members = append(conv.Members, domain.MemberDescriptor{UserID: id, UserName: name, DisplayName: name})
	}
	return conv
}

func slackChannelType(ch *slack.Channel) domain.ChannelType {
	switch {
	case ch.IsIM:
		return domain.ChannelDirect
	case ch.IsMpIM:
		return domain.ChannelGroupDirect
	case ch.IsPrivate:
		return domain.ChannelPrivate
	}
	return domain.ChannelPublic
}

func (s *Slack) send(ctx context.Context, msg domain.OutboundMessage) {
	for _, chunk := range splitSlackMessage(msg.Content, slackMaxMsgLen) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if msg.ThreadID != "" {
			opts = append(opts, slack.MsgOptionTS(msg.ThreadID))
		}
		if _, _, err := s.api.PostMessageContext(ctx, msg.ChatID, opts...); err != nil {
			s.logger.Error("slack send failed", "channel", msg.ChatID, "err", err)
			return
		}
	}
}

// stripMention removes a leading <@U123> mention.
func stripMention(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<@") {
		if idx := strings.Index(text, ">"); idx >= 0 {
			return strings.TrimSpace(text[idx+1:])
		}
	}
	return text
}

func splitSlackMessage(msg string, maxLen int) []string {
	var chunks []string
	for len(msg) > maxLen {
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return append(chunks, msg)
}
