package adapter

import (
	"encoding/json"
	"testing"

	"kirabridge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadFromJSON(t *testing.T, raw string) Payload {
	t.Helper()
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestSlack_PassThrough(t *testing.T) {
	p := payloadFromJSON(t, `{
		"user": "U123", "user_name": "alice", "channel": "C456", "text": "status?",
		"ts": "1700000000.000100", "thread_ts": "1700000000.000001",
		"files": [{"id": "F1", "url_private": "https://files.slack.com/F1"}, "F2"]
	}`)

	msg, conv, err := NewSlack().Adapt(p, nil)
	require.NoError(t, err)

	assert.Equal(t, "U123", msg.UserID)
	assert.Equal(t, "alice", msg.UserName)
	assert.Equal(t, "C456", msg.ChannelID)
	assert.Equal(t, "1700000000.000001", msg.ThreadID)
	assert.Equal(t, []string{"https://files.slack.com/F1", "F2"}, msg.Attachments)

	assert.Equal(t, domain.ChannelPublic, conv.Channel.ChannelType)
	assert.Equal(t, "C456", conv.Channel.ChannelName)
	assert.Empty(t, conv.Members)
}

func TestSlack_ChannelTypeFromEvent(t *testing.T) {
	p := Payload{"user": "U1", "channel": "D1", "text": "hi", "channel_type": "im"}
	_, conv, err := NewSlack().Adapt(p, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelDirect, conv.Channel.ChannelType)
}

func TestSlack_HintOverridesConversation(t *testing.T) {
	hint := &domain.ConversationContext{
		Channel: domain.ChannelDescriptor{
			ChannelID:   "C456",
			ChannelName: "general",
			ChannelType: domain.ChannelPrivate,
			MemberIDs:   []string{"U1", "U2", "U1"},
		},
		Members: []domain.MemberDescriptor{{UserID: "U1", UserName: "alice"}},
	}
	p := Payload{"user": "U1", "channel": "C456", "text": "hi"}

	_, conv, err := NewSlack().Adapt(p, hint)
	require.NoError(t, err)
	assert.Equal(t, "general", conv.Channel.ChannelName)
	assert.Equal(t, []string{"U1", "U2"}, conv.Channel.MemberIDs)
	assert.Equal(t, SlackTag, conv.SourceTag)
	// the caller's hint is not mutated
	assert.Equal(t, "", hint.SourceTag)
}

func TestSlack_MissingUser(t *testing.T) {
	assert.False(t, NewSlack().Validate(Payload{"channel": "C1", "text": "x"}))
}

func TestDesktop_ThreadAndFiles(t *testing.T) {
	p := desktopPayload()
	p["threadId"] = "thread-9"
	p["files"] = []any{"/tmp/a.png"}

	msg, _, err := NewDesktop(DesktopTag).Adapt(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "thread-9", msg.ThreadID)
	assert.Equal(t, []string{"/tmp/a.png"}, msg.Attachments)
	assert.Equal(t, "thread-9", msg.Wire().ThreadTS)
}

func TestTelegram_Update(t *testing.T) {
	p := payloadFromJSON(t, `{
		"update_id": 10001,
		"message": {
			"message_id": 7,
			"date": 1700000000,
			"text": "what is my task list?",
			"from": {"id": 424242, "is_bot": false, "first_name": "Bob", "username": "bobby"},
			"chat": {"id": -1001234567890, "type": "supergroup", "title": "Team"},
			"photo": [{"file_id": "small", "width": 1, "height": 1}, {"file_id": "large", "width": 9, "height": 9}]
		}
	}`)

	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	msg, conv, err := r.Adapt(p, nil, "")
	require.NoError(t, err)

	assert.Equal(t, TelegramTag, msg.SourceTag)
	assert.Equal(t, "424242", msg.UserID)
	assert.Equal(t, "bobby", msg.UserName)
	assert.Equal(t, "-1001234567890", msg.ChannelID)
	assert.Equal(t, "2023-11-14T22:13:20Z", msg.Timestamp)
	assert.Equal(t, []string{"large"}, msg.Attachments)

	assert.Equal(t, "Team", conv.Channel.ChannelName)
	assert.Equal(t, domain.ChannelPrivate, conv.Channel.ChannelType)
}

func TestTelegram_UpdateWithoutMessage(t *testing.T) {
	p := Payload{"update_id": 1.0}
	err := NewTelegram().Check(p)
	var inv *domain.InvalidMessageError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "message", inv.Field)
}

func TestDiscord_Message(t *testing.T) {
	p := payloadFromJSON(t, `{
		"id": "m1",
		"channel_id": "chan-1",
		"guild_id": "",
		"content": "who is on the team?",
		"timestamp": "2024-05-01T10:00:00Z",
		"author": {"id": "a1", "username": "carol", "global_name": "Carol"},
		"attachments": [{"id": "x", "url": "https://cdn.discordapp.com/x.png"}],
		"message_reference": {"message_id": "m0"}
	}`)

	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	msg, conv, err := r.Adapt(p, nil, "")
	require.NoError(t, err)

	assert.Equal(t, DiscordTag, msg.SourceTag)
	assert.Equal(t, "a1", msg.UserID)
	assert.Equal(t, "Carol", msg.UserName)
	assert.Equal(t, "m0", msg.ThreadID)
	assert.Equal(t, "2024-05-01T10:00:00Z", msg.Timestamp)
	assert.Equal(t, []string{"https://cdn.discordapp.com/x.png"}, msg.Attachments)
	assert.Equal(t, domain.ChannelDirect, conv.Channel.ChannelType)
}

func TestDiscord_MissingAuthor(t *testing.T) {
	assert.False(t, NewDiscord().Validate(Payload{"channel_id": "c", "content": "x"}))
}

// Every accepted payload yields the canonical invariants.
func TestAdapters_CanonicalInvariants(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	payloads := []Payload{
		desktopPayload(),
		{"user": "U1", "channel": "C1", "text": "hello"},
		{"text": "x", "userId": "u", "userName": "", "channelId": "c", "source": WebTag},
	}
	for _, p := range payloads {
		msg, conv, err := r.Adapt(p, nil, "")
		require.NoError(t, err)
		assert.NotEmpty(t, msg.UserID)
		assert.NotEmpty(t, msg.ChannelID)
		assert.NotEmpty(t, msg.Text)
		assert.NotNil(t, msg.Attachments)
		assert.Equal(t, msg.SourceTag, conv.SourceTag)
	}
}
