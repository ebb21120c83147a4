package adapter

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"kirabridge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingObserver struct {
	events []string
}

func (o *countingObserver) ObserveAdapt(tag, outcome string) {
	o.events = append(o.events, tag+":"+outcome)
}

// brokenAdapter accepts everything and returns a message without a channel.
type brokenAdapter struct{}

func (brokenAdapter) Name() string            { return "broken" }
func (brokenAdapter) Validate(p Payload) bool { return true }
func (brokenAdapter) Adapt(p Payload, hint *domain.ConversationContext) (*domain.CanonicalMessage, *domain.ConversationContext, error) {
	return &domain.CanonicalMessage{UserID: "u", Text: "hi"}, nil, nil
}

func desktopPayload() Payload {
	return Payload{
		"text":      "Hello, KIRA!",
		"userId":    "user-123",
		"userName":  "Test User",
		"channelId": "channel-456",
		"timestamp": "T",
	}
}

func TestRouter_DesktopFieldMapping(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})

	msg, conv, err := r.Adapt(desktopPayload(), nil, DesktopTag)
	require.NoError(t, err)

	assert.Equal(t, "user-123", msg.UserID)
	assert.Equal(t, "Test User", msg.UserName)
	assert.Equal(t, "channel-456", msg.ChannelID)
	assert.Equal(t, "Hello, KIRA!", msg.Text)
	assert.Equal(t, DesktopTag, msg.SourceTag)
	assert.Empty(t, msg.Attachments)

	wire := msg.Wire()
	assert.Equal(t, "T", wire.TS)
	assert.Equal(t, "T", wire.MessageTS)
	assert.Equal(t, "channel-456", wire.Channel)
	assert.Equal(t, "Hello, KIRA!", wire.UserText)

	assert.Equal(t, domain.ChannelDirect, conv.Channel.ChannelType)
	assert.Equal(t, []string{"user-123"}, conv.Channel.MemberIDs)
	require.Len(t, conv.Members, 1)
	assert.Equal(t, "Test User", conv.Members[0].DisplayName)
	assert.Equal(t, DesktopTag, conv.SourceTag)
}

func TestRouter_UnknownTag(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})

	_, _, err := r.Adapt(desktopPayload(), nil, "unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAdapterNotFound))

	var nf *domain.AdapterNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "unknown", nf.Tag)
}

func TestRouter_NoAdapterAcceptsPayload(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})

	_, _, err := r.Adapt(Payload{"foo": "bar"}, nil, "")
	assert.ErrorIs(t, err, domain.ErrAdapterNotFound)
}

func TestRouter_InvalidPayloadNamesField(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	p := desktopPayload()
	delete(p, "channelId")

	_, _, err := r.Adapt(p, nil, DesktopTag)
	require.ErrorIs(t, err, domain.ErrInvalidMessage)

	var inv *domain.InvalidMessageError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "channelId", inv.Field)
}

func TestRouter_WrongFieldType(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	p := desktopPayload()
	p["userId"] = 42.0

	_, _, err := r.Adapt(p, nil, DesktopTag)
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestRouter_EmptyTextRejected(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	p := desktopPayload()
	p["text"] = ""

	_, _, err := r.Adapt(p, nil, DesktopTag)
	var inv *domain.InvalidMessageError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "text", inv.Field)
}

func TestRouter_DetectByProbeOrder(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})

	tag, ok := r.Detect(desktopPayload())
	require.True(t, ok)
	// desktop and web accept the same shape; the earlier registration wins.
	assert.Equal(t, DesktopTag, tag)

	tag, ok = r.Detect(Payload{"user": "U1", "channel": "C1", "text": "hi", "ts": "1.0"})
	require.True(t, ok)
	assert.Equal(t, SlackTag, tag)
}

func TestRouter_DetectSourceMarker(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	p := desktopPayload()
	p["source"] = WebTag

	msg, _, err := r.Adapt(p, nil, "")
	require.NoError(t, err)
	assert.Equal(t, WebTag, msg.SourceTag)

	// An unregistered marker falls back to probing.
	p["source"] = "electron"
	tag, ok := r.Detect(p)
	require.True(t, ok)
	assert.Equal(t, DesktopTag, tag)
}

func TestRouter_RegisterReplacesInPlace(t *testing.T) {
	r := NewDefaultRouter(RouterConfig{Logger: testLogger()})
	before := r.Tags()

	r.Register(SlackTag, NewSlack())
	assert.Equal(t, before, r.Tags())

	r.Register("custom", NewDesktop("custom"))
	assert.Equal(t, append(before, "custom"), r.Tags())
}

func TestRouter_RejectsBrokenAdapterOutput(t *testing.T) {
	obs := &countingObserver{}
	r := NewRouter(RouterConfig{Logger: testLogger(), Observer: obs})
	r.Register("broken", brokenAdapter{})

	_, _, err := r.Adapt(Payload{}, nil, "broken")
	var inv *domain.InvalidMessageError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "channel_id", inv.Field)
	assert.Equal(t, []string{"broken:invalid"}, obs.events)
}

func TestRouter_ObserverOutcomes(t *testing.T) {
	obs := &countingObserver{}
	r := NewDefaultRouter(RouterConfig{Logger: testLogger(), Observer: obs})

	_, _, _ = r.Adapt(desktopPayload(), nil, "")
	_, _, _ = r.Adapt(desktopPayload(), nil, "nope")

	assert.Equal(t, []string{"desktop:ok", "nope:not_found"}, obs.events)
}
