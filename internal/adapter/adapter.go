// Package adapter converts front-end payloads into the canonical message schema.
package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"kirabridge/internal/domain"
)

// Payload is a decoded front-end JSON object.
type Payload = map[string]any

// Adapter maps one front-end's payload shape to the canonical pair.
// On success the returned message satisfies the CanonicalMessage invariants.
type Adapter interface {
	Name() string
	Validate(p Payload) bool
	Adapt(p Payload, hint *domain.ConversationContext) (*domain.CanonicalMessage, *domain.ConversationContext, error)
}

// Checker is implemented by adapters that can name the field their validation rejects.
type Checker interface {
	Check(p Payload) error
}

// str reads a scalar field as a string. JSON numbers are formatted without exponent.
func str(p Payload, key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// requireStrings checks that every key holds a string value.
func requireStrings(p Payload, source string, keys ...string) error {
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			return &domain.InvalidMessageError{Source: source, Field: k, Reason: "required"}
		}
		if _, isStr := v.(string); !isStr {
			return &domain.InvalidMessageError{Source: source, Field: k, Reason: fmt.Sprintf("expected string, got %T", v)}
		}
	}
	return nil
}

// references extracts attachment references from a list of strings or file objects.
func references(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string{}, ss...)
		}
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch f := it.(type) {
		case string:
			if f != "" {
				out = append(out, f)
			}
		case map[string]any:
			for _, k := range []string{"url_private", "url", "permalink", "id", "name"} {
				if s, ok := str(f, k); ok && s != "" {
					out = append(out, s)
					break
				}
			}
		}
	}
	return out
}

// channelType maps front-end channel type names onto the canonical set.
func channelType(raw string, fallback domain.ChannelType) domain.ChannelType {
	switch strings.ToLower(raw) {
	case "public", "public_channel", "channel":
		return domain.ChannelPublic
	case "private", "private_channel", "group":
		return domain.ChannelPrivate
	case "direct", "dm", "im":
		return domain.ChannelDirect
	case "group_direct", "mpim":
		return domain.ChannelGroupDirect
	}
	return fallback
}

// withSource returns a copy of the hint stamped with tag, or nil.
func withSource(hint *domain.ConversationContext, tag string) *domain.ConversationContext {
	if hint == nil {
		return nil
	}
	conv := *hint
	conv.Channel.MemberIDs = domain.UniqueIDs(hint.Channel.MemberIDs)
	conv.SourceTag = tag
	return &conv
}

// decode round-trips the payload through JSON into a typed platform struct.
func decode(p Payload, v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
