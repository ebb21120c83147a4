package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kirabridge/internal/adapter"
	"kirabridge/internal/agent"
	"kirabridge/internal/domain"
)

// Defaults applied to chat API requests that omit the sender or channel.
const (
	defaultWebUserID    = "web-user-001"
	defaultWebUserName  = "Web User"
	defaultWebChannelID = "web-channel-001"
)

// ChatRequest is the body of POST /api/chat/message.
type ChatRequest struct {
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	ChannelID string `json:"channelId"`
	Timestamp string `json:"timestamp,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
	Persona   string `json:"persona,omitempty"`
}

// ChatResponse is the body returned by POST /api/chat/message.
type ChatResponse struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	Timestamp   string  `json:"timestamp"`
	PersonaUsed *string `json:"persona_used"`
}

// PersonaSummary is one entry of GET /api/chat/personas.
type PersonaSummary struct {
	Name               string   `json:"name"`
	DisplayName        string   `json:"display_name"`
	CommunicationStyle string   `json:"communication_style"`
	Tone               string   `json:"tone"`
	Traits             []string `json:"traits"`
}

// PersonaListResponse is the body of GET /api/chat/personas.
type PersonaListResponse struct {
	Success  bool             `json:"success"`
	Personas []PersonaSummary `json:"personas"`
	Error    string           `json:"error,omitempty"`
}

// payload turns the request into a desktop-shell style payload, filling defaults.
func (c ChatRequest) payload(now time.Time) adapter.Payload {
	p := adapter.Payload{
		"text":      c.Text,
		"userId":    orDefault(c.UserID, defaultWebUserID),
		"userName":  orDefault(c.UserName, defaultWebUserName),
		"channelId": orDefault(c.ChannelID, defaultWebChannelID),
		"timestamp": orDefault(c.Timestamp, now.UTC().Format(time.RFC3339)),
	}
	if c.ThreadID != "" {
		p["threadId"] = c.ThreadID
	}
	return p
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *Server) readBody(rw http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, s.maxBody))
	if err != nil {
		return nil, &domain.InvalidMessageError{Field: "body", Reason: err.Error()}
	}
	return body, nil
}

func (s *Server) handleChatMessage(rw http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(rw, r)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(rw, r, &domain.InvalidMessageError{Field: "body", Reason: "invalid JSON: " + err.Error()})
		return
	}

	s.logger.Info("chat message received", "user", req.UserName, "channel", req.ChannelID, "request_id", requestID(r.Context()))

	reply, err := s.pipeline.Handle(r.Context(), agent.Inbound{
		Payload:   req.payload(time.Now()),
		SourceTag: adapter.WebTag,
		Persona:   req.Persona,
	})
	if err != nil {
		s.writeError(rw, r, err)
		return
	}

	resp := ChatResponse{Success: true, Message: reply.Text, Timestamp: reply.Timestamp}
	if reply.PersonaUsed != "" {
		resp.PersonaUsed = &reply.PersonaUsed
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleListPersonas(rw http.ResponseWriter, r *http.Request) {
	if s.personas == nil {
		writeJSON(rw, http.StatusOK, PersonaListResponse{Personas: []PersonaSummary{}, Error: "persona catalog is not configured"})
		return
	}
	defs := s.personas.List()
	out := make([]PersonaSummary, 0, len(defs))
	for _, d := range defs {
		traits := d.Traits
		if traits == nil {
			traits = []string{}
		}
		out = append(out, PersonaSummary{
			Name:               d.Name,
			DisplayName:        d.DisplayName,
			CommunicationStyle: d.CommunicationStyle,
			Tone:               d.Tone,
			Traits:             traits,
		})
	}
	writeJSON(rw, http.StatusOK, PersonaListResponse{Success: true, Personas: out})
}

func (s *Server) handleReloadPersonas(rw http.ResponseWriter, r *http.Request) {
	if s.personas == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "persona catalog is not configured"})
		return
	}
	err := s.personas.Reload()
	count := s.personas.Len()
	if s.onReload != nil {
		s.onReload(count, err)
	}
	if err != nil {
		s.writeError(rw, r, fmt.Errorf("reload personas: %w", err))
		return
	}
	s.logger.Info("personas reloaded", "count", count)
	writeJSON(rw, http.StatusOK, map[string]any{"success": true, "count": count})
}

// rawEnvelope is the optional wrapper accepted by POST /api/messages.
type rawEnvelope struct {
	Payload   map[string]any    `json:"payload"`
	Persona   string            `json:"persona"`
	SlackData *domain.SlackData `json:"slack_data"`
}

// RawMessageResponse is the body returned by POST /api/messages.
type RawMessageResponse struct {
	Success       bool                         `json:"success"`
	MessageData   domain.MessageData           `json:"message_data"`
	SlackData     domain.SlackData             `json:"slack_data"`
	Message       string                       `json:"message"`
	Timestamp     string                       `json:"timestamp"`
	PersonaUsed   *string                      `json:"persona_used"`
	Contributions []domain.ContextContribution `json:"contributions"`
	UsedFallback  bool                         `json:"used_fallback"`
}

// handleRawMessage accepts a native front-end payload, either bare or wrapped
// as {"payload": {...}, "persona": "...", "slack_data": {...}}. The ?source=
// query parameter pins the adapter; without it the router detects one.
func (s *Server) handleRawMessage(rw http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(rw, r)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}

	in, err := decodeRaw(body)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}
	in.SourceTag = r.URL.Query().Get("source")
	if p := r.URL.Query().Get("persona"); p != "" {
		in.Persona = p
	}

	reply, err := s.pipeline.Handle(r.Context(), in)
	if err != nil {
		s.writeError(rw, r, err)
		return
	}

	resp := RawMessageResponse{
		Success:     true,
		MessageData: reply.Message.Wire(),
		SlackData:   reply.Conversation.Wire(),
		Message:     reply.Text,
		Timestamp:   reply.Timestamp,
	}
	if reply.PersonaUsed != "" {
		resp.PersonaUsed = &reply.PersonaUsed
	}
	if reply.Context != nil {
		resp.Contributions = reply.Context.Contributions
		resp.UsedFallback = reply.Context.UsedFallback
	}
	writeJSON(rw, http.StatusOK, resp)
}

func decodeRaw(body []byte) (agent.Inbound, error) {
	var in agent.Inbound

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return in, &domain.InvalidMessageError{Field: "body", Reason: "expected a JSON object"}
	}

	if inner, ok := raw["payload"].(map[string]any); ok {
		var env rawEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return in, &domain.InvalidMessageError{Field: "body", Reason: "invalid envelope: " + err.Error()}
		}
		in.Payload = inner
		in.Persona = env.Persona
		if env.SlackData != nil {
			in.Hint = env.SlackData.Conversation()
		}
		return in, nil
	}

	in.Payload = raw
	return in, nil
}
