package oneflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kirabridge/internal/httpclient"
)

// HTTPConfig configures an HTTP provider.
type HTTPConfig struct {
	APIBase string
	APIKey  string
	Timeout time.Duration
	Retry   httpclient.RetryPolicy
	Logger  *slog.Logger
}

// HTTP queries a OneFlow-compatible API: GET {base}/context?q=&user_id=&channel_id=
// with a bearer token, answering {"tasks":[],"projects":[],"users":[]}.
type HTTP struct {
	apiBase string
	apiKey  string
	client  *http.Client
	retry   httpclient.RetryPolicy
	logger  *slog.Logger
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry == (httpclient.RetryPolicy{}) {
		cfg.Retry = httpclient.RetryPolicy{MaxRetries: 1, Base: 200 * time.Millisecond}
	}
	return &HTTP{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		client:  httpclient.Shared(cfg.Timeout),
		retry:   cfg.Retry,
		logger:  cfg.Logger,
	}
}

func (h *HTTP) Name() string { return "oneflow-http" }

// Available reports whether the API is configured. It does not probe the network.
func (h *HTTP) Available() bool { return h.apiBase != "" && h.apiKey != "" }

type item struct {
	Title  string `json:"title"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (i item) label() string {
	if i.Title != "" {
		return i.Title
	}
	return i.Name
}

type contextResponse struct {
	Tasks    []item `json:"tasks"`
	Projects []item `json:"projects"`
	Users    []item `json:"users"`
}

func (h *HTTP) Fetch(ctx context.Context, q Query) (string, error) {
	params := url.Values{}
	params.Set("q", q.Text)
	if q.UserID != "" {
		params.Set("user_id", q.UserID)
	}
	if q.ChannelID != "" {
		params.Set("channel_id", q.ChannelID)
	}
	endpoint := h.apiBase + "/context?" + params.Encode()

	resp, err := httpclient.DoWithRetry(ctx, h.client, h.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, h.logger)
	if err != nil {
		return "", fmt.Errorf("oneflow request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("oneflow %d: %s", resp.StatusCode, string(body))
	}

	var out contextResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode oneflow response: %w", err)
	}
	return render(out), nil
}

func render(r contextResponse) string {
	var parts []string
	section := func(title, kind string, items []item) {
		if len(items) == 0 {
			return
		}
		parts = append(parts, "## OneFlow "+title)
		for _, it := range items {
			line := "- " + kind + ": " + it.label()
			if it.Status != "" {
				line += " (" + it.Status + ")"
			}
			parts = append(parts, line)
		}
	}
	section("Tasks", "Task", r.Tasks)
	section("Projects", "Project", r.Projects)
	section("Users", "User", r.Users)
	return strings.Join(parts, "\n")
}
