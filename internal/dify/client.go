// Package dify talks to a Dify-compatible AI application gateway over its
// blocking chat-messages API.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nutrichat/nutrichat/internal/common"
)

const (
	defaultTimeout = 60 * time.Second

	// maxNutritionRunes is the longest accepted meal description.
	maxNutritionRunes = 2000

	// maxNutritionFileBytes caps uploads for the (pending) file analysis API.
	maxNutritionFileBytes = 10 << 20
)

type Config struct {
	BaseURL string
	APIKey  string

	// Separate Dify application for nutrition analysis.
	NutritionBaseURL string
	NutritionAPIKey  string

	Timeout time.Duration
}

// ChatReply is the decoded blocking-mode answer.
type ChatReply struct {
	Answer         string         `json:"answer"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"id"`
	Mode           string         `json:"mode"`
	Metadata       map[string]any `json:"metadata"`
}

type chatRequest struct {
	Inputs         map[string]any `json:"inputs"`
	Query          string         `json:"query"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id"`
	User           string         `json:"user"`
}

type Client struct {
	cfg   Config
	httpc *http.Client
	log   *logrus.Logger
}

// NewClient builds a gateway client. httpc may be nil; tests pass their own
// to intercept transport.
func NewClient(cfg Config, httpc *http.Client, log *logrus.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{cfg: cfg, httpc: httpc, log: log}
}

// SendChatMessage runs one blocking chat turn. An empty conversationID
// starts a new Dify conversation; the reply carries the id to reuse.
func (c *Client) SendChatMessage(ctx context.Context, message, conversationID, userTag string) (*ChatReply, error) {
	if c.cfg.BaseURL == "" || c.cfg.APIKey == "" {
		return nil, common.ErrConfiguration("ai gateway is not configured")
	}
	if userTag == "" {
		userTag = fmt.Sprintf("anon-%d", time.Now().UnixMilli())
	}
	return c.postChat(ctx, c.cfg.BaseURL, c.cfg.APIKey, message, conversationID, userTag)
}

// AnalyzeNutrition sends a meal description to the nutrition application and
// returns the textual analysis.
func (c *Client) AnalyzeNutrition(ctx context.Context, description, userTag string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", common.ErrValidation("meal description is required")
	}
	if len([]rune(description)) > maxNutritionRunes {
		return "", common.ErrTooLong(fmt.Sprintf("meal description exceeds %d characters", maxNutritionRunes))
	}
	if c.cfg.NutritionBaseURL == "" || c.cfg.NutritionAPIKey == "" {
		return "", common.ErrConfiguration("nutrition analysis is not configured")
	}

	query := "Analyze the nutrition of the following meal. List estimated calories, " +
		"protein, carbohydrates and fat, then give one improvement suggestion.\n\n" + description
	reply, err := c.postChat(ctx, c.cfg.NutritionBaseURL, c.cfg.NutritionAPIKey, query, "", userTag)
	if err != nil {
		return "", err
	}
	return reply.Answer, nil
}

var nutritionFileTypes = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// AnalyzeNutritionFile validates the upload, then reports the feature as
// pending: the gateway's file API is not wired yet.
func (c *Client) AnalyzeNutritionFile(_ context.Context, filename string, size int64) (string, error) {
	if filename == "" || size <= 0 {
		return "", common.ErrValidation("a non-empty image file is required")
	}
	if size > maxNutritionFileBytes {
		return "", common.ErrTooLong("image file exceeds 10MB")
	}
	if !nutritionFileTypes[strings.ToLower(path.Ext(filename))] {
		return "", common.ErrValidation("unsupported image type")
	}
	return "", common.ErrNotImplemented("nutrition image analysis is not available yet")
}

func (c *Client) postChat(ctx context.Context, baseURL, apiKey, query, conversationID, userTag string) (*ChatReply, error) {
	body, err := json.Marshal(chatRequest{
		Inputs:         map[string]any{},
		Query:          query,
		ResponseMode:   "blocking",
		ConversationID: conversationID,
		User:           userTag,
	})
	if err != nil {
		return nil, common.ErrInternal(err)
	}

	url := strings.TrimRight(baseURL, "/") + "/chat-messages"

	resp, err := c.doWithRetry(ctx, url, apiKey, body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, common.ErrExternal(common.CodeAIGatewayTimeout, "ai gateway timed out", err)
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, common.ErrExternal(common.CodeAIGatewayTimeout, "ai gateway timed out", err)
		}
		return nil, common.ErrExternal(common.CodeAIGatewayError, "ai gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		drainLimited(resp.Body)
		return nil, common.ErrExternal(common.CodeAIQuotaExceeded, "ai gateway quota exceeded", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readLimited(resp.Body)
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   snippet,
		}).Warn("ai gateway error response")
		return nil, common.ErrExternal(common.CodeAIGatewayError,
			fmt.Sprintf("ai gateway returned status %d", resp.StatusCode), nil)
	}

	var reply ChatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, common.ErrExternal(common.CodeAIGatewayError, "ai gateway returned malformed response", err)
	}
	if reply.Answer == "" {
		return nil, common.ErrExternal(common.CodeAIGatewayError, "ai gateway returned an empty answer", nil)
	}
	return &reply, nil
}

// doWithRetry issues the POST, retrying once on transport failure. HTTP
// error statuses are never retried here; the caller maps them.
func (c *Client) doWithRetry(ctx context.Context, url, apiKey string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := c.httpc.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func readLimited(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 2048))
	return string(b)
}

func drainLimited(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 2048))
}
