package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPTransport 对接服务端会话与事件摄取接口的默认 Transport 实现。
type HTTPTransport struct {
	BaseURL string
	// AuthToken 调用方的 JWT，作为 Bearer 头发送
	AuthToken string
	Client    *http.Client
}

func NewHTTPTransport(baseURL, authToken string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL:   baseURL,
		AuthToken: authToken,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type startSessionRequest struct {
	LessonID uint `json:"lessonId"`
}

// envelope 服务端统一响应包裹
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (t *HTTPTransport) StartSession(ctx context.Context, lessonID uint) (string, error) {
	body, err := json.Marshal(startSessionRequest{LessonID: lessonID})
	if err != nil {
		return "", err
	}

	resp, err := t.post(ctx, "/api/tracking/sessions", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrAuthenticationRequired
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: status %d", ErrSessionStartRejected, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionStartRejected, err)
	}
	var data struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.SessionToken == "" {
		return "", fmt.Errorf("%w: malformed response", ErrSessionStartRejected)
	}
	return data.SessionToken, nil
}

func (t *HTTPTransport) SendBatch(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	resp, err := t.post(ctx, "/api/tracking/events", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tracking: batch rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.AuthToken)
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}
