package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPSender delivers messages through the WhatsApp gateway's HTTP API.
type HTTPSender struct {
	url    string
	secret string
	client *http.Client
}

// NewHTTPSender creates a sender posting to the given gateway URL.
// Requests are signed with HMAC-SHA256 when a secret is configured.
func NewHTTPSender(url, secret string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
	}
}

type sendPayload struct {
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Send posts the message to the gateway. Network errors and timeouts
// are transient; 5xx, 408 and 429 are transient; any other 4xx is
// permanent.
func (s *HTTPSender) Send(ctx context.Context, phone, message string) (Result, error) {
	payload, err := json.Marshal(sendPayload{
		Phone:     phone,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return ResultPermanent, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/send", bytes.NewReader(payload))
	if err != nil {
		return ResultPermanent, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set("X-Connect-Signature", sign(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Includes client timeouts and context deadline. The message
		// may or may not have gone out; retrying is the safe default
		// and duplicate acknowledgements are idempotent upstream.
		if errors.Is(err, context.Canceled) {
			return ResultTransient, err
		}
		return ResultTransient, fmt.Errorf("gateway request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ResultSuccess, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return ResultTransient, fmt.Errorf("gateway busy: status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return ResultTransient, fmt.Errorf("gateway error: status %d", resp.StatusCode)
	default:
		return ResultPermanent, fmt.Errorf("gateway rejected message: status %d", resp.StatusCode)
	}
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
