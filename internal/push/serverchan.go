// Package push delivers external notifications through ServerChan.
package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const serverChanEndpoint = "https://sctapi.ftqq.com"

// ServerChan pushes notifications to the ServerChan relay; the per-rule
// send key selects the receiving account.
type ServerChan struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewServerChan creates a push client.
func NewServerChan(logger *zap.Logger) *ServerChan {
	return &ServerChan{
		baseURL: serverChanEndpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Push sends one notification.
func (s *ServerChan) Push(ctx context.Context, sendKey, title, body string) error {
	form := url.Values{}
	form.Set("title", title)
	form.Set("desp", body)

	endpoint := fmt.Sprintf("%s/%s.send", s.baseURL, sendKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push returned status: %d", resp.StatusCode)
	}
	s.logger.Info("Pushed notification", zap.String("title", title))
	return nil
}
