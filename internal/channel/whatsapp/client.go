// Package whatsapp delivers the message channel through an HTTP gateway.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/channel"
	"github.com/acme/lead-contact-engine/internal/config"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/clock"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// Client posts messages to the gateway's /send/message endpoint.
type Client struct {
	baseURL  string
	username string
	password string
	deviceID string
	region   string
	http     *http.Client
	clock    clock.Clock
	logger   *logger.Logger
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewClient constructs a gateway client.
func NewClient(cfg config.WhatsAppConfig, region string, clk clock.Clock, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		deviceID: cfg.DeviceID,
		region:   region,
		http:     &http.Client{Timeout: timeout},
		clock:    clk,
		logger:   log.Named("whatsapp"),
	}
}

// Send delivers msg.Body to the lead's phone. Client errors from the gateway
// are reported as failures, server errors and network problems as errors.
func (c *Client) Send(ctx context.Context, msg channel.Message) (channel.SendResult, error) {
	number, err := channel.NormalizeE164(msg.Lead.Phone, c.region)
	if err != nil {
		return channel.Failed(domain.FailureInvalidNumber, err.Error(), 0), nil
	}

	body, err := json.Marshal(sendRequest{
		Phone:   strings.TrimPrefix(number, "+"),
		Message: msg.Body,
	})
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("whatsapp: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send/message", bytes.NewReader(body))
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	started := c.clock.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	elapsed := c.clock.Now().Sub(started)

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return channel.SendResult{}, fmt.Errorf("whatsapp: %s", detail)
		}
		return channel.Failed(domain.FailureFailure, detail, elapsed), nil
	}

	c.logger.Debug("message sent", zap.String("lead_id", msg.Lead.ID), zap.String("task_id", msg.TaskID))
	return channel.Delivered(elapsed), nil
}

var _ channel.Adapter = (*Client)(nil)
