// Package formclient submits completed trial registrations to the gateway.
package formclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/trialbooking/internal/domain/trial"
)

const registerPath = "/api/register"

// ErrRejected means the gateway answered but did not report success.
var ErrRejected = errors.New("registration rejected")

type gatewayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the gateway at baseURL. A nil httpClient gets a
// default one with a 15s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Submit posts reg once. createdAt is never sent; the gateway stamps it.
func (c *Client) Submit(ctx context.Context, reg trial.Registration) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+registerPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post registration: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out gatewayResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: status %d, undecodable body", ErrRejected, res.StatusCode)
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	return nil
}
