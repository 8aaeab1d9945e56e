// Package client is a Go client for the rx-reader HTTP API. Failures are
// returned as *Error carrying the same categories the server uses.
package client

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

	"rx-reader/internal/domain"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base url must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AnalyzeResult is the analysis plus the ids of the stored records. The ids
// are zero when the server could not persist the result.
type AnalyzeResult struct {
	domain.PrescriptionAnalysis `yaml:",inline"`
	PrescriptionID int64 `json:"prescriptionId,omitempty" yaml:"prescriptionId,omitempty"`
	MessageID      int64 `json:"messageId,omitempty" yaml:"messageId,omitempty"`
}

func (c *Client) AnalyzeImage(ctx context.Context, dataURL string) (AnalyzeResult, error) {
	var out AnalyzeResult
	if err := c.post(ctx, opAnalyze, "/api/prescriptions/analyze", map[string]string{"imageBase64": dataURL}, &out); err != nil {
		return AnalyzeResult{}, err
	}
	if out.Medications == nil {
		out.Medications = []domain.Medication{}
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, content string) (string, error) {
	var out struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, opMessage, "/api/messages", map[string]string{"content": content}, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, messageID int64, isAccurate bool) (domain.Feedback, error) {
	in := struct {
		MessageID  int64 `json:"messageId"`
		IsAccurate bool  `json:"isAccurate"`
	}{messageID, isAccurate}
	var out struct {
		Success  bool            `json:"success"`
		Feedback domain.Feedback `json:"feedback"`
	}
	if err := c.post(ctx, opFeedback, "/api/feedbacks", in, &out); err != nil {
		return domain.Feedback{}, err
	}
	return out.Feedback, nil
}

func (c *Client) post(ctx context.Context, op operation, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("client: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return classify(op, 0, nil, "", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return classify(op, res.StatusCode, nil, "", fmt.Errorf("client: read response body: %w", err))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) != nil {
			return classify(op, res.StatusCode, nil, string(raw), nil)
		}
		return classify(op, res.StatusCode, &eb, eb.Message, nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return classify(op, res.StatusCode, nil, "", fmt.Errorf("client: decode response: %w", err))
	}
	return nil
}
