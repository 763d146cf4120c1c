package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tyrestock/stockbook/internal/config"
)

// Client sends transactional email.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single email. Text is required; HTML is optional.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html,omitempty"`
}

// APIClient is a resty-backed implementation of Client for JSON mail APIs.
type APIClient struct {
	httpClient *resty.Client
	endpoint   string
	from       string
}

// NewClient builds a mail API client using the provided configuration values.
func NewClient(cfg config.MailConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)
	if cfg.APIKey != "" {
		restyClient.SetAuthToken(cfg.APIKey)
	}

	return &APIClient{
		httpClient: restyClient,
		endpoint:   cfg.APIURL,
		from:       cfg.From,
	}
}

type sendRequest struct {
	From string `json:"from"`
	Message
}

type apiError struct {
	Message string `json:"message"`
}

func (c *APIClient) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("send mail: no recipients")
	}

	apiErr := new(apiError)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendRequest{From: c.from, Message: msg}).
		SetError(apiErr).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("mail api error: status=%d, message=%s", resp.StatusCode(), apiErr.Message)
	}
	return nil
}
