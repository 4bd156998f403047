// Package flow triggers the workflow automation that records job completion
// in Dataverse.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dispatch_portal/pkg/apperr"
	"dispatch_portal/pkg/config"
)

type Client struct {
	Resty           *resty.Client
	URL             string
	CompletedStatus int
	Now             func() time.Time
}

func NewClient(cfg config.Flow) *Client {
	return &Client{
		Resty:           resty.New().SetTimeout(cfg.Timeout),
		URL:             cfg.CompleteURL,
		CompletedStatus: cfg.CompletedStatus,
		Now:             time.Now,
	}
}

// Completion reports one finished dispatch. Missing coordinates are sent
// as 0 because the flow's numeric fields reject null.
type Completion struct {
	ID          string
	Lat         *float64
	Long        *float64
	CompletedAt time.Time
}

type payload struct {
	ID             string  `json:"id"`
	Lat            float64 `json:"lat"`
	Long           float64 `json:"long"`
	Status         int     `json:"status"`
	CompletionTime string  `json:"completionTime"`
}

// NotifyCompletion posts the completion to the workflow trigger. The trigger
// has no response contract beyond its HTTP status.
func (c *Client) NotifyCompletion(ctx context.Context, done Completion) error {
	if strings.TrimSpace(done.ID) == "" {
		return apperr.BadRequest("dispatch id is required")
	}
	if c.URL == "" {
		return apperr.Configuration("workflow endpoint is not configured")
	}

	at := done.CompletedAt
	if at.IsZero() {
		at = c.Now()
	}
	body := payload{
		ID:             done.ID,
		Lat:            deref(done.Lat),
		Long:           deref(done.Long),
		Status:         c.CompletedStatus,
		CompletionTime: at.UTC().Format(time.RFC3339),
	}

	resp, err := c.Resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.URL)
	if err != nil {
		return apperr.Upstream("workflow endpoint unreachable").Wrap(err)
	}

	if !resp.IsSuccess() {
		return apperr.Upstream("workflow endpoint returned status %d", resp.StatusCode()).
			Wrap(errors.New(truncate(resp.String(), 512)))
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
