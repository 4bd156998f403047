package dynamics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"dispatch_portal/pkg/apperr"
	"dispatch_portal/pkg/config"
)

// D365 is a read-only Dataverse Web API client authenticated as a service
// principal.
type D365 struct {
	Resty      *resty.Client
	URL        string
	APIVersion string
	Schema     config.Schema

	scope string
	cred  TokenCredential
}

// NewD365Client builds a client from explicit configuration.
func NewD365Client(cfg config.Dataverse, cred TokenCredential) *D365 {
	client := resty.New().SetTimeout(cfg.Timeout)
	return &D365{
		Resty:      client,
		URL:        strings.TrimRight(cfg.URL, "/"),
		APIVersion: cfg.APIVersion,
		Schema:     cfg.Schema,
		scope:      cfg.Scope(),
		cred:       cred,
	}
}

// UpstreamError is a non-success response from the Web API.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("dataverse returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("dataverse returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// BaseURL is the Web API root, e.g. https://org.crm.dynamics.com/api/data/v9.2.
func (d *D365) BaseURL() string {
	return d.URL + "/api/data/" + d.APIVersion
}

// GetRequest makes an authenticated GET against an endpoint relative to the
// Web API root.
func (d *D365) GetRequest(ctx context.Context, endpoint string) ([]byte, error) {
	return d.getURL(ctx, d.BaseURL()+"/"+strings.TrimLeft(endpoint, "/"))
}

// Get encodes q and fetches it.
func (d *D365) Get(ctx context.Context, q Query) ([]byte, error) {
	endpoint, err := q.Encode()
	if err != nil {
		return nil, apperr.Internal("invalid Dataverse query").Wrap(err)
	}
	return d.GetRequest(ctx, endpoint)
}

func (d *D365) getURL(ctx context.Context, fullURL string) ([]byte, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := d.Resty.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetHeader("OData-MaxVersion", "4.0").
		SetHeader("OData-Version", "4.0").
		Get(fullURL)
	if err != nil {
		return nil, apperr.Upstream("Dataverse request failed").Wrap(err)
	}

	if resp.StatusCode() != http.StatusOK {
		// The body stays in the wrapped cause for the log only.
		upErr := parseUpstreamError(resp.StatusCode(), resp.Body())
		if upErr.Code != "" {
			return nil, apperr.Upstream("Dataverse returned status %d (%s)", upErr.Status, upErr.Code).Wrap(upErr)
		}
		return nil, apperr.Upstream("Dataverse returned status %d", upErr.Status).Wrap(upErr)
	}

	return resp.Body(), nil
}

func parseUpstreamError(status int, body []byte) *UpstreamError {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	upErr := &UpstreamError{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		upErr.Code = payload.Error.Code
		upErr.Message = payload.Error.Message
		return upErr
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	upErr.Message = msg
	return upErr
}
