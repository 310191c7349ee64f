// Package client is a small HTTP client for the whale watcher API.
package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"whalewatcher/pkg/domain"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status     int                `json:"-"`
	Message    string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("whalewatcher: %d %s", e.Status, e.Message)
	}
	rules := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		rules[i] = v.Rule + ": " + v.Message
	}
	return fmt.Sprintf("whalewatcher: %d %s (%s)", e.Status, e.Message, strings.Join(rules, "; "))
}

// Client talks to a running server.
type Client struct {
	http *resty.Client
}

// Option customises a Client.
type Option func(*resty.Client)

// WithActor attributes every action sent by the client to actor.
func WithActor(actor string) Option {
	return func(c *resty.Client) {
		if actor != "" {
			c.SetHeader("X-Actor", actor)
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// New builds a client for the server at baseURL, for example http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/api/v1").
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc}
}

type envelope[T any] struct {
	Data       T                  `json:"data"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := &APIError{}
	req := c.http.R().SetContext(ctx).SetError(apiErr)
	if result != nil {
		req.SetResult(result)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = resp.Status()
		}
		return apiErr
	}
	return nil
}

func action[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var out envelope[T]
	err := c.do(ctx, resty.MethodPost, path, body, &out)
	return out.Data, err
}

// ListCases returns the work queue.
func (c *Client) ListCases(ctx context.Context) ([]domain.Case, error) {
	var out struct {
		Cases []domain.Case `json:"cases"`
	}
	err := c.do(ctx, resty.MethodGet, "/cases", nil, &out)
	return out.Cases, err
}

// GetCase fetches one case.
func (c *Client) GetCase(ctx context.Context, id string) (domain.Case, error) {
	var out domain.Case
	err := c.do(ctx, resty.MethodGet, "/cases/"+id, nil, &out)
	return out, err
}

// ListGaps returns the gaps of a case.
func (c *Client) ListGaps(ctx context.Context, caseID string) ([]domain.Gap, error) {
	var out struct {
		Gaps []domain.Gap `json:"gaps"`
	}
	err := c.do(ctx, resty.MethodGet, "/cases/"+caseID+"/gaps", nil, &out)
	return out.Gaps, err
}

// ListAuditEvents returns the audit trail of a case, newest first.
func (c *Client) ListAuditEvents(ctx context.Context, caseID string) ([]domain.AuditEvent, error) {
	var out struct {
		Events []domain.AuditEvent `json:"audit_events"`
	}
	err := c.do(ctx, resty.MethodGet, "/cases/"+caseID+"/audit", nil, &out)
	return out.Events, err
}

// AdvanceStage moves a case to its next stage.
func (c *Client) AdvanceStage(ctx context.Context, caseID string) (domain.Case, error) {
	return action[domain.Case](ctx, c, "/cases/"+caseID+"/advance", nil)
}

// ToggleMissingDemographics flags or clears missing demographic information.
func (c *Client) ToggleMissingDemographics(ctx context.Context, caseID string, missing bool) (domain.Case, error) {
	return action[domain.Case](ctx, c, "/cases/"+caseID+"/demographics", map[string]bool{"missing": missing})
}

// ToggleEvidenceFailure fails or restores the first evidence order of a case.
func (c *Client) ToggleEvidenceFailure(ctx context.Context, caseID string, failed bool) (domain.EvidenceOrder, error) {
	return action[domain.EvidenceOrder](ctx, c, "/cases/"+caseID+"/evidence/failure", map[string]bool{"failed": failed})
}

// ReceiveEvidence marks all orders of typ on the case received.
func (c *Client) ReceiveEvidence(ctx context.Context, caseID string, typ domain.EvidenceType) ([]domain.EvidenceOrder, error) {
	return action[[]domain.EvidenceOrder](ctx, c, "/cases/"+caseID+"/evidence/receive", map[string]domain.EvidenceType{"type": typ})
}

// CloseGap closes a gap.
func (c *Client) CloseGap(ctx context.Context, gapID string) (domain.Gap, error) {
	return action[domain.Gap](ctx, c, "/gaps/"+gapID+"/close", nil)
}

// CompleteDemo fast-forwards a case to decision-ready.
func (c *Client) CompleteDemo(ctx context.Context, caseID string) (domain.Case, error) {
	return action[domain.Case](ctx, c, "/cases/"+caseID+"/complete", nil)
}

// ResetDemo restores the seed fixture.
func (c *Client) ResetDemo(ctx context.Context) error {
	return c.do(ctx, resty.MethodPost, "/demo/reset", nil, nil)
}

// ExportWorkQueue downloads the work queue workbook.
func (c *Client) ExportWorkQueue(ctx context.Context) ([]byte, error) {
	apiErr := &APIError{}
	resp, err := c.http.R().SetContext(ctx).SetError(apiErr).Get("/cases/export")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, apiErr
	}
	return resp.Body(), nil
}
