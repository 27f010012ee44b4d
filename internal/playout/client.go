package playout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// API is the contract the reconciliation core requires from the external
// playout-automation engine.
type API interface {
	GetShow(ctx context.Context, id int) (*Show, error)
	FindShowByName(ctx context.Context, name string) (*Show, error)
	CreateShow(ctx context.Context, name string) (*Show, error)

	GetInstance(ctx context.Context, id int) (*Instance, error)
	ListInstances(ctx context.Context, from, to time.Time) ([]Instance, error)
	CreateInstance(ctx context.Context, showID int, start, end time.Time) (*Instance, error)
	UpdateInstanceTimes(ctx context.Context, id int, start, end time.Time) (*Instance, error)
	DeleteInstance(ctx context.Context, id int) error

	ListPlayouts(ctx context.Context, from, to time.Time) ([]Playout, error)
	ListInstancePlayouts(ctx context.Context, instanceID int) ([]Playout, error)
	CreatePlayout(ctx context.Context, instanceID int, trackID int64, start, end time.Time) (*Playout, error)
	DeletePlayout(ctx context.Context, id int) error
}

const (
	maxAttempts    = 3
	initialBackoff = 250 * time.Millisecond
)

// Client talks to the engine's REST API. All timestamps cross the wire as
// UTC ISO-8601.
type Client struct {
	http *resty.Client
}

var _ API = (*Client)(nil)

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Api-Key "+apiKey)
	return &Client{http: c}
}

func wire(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// do runs one request with a bounded retry loop: up to maxAttempts on
// 429/5xx/network errors with exponential backoff, everything else surfaced
// immediately as a typed error.
func (c *Client) do(ctx context.Context, build func() *resty.Request, method, path string) (*resty.Response, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := build().SetContext(ctx).Execute(method, path)
		if err != nil {
			lastErr = err
		} else if resp.IsSuccess() {
			return resp, nil
		} else {
			kind := kindForStatus(resp.StatusCode())
			apiErr := &APIError{Kind: kind, Status: resp.StatusCode(), Body: string(resp.Body())}
			if kind != KindTransient {
				return nil, apiErr
			}
			lastErr = apiErr
		}
		if attempt == maxAttempts {
			break
		}
		log.Warn().Err(lastErr).
			Str("method", method).
			Str("path", path).
			Int("attempt", attempt).
			Msgf("engine call failed, retrying in %s", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("engine call %s %s failed after %d attempts: %w", method, path, maxAttempts, lastErr)
}

func (c *Client) GetShow(ctx context.Context, id int) (*Show, error) {
	var out Show
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetResult(&out)
	}, resty.MethodGet, fmt.Sprintf("/api/v2/shows/%d", id))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FindShowByName(ctx context.Context, name string) (*Show, error) {
	var out []Show
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetQueryParam("name", name).SetResult(&out)
	}, resty.MethodGet, "/api/v2/shows")
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (c *Client) CreateShow(ctx context.Context, name string) (*Show, error) {
	var out Show
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetBody(map[string]any{"name": name}).
			SetResult(&out)
	}, resty.MethodPost, "/api/v2/shows")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetInstance(ctx context.Context, id int) (*Instance, error) {
	var out Instance
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().SetResult(&out)
	}, resty.MethodGet, fmt.Sprintf("/api/v2/show-instances/%d", id))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListInstances(ctx context.Context, from, to time.Time) ([]Instance, error) {
	var out []Instance
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetQueryParam("ends__gt", wire(from)).
			SetQueryParam("starts__lt", wire(to)).
			SetResult(&out)
	}, resty.MethodGet, "/api/v2/show-instances")
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateInstance(ctx context.Context, showID int, start, end time.Time) (*Instance, error) {
	var out Instance
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetBody(map[string]any{
				"show_id": showID,
				"starts":  wire(start),
				"ends":    wire(end),
			}).
			SetResult(&out)
	}, resty.MethodPost, "/api/v2/show-instances")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateInstanceTimes(ctx context.Context, id int, start, end time.Time) (*Instance, error) {
	var out Instance
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetBody(map[string]any{"starts": wire(start), "ends": wire(end)}).
			SetResult(&out)
	}, resty.MethodPatch, fmt.Sprintf("/api/v2/show-instances/%d", id))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteInstance(ctx context.Context, id int) error {
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R()
	}, resty.MethodDelete, fmt.Sprintf("/api/v2/show-instances/%d", id))
	return err
}

func (c *Client) ListPlayouts(ctx context.Context, from, to time.Time) ([]Playout, error) {
	var out []Playout
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetQueryParam("ends__gt", wire(from)).
			SetQueryParam("starts__lt", wire(to)).
			SetResult(&out)
	}, resty.MethodGet, "/api/v2/playouts")
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListInstancePlayouts(ctx context.Context, instanceID int) ([]Playout, error) {
	var out []Playout
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetQueryParam("instance_id", fmt.Sprint(instanceID)).
			SetResult(&out)
	}, resty.MethodGet, "/api/v2/playouts")
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePlayout(ctx context.Context, instanceID int, trackID int64, start, end time.Time) (*Playout, error) {
	var out Playout
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R().
			SetBody(map[string]any{
				"instance_id": instanceID,
				"file":        trackID,
				"starts":      wire(start),
				"ends":        wire(end),
			}).
			SetResult(&out)
	}, resty.MethodPost, "/api/v2/playouts")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeletePlayout(ctx context.Context, id int) error {
	_, err := c.do(ctx, func() *resty.Request {
		return c.http.R()
	}, resty.MethodDelete, fmt.Sprintf("/api/v2/playouts/%d", id))
	return err
}
