package client

import (
	"context"
	"fmt"
	"net/url"
)

// Plan is one row of the subscription tier table
type Plan struct {
	Tier     string         `json:"tier"`
	Features []string       `json:"features"`
	Ceilings map[string]int `json:"ceilings"`
}

// Entitlements are the resolved capabilities of the authenticated user
type Entitlements struct {
	Tier     string         `json:"tier"`
	Features []string       `json:"features"`
	Ceilings map[string]int `json:"ceilings"`
}

// Plans returns the static subscription tier table. No authentication
// required.
func (c *Client) Plans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	if err := c.doRequest(ctx, "GET", "/api/plans", nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// Entitlements returns the resolved entitlements for the authenticated user
func (c *Client) Entitlements(ctx context.Context) (*Entitlements, error) {
	var ent Entitlements
	if err := c.doRequest(ctx, "GET", "/api/entitlements", nil, &ent); err != nil {
		return nil, err
	}
	return &ent, nil
}

// CanCreate asks whether the authenticated user may create another record
// of the given kind when count already exist. The answer is advisory; the
// backend re-checks at the point of persistence.
func (c *Client) CanCreate(ctx context.Context, kind string, count int) (bool, error) {
	path := fmt.Sprintf("/api/entitlements/can-create?kind=%s&count=%d", url.QueryEscape(kind), count)

	var resp struct {
		Allowed bool `json:"allowed"`
	}
	if err := c.doRequest(ctx, "GET", path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}
