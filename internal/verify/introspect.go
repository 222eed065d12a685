package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPIntrospector resolves assertions against the provider's tokeninfo
// endpoint.
type HTTPIntrospector struct {
	endpoint string
	client   *http.Client
}

// NewHTTPIntrospector creates an introspector for the given endpoint
func NewHTTPIntrospector(endpoint string, timeout time.Duration) *HTTPIntrospector {
	return &HTTPIntrospector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// tokenInfoResponse matches the provider's wire format. Numeric and boolean
// fields arrive as strings.
type tokenInfoResponse struct {
	Sub           string `json:"sub"`
	Aud           string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Exp           string `json:"exp"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Introspect implements Introspector
func (i *HTTPIntrospector) Introspect(ctx context.Context, assertion string) (*TokenInfo, error) {
	u := i.endpoint + "?id_token=" + url.QueryEscape(assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspection returned status %d", resp.StatusCode)
	}

	var body tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("introspection response malformed: %w", err)
	}

	exp, err := strconv.ParseInt(body.Exp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("introspection expiry malformed: %w", err)
	}

	return &TokenInfo{
		Subject:       body.Sub,
		Email:         body.Email,
		EmailVerified: body.EmailVerified == "true",
		Audience:      body.Aud,
		ExpiresAt:     time.Unix(exp, 0),
		Name:          body.Name,
		Picture:       body.Picture,
	}, nil
}
