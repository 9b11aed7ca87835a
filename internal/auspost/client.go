package auspost

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const requestTimeout = 8 * time.Second

// Locality is one candidate row from the suggest endpoint. Coordinates may
// arrive as numbers or strings; Number tolerates both.
type Locality struct {
	Location  string `json:"location"`
	Postcode  string `json:"postcode"`
	State     string `json:"state"`
	Latitude  Number `json:"latitude"`
	Longitude Number `json:"longitude"`
}

// Number is an optional numeric field. Missing, null, non-numeric and
// non-finite values all decode to "absent" rather than zero.
type Number struct {
	value float64
	valid bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return nil
	}
	n.value = parsed
	n.valid = true
	return nil
}

// Float returns the value as a nullable pointer.
func (n Number) Float() *float64 {
	if !n.valid {
		return nil
	}
	v := n.value
	return &v
}

// localityList absorbs the upstream schema quirk where a single result is
// collapsed from a list to a bare object. Order is preserved as returned.
type localityList []Locality

func (l *localityList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []Locality
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var single Locality
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = localityList{single}
	return nil
}

type suggestResponse struct {
	Localities struct {
		Locality localityList `json:"locality"`
	} `json:"localities"`
}

// UpstreamError marks transport, status and payload failures from the
// locality API, keeping them distinguishable from ordinary "no match"
// validation outcomes.
type UpstreamError struct {
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string { return e.Message }
func (e *UpstreamError) Unwrap() error { return e.Cause }

// Client calls the locality suggest endpoint with bearer auth. Outbound
// calls are throttled so a burst of validations cannot hammer the provider.
type Client struct {
	baseURL    string
	bearer     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL, bearer string) *Client {
	return &Client{
		baseURL: baseURL,
		bearer:  bearer,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// FetchLocalities queries by search term and optional state filter, returning
// the flat candidate list in upstream order.
func (c *Client) FetchLocalities(ctx context.Context, q, state string) ([]Locality, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UpstreamError{Message: "AusPost API request cancelled", Cause: err}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	params := u.Query()
	params.Set("q", q)
	if state != "" {
		params.Set("state", state)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: "AusPost API unreachable", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Message: fmt.Sprintf("AusPost API error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	var payload suggestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &UpstreamError{Message: "AusPost API returned non-JSON", Cause: err}
	}

	return payload.Localities.Locality, nil
}
