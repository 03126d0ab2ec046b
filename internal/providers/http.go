package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// JSONClient performs GET requests against a JSON web service and maps failures to outcome sentinels.
type JSONClient struct {
	Service    string
	BaseURL    string
	UserAgent  string
	Header     http.Header
	HTTPClient *http.Client
}

// NewJSONClient creates a JSONClient for service rooted at baseURL. client defaults to [http.DefaultClient].
func NewJSONClient(service, baseURL string, client *http.Client) *JSONClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &JSONClient{
		Service:    service,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Header:     http.Header{},
		HTTPClient: client,
	}
}

// Get requests path with the given query parameters and decodes the JSON body into result.
func (c *JSONClient) Get(ctx context.Context, path string, params url.Values, result any) error {
	apiURL := c.BaseURL + path
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Header {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return RequestError(c.Service, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(c.Service, resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", c.Service, err)
		}
	}

	return nil
}
