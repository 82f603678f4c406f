package trackmage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is returned for any non-2xx response from the tracking service.
// Body keeps the raw response text so callers can inspect validation details.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trackmage api: status %d: %s", e.Status, e.Body)
}

// Client talks to the TrackMage REST API with bearer credentials.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// New builds a Client for the given API host and bearer token.
func New(baseURL, token string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Get issues a GET request and decodes the JSON response.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON body and decodes the JSON response.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, path, query, body)
}

// Put issues a PUT request with a JSON body and decodes the JSON response.
func (c *Client) Put(ctx context.Context, path string, query url.Values, body interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPut, path, query, body)
}

// Delete issues a DELETE request. The response body, if any, is discarded.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) error {
	_, err := c.do(ctx, http.MethodDelete, path, query, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (map[string]interface{}, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Printf("trackmage client: %s %s status=%d", method, path, resp.StatusCode)
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if len(respBody) == 0 {
		return nil, nil
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return decoded, nil
}
