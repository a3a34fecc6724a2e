// Package alldebrid is a minimal client for the AllDebrid v4 API, covering
// the magnet and link endpoints the resolution pipeline needs.
package alldebrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amaumene/gocomet/pkg/httputil"
)

const (
	defaultBaseURL = "https://api.alldebrid.com/v4"
	agent          = "gocomet"

	// StatusSuccess is the API-level success marker.
	StatusSuccess = "success"

	// Magnet status codes: 0 not started, 1 downloading, 2 downloaded,
	// 3 error, 4 ready (cached).
	MagnetStatusReady = 4
)

// APIError is an AllDebrid API-level error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alldebrid: %s - %s", e.Code, e.Message)
}

// IsAuthError reports whether the API error code denotes bad credentials.
func (e *APIError) IsAuthError() bool {
	return strings.HasPrefix(e.Code, "AUTH_")
}

// Client talks to the AllDebrid API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client. An empty baseURL selects the public API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httputil.NewHTTPClient(60 * time.Second),
		baseURL:    baseURL,
	}
}

// MagnetStatus is one magnet in a status response.
type MagnetStatus struct {
	ID         int64   `json:"id"`
	Hash       string  `json:"hash"`
	Filename   string  `json:"filename"`
	Size       float64 `json:"size"`
	Status     string  `json:"status"`
	StatusCode int     `json:"statusCode"`
}

// Ready reports whether the magnet is cached and its files are available.
func (m MagnetStatus) Ready() bool {
	return m.StatusCode == MagnetStatusReady
}

// UploadedMagnet is one magnet in an upload response.
type UploadedMagnet struct {
	ID    int64     `json:"id"`
	Hash  string    `json:"hash"`
	Name  string    `json:"name"`
	Size  int64     `json:"size"`
	Ready bool      `json:"ready"`
	Error *APIError `json:"error,omitempty"`
}

// MagnetFile is one downloadable file of a ready magnet.
type MagnetFile struct {
	Link     string `json:"link"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type magnetStatusResponse struct {
	Status string `json:"status"`
	Data   struct {
		Magnets []MagnetStatus `json:"magnets"`
	} `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

type magnetUploadResponse struct {
	Status string `json:"status"`
	Data   struct {
		Magnets []UploadedMagnet `json:"magnets"`
	} `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

type magnetFilesResponse struct {
	Status string `json:"status"`
	Data   struct {
		Magnets []struct {
			ID    int64        `json:"id"`
			Hash  string       `json:"hash"`
			Ready bool         `json:"ready"`
			Links []MagnetFile `json:"links"`
		} `json:"magnets"`
	} `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

type linkUnlockResponse struct {
	Status string `json:"status"`
	Data   struct {
		Link     string `json:"link"`
		Filename string `json:"filename"`
		Filesize int64  `json:"filesize"`
	} `json:"data"`
	Error *APIError `json:"error,omitempty"`
}

type statusOnlyResponse struct {
	Status string    `json:"status"`
	Error  *APIError `json:"error,omitempty"`
}

// CheckMagnets returns the cache status of the given info hashes.
func (c *Client) CheckMagnets(ctx context.Context, apiKey string, hashes []string) ([]MagnetStatus, error) {
	form := c.baseForm(apiKey)
	for _, h := range hashes {
		form.Add("magnets[]", h)
	}

	var result magnetStatusResponse
	if err := c.postForm(ctx, "/magnet/status", form, &result); err != nil {
		return nil, err
	}
	if err := checkStatus(result.Status, result.Error); err != nil {
		return nil, err
	}
	return result.Data.Magnets, nil
}

// UploadMagnet adds a magnet to the account and returns its provider-side id.
func (c *Client) UploadMagnet(ctx context.Context, apiKey, magnetURL string) (*UploadedMagnet, error) {
	form := c.baseForm(apiKey)
	form.Add("magnets[]", magnetURL)

	var result magnetUploadResponse
	if err := c.postForm(ctx, "/magnet/upload", form, &result); err != nil {
		return nil, err
	}
	if err := checkStatus(result.Status, result.Error); err != nil {
		return nil, err
	}
	if len(result.Data.Magnets) == 0 {
		return nil, fmt.Errorf("alldebrid: empty upload response")
	}
	magnet := result.Data.Magnets[0]
	if magnet.Error != nil {
		return nil, magnet.Error
	}
	return &magnet, nil
}

// GetMagnetFiles returns the downloadable files of a magnet.
func (c *Client) GetMagnetFiles(ctx context.Context, apiKey string, magnetID int64) ([]MagnetFile, error) {
	var result magnetFilesResponse
	if err := c.get(ctx, "/magnet/files", apiKey, map[string]string{"id": fmt.Sprintf("%d", magnetID)}, &result); err != nil {
		return nil, err
	}
	if err := checkStatus(result.Status, result.Error); err != nil {
		return nil, err
	}
	var files []MagnetFile
	for _, magnet := range result.Data.Magnets {
		files = append(files, magnet.Links...)
	}
	return files, nil
}

// UnlockLink converts a hoster link into a direct download link.
func (c *Client) UnlockLink(ctx context.Context, apiKey, link string) (string, error) {
	var result linkUnlockResponse
	if err := c.get(ctx, "/link/unlock", apiKey, map[string]string{"link": link}, &result); err != nil {
		return "", err
	}
	if err := checkStatus(result.Status, result.Error); err != nil {
		return "", err
	}
	if result.Data.Link == "" {
		return "", fmt.Errorf("alldebrid: unlock returned no link")
	}
	return result.Data.Link, nil
}

// DeleteMagnet removes a magnet from the account.
func (c *Client) DeleteMagnet(ctx context.Context, apiKey string, magnetID string) error {
	var result statusOnlyResponse
	if err := c.get(ctx, "/magnet/delete", apiKey, map[string]string{"id": magnetID}, &result); err != nil {
		return err
	}
	return checkStatus(result.Status, result.Error)
}

func (c *Client) baseForm(apiKey string) url.Values {
	form := url.Values{}
	form.Set("agent", agent)
	form.Set("apikey", apiKey)
	return form
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint, apiKey string, params map[string]string, out interface{}) error {
	values := c.baseForm(apiKey)
	for k, v := range params {
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &APIError{Code: "RATE_LIMITED", Message: "too many requests"}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("alldebrid: server error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkStatus(status string, apiErr *APIError) error {
	if status == StatusSuccess {
		return nil
	}
	if apiErr != nil {
		return apiErr
	}
	return fmt.Errorf("alldebrid: unexpected status %q", status)
}
