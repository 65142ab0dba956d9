// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultEndpoint is the default Kaggle URL.
// Can be overridden via Settings.Endpoint or KAGGLE_API_ENDPOINT.
const DefaultEndpoint = "https://www.kaggle.com"

// getEndpoint returns the endpoint to use, falling back to the environment
// and then the default.
func getEndpoint(endpoint string) string {
	if endpoint == "" {
		endpoint = os.Getenv("KAGGLE_API_ENDPOINT")
	}
	if endpoint == "" {
		return DefaultEndpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}

// datasetView is the subset of the dataset metadata we care about.
type datasetView struct {
	Ref                  string `json:"ref"`
	Title                string `json:"title"`
	CurrentVersionNumber int    `json:"currentVersionNumber"`
}

// Client downloads datasets from Kaggle into the local cache.
type Client struct {
	cfg   Settings
	httpc *http.Client
	cache cacheLayout
}

// NewClient creates a hub client.
func NewClient(cfg Settings) *Client {
	return &Client{
		cfg:   cfg,
		httpc: buildHTTPClient(),
		cache: newCacheLayout(cfg.CacheDir),
	}
}

// CacheRoot returns the cache root directory used by the client.
func (c *Client) CacheRoot() string {
	return c.cache.root
}

// buildHTTPClient creates an HTTP client with sensible defaults.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// addAuth adds authentication and user-agent headers to a request.
func addAuth(req *http.Request, creds Credentials) {
	switch {
	case creds.Username != "" && creds.Key != "":
		req.SetBasicAuth(creds.Username, creds.Key)
	case creds.Token != "":
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	req.Header.Set("User-Agent", "kagglefetcher/1")
}

// apiError builds an APIError from a non-2xx response, reading a short body
// for context.
func apiError(resp *http.Response) *APIError {
	e := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	if resp.Request != nil && resp.Request.URL != nil {
		e.URL = resp.Request.URL.String()
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		e.Message = payload.Message
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

// currentVersion looks up the latest version number of a dataset.
func (c *Client) currentVersion(ctx context.Context, creds Credentials, h Handle) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, viewURL(c.cfg.Endpoint, h), nil)
	if err != nil {
		return 0, err
	}
	addAuth(req, creds)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, apiError(resp)
	}

	var v datasetView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return 0, fmt.Errorf("decode dataset metadata: %w", err)
	}
	if v.CurrentVersionNumber <= 0 {
		return 0, fmt.Errorf("dataset %s reports no current version", h)
	}
	return v.CurrentVersionNumber, nil
}

// URL builders - all accept endpoint to support custom deployments

func viewURL(endpoint string, h Handle) string {
	ep := getEndpoint(endpoint)
	return fmt.Sprintf("%s/api/v1/datasets/view/%s/%s", ep, url.PathEscape(h.Owner), url.PathEscape(h.Dataset))
}

func downloadURL(endpoint string, h Handle) string {
	ep := getEndpoint(endpoint)
	u := fmt.Sprintf("%s/api/v1/datasets/download/%s/%s", ep, url.PathEscape(h.Owner), url.PathEscape(h.Dataset))
	if h.Version > 0 {
		u += "?dataset_version_number=" + strconv.Itoa(h.Version)
	}
	return u
}
