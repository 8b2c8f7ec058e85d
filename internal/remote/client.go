// Package remote provides the HTTP client for the marketplace backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/farmlink/agrosync/internal/errors"
	"github.com/farmlink/agrosync/internal/models"
	"github.com/farmlink/agrosync/internal/uuid"
)

// Config holds backend connection configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements the sync engine's Remote over the backend's REST API.
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a new Client.
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, errors.New(errors.ErrInvalid, "remote base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "invalid remote base URL", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config:  config,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}, nil
}

// apiError is the backend's error body.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateListing publishes a new listing. A photo is sent as a multipart part
// next to the JSON listing.
func (c *Client) CreateListing(ctx context.Context, nl models.NewListing) (models.Listing, error) {
	var created models.Listing

	body, contentType, err := encodeNewListing(nl)
	if err != nil {
		return created, errors.Remote("create listing", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "listings", nil, bytes.NewReader(body))
	if err != nil {
		return created, errors.Remote("create listing", err)
	}
	req.Header.Set("Content-Type", contentType)

	if err := c.do(req, &created); err != nil {
		return created, errors.Remote("create listing", err)
	}
	return created, nil
}

func encodeNewListing(nl models.NewListing) ([]byte, string, error) {
	listingJSON, err := json.Marshal(nl.Listing)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode listing: %w", err)
	}
	if len(nl.Photo) == 0 {
		return listingJSON, "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("listing", string(listingJSON)); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(nl.Photo); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// UpdateListing applies patch to listing id. When the backend answers 204
// the zero Listing is returned.
func (c *Client) UpdateListing(ctx context.Context, id string, patch models.ListingPatch) (models.Listing, error) {
	var updated models.Listing
	req, err := c.newJSONRequest(ctx, http.MethodPatch, "listings/"+url.PathEscape(id), patch)
	if err != nil {
		return updated, errors.Remote("update listing", err)
	}
	if err := c.do(req, &updated); err != nil {
		return updated, errors.Remote("update listing", err)
	}
	return updated, nil
}

// DeleteListing removes listing id. A listing that is already gone counts as
// deleted.
func (c *Client) DeleteListing(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "listings/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return errors.Remote("delete listing", err)
	}
	err = c.do(req, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return errors.Remote("delete listing", err)
	}
	return nil
}

// FetchListings returns the listings matching filter. Filtering is done by
// the backend.
func (c *Client) FetchListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	query := url.Values{}
	if crop := strings.TrimSpace(filter.CropName); crop != "" {
		query.Set("crop", crop)
	}
	if loc := strings.TrimSpace(filter.Location); loc != "" {
		query.Set("location", loc)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "listings", query, nil)
	if err != nil {
		return nil, errors.Remote("fetch listings", err)
	}
	var listings []models.Listing
	if err := c.do(req, &listings); err != nil {
		return nil, errors.Remote("fetch listings", err)
	}
	return listings, nil
}

// FetchOrders returns the orders visible to the API key's user.
func (c *Client) FetchOrders(ctx context.Context) ([]models.Order, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "orders", nil, nil)
	if err != nil {
		return nil, errors.Remote("fetch orders", err)
	}
	var orders []models.Order
	if err := c.do(req, &orders); err != nil {
		return nil, errors.Remote("fetch orders", err)
	}
	return orders, nil
}

// InvokeOrderAction posts action for order id, e.g. POST /orders/17/mark_ready.
func (c *Client) InvokeOrderAction(ctx context.Context, action models.OrderAction, orderID string, data map[string]interface{}) error {
	if data == nil {
		data = map[string]interface{}{}
	}
	path := "orders/" + url.PathEscape(orderID) + "/" + url.PathEscape(string(action))
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, data)
	if err != nil {
		return errors.Remote("order action", err)
	}
	if err := c.do(req, nil); err != nil {
		return errors.Remote("order action", err)
	}
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, v interface{}) (*http.Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// IdempotencyHeader carries the mutation's local id on writes.
const IdempotencyHeader = "Idempotency-Key"

// newRequest creates an authenticated request for path under the base URL.
// Non-GET requests carry the context's idempotency key, if any.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if key, ok := uuid.IdempotencyKey(ctx); ok && method != http.MethodGet {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req, nil
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func isStatus(err error, code int) bool {
	se, ok := err.(*StatusError)
	return ok && se.StatusCode == code
}

// do executes req and decodes a JSON body into out when out is non-nil and
// the response has content.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil {
		if ae.Error != "" {
			return ae.Error
		}
		if ae.Message != "" {
			return ae.Message
		}
	}
	return strings.TrimSpace(string(body))
}
