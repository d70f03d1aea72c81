// Package webflow is a thin client for the Webflow Data API v2. All calls
// authenticate with a bearer token and pin the API version header; non-2xx
// responses surface as *APIError carrying the status and body text.
package webflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/oakline/job-sync-service/internal/config"
	"github.com/oakline/job-sync-service/internal/models"
)

const acceptVersion = "2.0.0"

// Client talks to the Webflow Data API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Webflow API client.
func NewClient(cfg config.WebflowConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ItemPatch is a partial item update. Nil flags are omitted from the request
// so a publish-only patch does not touch field data or archive state.
type ItemPatch struct {
	FieldData  models.FieldSet `json:"fieldData,omitempty"`
	IsArchived *bool           `json:"isArchived,omitempty"`
	IsDraft    *bool           `json:"isDraft,omitempty"`
}

// Bool returns a pointer to b, for building ItemPatch values.
func Bool(b bool) *bool {
	return &b
}

// APIError is a non-2xx response from the Webflow API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webflow returned %d: %s", e.Status, truncate(e.Body, 200))
}

// InvalidFields extracts the field params from a validation error body of the
// form {"details":[{"param":"field-slug",...},...]}. Returns nil when the body
// is not shaped like a validation error.
func (e *APIError) InvalidFields() []string {
	var payload struct {
		Details []struct {
			Param string `json:"param"`
		} `json:"details"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err != nil {
		return nil
	}
	var fields []string
	for _, d := range payload.Details {
		if d.Param != "" {
			fields = append(fields, d.Param)
		}
	}
	return fields
}

// GetCollection fetches a collection's metadata and field definitions.
func (c *Client) GetCollection(ctx context.Context, collectionID string) (*models.Collection, error) {
	var collection models.Collection
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", collectionID), nil, &collection)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collection %s: %w", collectionID, err)
	}
	return &collection, nil
}

// ListItems fetches all items of a collection.
func (c *Client) ListItems(ctx context.Context, collectionID string) ([]models.Item, error) {
	var result struct {
		Items []models.Item `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s/items", collectionID), nil, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of %s: %w", collectionID, err)
	}
	return result.Items, nil
}

// CreateItemLive creates an item directly as published, bypassing the draft
// state.
func (c *Client) CreateItemLive(ctx context.Context, collectionID string, fields models.FieldSet) (*models.Item, error) {
	body := ItemPatch{
		FieldData:  fields,
		IsArchived: Bool(false),
		IsDraft:    Bool(false),
	}
	var item models.Item
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/items/live", collectionID), body, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItemLive patches an item through the live endpoint so the change is
// published immediately rather than queued.
func (c *Client) UpdateItemLive(ctx context.Context, collectionID, itemID string, patch ItemPatch) (*models.Item, error) {
	var item models.Item
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/collections/%s/items/live/%s", collectionID, itemID), patch, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateItem patches an item's staged version.
func (c *Client) UpdateItem(ctx context.Context, collectionID, itemID string, patch ItemPatch) (*models.Item, error) {
	var item models.Item
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/collections/%s/items/%s", collectionID, itemID), patch, &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// PublishItem flips a draft item to live.
func (c *Client) PublishItem(ctx context.Context, collectionID, itemID string) error {
	patch := ItemPatch{IsDraft: Bool(false)}
	_, err := c.UpdateItemLive(ctx, collectionID, itemID, patch)
	return err
}

// UnpublishItem removes an item from the live site while keeping it in the
// CMS. A 404 means the item was not live to begin with and is treated as
// already satisfied.
func (c *Client) UnpublishItem(ctx context.Context, collectionID, itemID string) error {
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s/items/%s/live", collectionID, itemID), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

// PublishSite triggers a site-wide publish to all domains.
func (c *Client) PublishSite(ctx context.Context, siteID string) error {
	body := map[string]interface{}{"domains": []string{}}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/sites/%s/publish", siteID), body, nil)
	if err != nil {
		return fmt.Errorf("failed to publish site %s: %w", siteID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("accept-version", acceptVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
