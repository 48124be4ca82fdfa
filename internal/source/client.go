package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a Paperless-NGX style document API. It implements
// Repository over HTTP with token authentication.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a document service client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type tagPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type documentPayload struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Tags    []int64 `json:"tags"`
}

type listEnvelope[T any] struct {
	Results []T `json:"results"`
}

// ListDocuments returns documents carrying at least one of the named tags.
// Unknown tag names are ignored; an empty resolved filter yields an empty
// listing rather than the whole archive.
func (c *Client) ListDocuments(ctx context.Context, tagFilter []string) ([]Document, error) {
	tags, err := c.fetchTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("source: fetch tags: %w", err)
	}
	byName := make(map[string]int64, len(tags))
	byID := make(map[int64]string, len(tags))
	for _, t := range tags {
		byName[strings.ToLower(t.Name)] = t.ID
		byID[t.ID] = t.Name
	}

	var ids []string
	for _, name := range tagFilter {
		if id, ok := byName[strings.ToLower(name)]; ok {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{"tags__id__in": {strings.Join(ids, ",")}}
	var envelope listEnvelope[documentPayload]
	if err := c.get(ctx, "/api/documents/?"+query.Encode(), &envelope); err != nil {
		return nil, fmt.Errorf("source: list documents: %w", err)
	}

	docs := make([]Document, 0, len(envelope.Results))
	for _, d := range envelope.Results {
		names := make([]string, 0, len(d.Tags))
		for _, tagID := range d.Tags {
			if name, ok := byID[tagID]; ok {
				names = append(names, name)
			}
		}
		docs = append(docs, Document{ID: d.ID, Title: d.Title, Tags: names})
	}
	return docs, nil
}

// ReadText returns the OCR content of one document.
func (c *Client) ReadText(ctx context.Context, id int64) (string, error) {
	var doc documentPayload
	if err := c.get(ctx, fmt.Sprintf("/api/documents/%d/", id), &doc); err != nil {
		return "", fmt.Errorf("source: read document %d: %w", id, err)
	}
	return doc.Content, nil
}

// AddTag attaches the named tag to a document, creating the tag first when
// it does not exist. Attaching an already present tag is a no-op, so the
// call is safe to repeat.
func (c *Client) AddTag(ctx context.Context, id int64, name string) error {
	tagID, err := c.getOrCreateTag(ctx, name)
	if err != nil {
		return fmt.Errorf("source: resolve tag %q: %w", name, err)
	}

	var doc documentPayload
	if err := c.get(ctx, fmt.Sprintf("/api/documents/%d/", id), &doc); err != nil {
		return fmt.Errorf("source: read document %d: %w", id, err)
	}
	for _, existing := range doc.Tags {
		if existing == tagID {
			return nil
		}
	}

	update := struct {
		Tags []int64 `json:"tags"`
	}{Tags: append(doc.Tags, tagID)}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/documents/%d/", id), update, nil); err != nil {
		return fmt.Errorf("source: tag document %d: %w", id, err)
	}
	return nil
}

func (c *Client) fetchTags(ctx context.Context) ([]tagPayload, error) {
	var envelope listEnvelope[tagPayload]
	if err := c.get(ctx, "/api/tags/", &envelope); err != nil {
		return nil, err
	}
	return envelope.Results, nil
}

func (c *Client) getOrCreateTag(ctx context.Context, name string) (int64, error) {
	query := url.Values{"name": {name}}
	var envelope listEnvelope[tagPayload]
	if err := c.get(ctx, "/api/tags/?"+query.Encode(), &envelope); err != nil {
		return 0, err
	}
	if len(envelope.Results) > 0 {
		return envelope.Results[0].ID, nil
	}
	var created tagPayload
	if err := c.do(ctx, http.MethodPost, "/api/tags/", tagPayload{Name: name}, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("document service returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
