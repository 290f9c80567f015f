// Package client talks to the Inkwell API and keeps an optimistic local view
// of it for interactive front ends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"inkwell/apperror"
)

// API is the slice of the server the Store needs.
type API interface {
	ListPosts(ctx context.Context, params ListParams) (*PostPage, error)
	SearchPosts(ctx context.Context, q string, page, limit int) (*PostPage, error)
	CreatePost(ctx context.Context, draft PostDraft) (*Post, error)
	UpdatePost(ctx context.Context, id string, patch PostPatch) (*Post, error)
	DeletePost(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, draft CategoryDraft) (*Category, error)
	UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (*Category, error)
}

const DefaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:5000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type errorEnvelope struct {
	Error   string                `json:"error"`
	Message string                `json:"message"`
	Reason  string                `json:"reason"`
	Errors  []apperror.FieldError `json:"errors"`
}

// do sends one request. Non-2xx responses become *apperror.Error with the
// kind matching the status code.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)

	message := env.Error
	if message == "" {
		message = env.Message
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &apperror.Error{
		Kind:    apperror.KindFromStatus(status),
		Message: message,
		Reason:  env.Reason,
		Fields:  env.Errors,
	}
}

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, body, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

// Login authenticates and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

func (c *Client) ListPosts(ctx context.Context, params ListParams) (*PostPage, error) {
	q := pageQuery(params.Page, params.Limit)
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	var page PostPage
	if err := c.do(ctx, http.MethodGet, "/posts", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) SearchPosts(ctx context.Context, term string, page, limit int) (*PostPage, error) {
	q := pageQuery(page, limit)
	q.Set("q", term)
	var result PostPage
	if err := c.do(ctx, http.MethodGet, "/posts/search", q, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetPost(ctx context.Context, idOrSlug string) (*Post, error) {
	var post Post
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(idOrSlug), nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

type postEnvelope struct {
	Data Post `json:"data"`
}

func (c *Client) CreatePost(ctx context.Context, draft PostDraft) (*Post, error) {
	var env postEnvelope
	if err := c.do(ctx, http.MethodPost, "/posts", nil, draft, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) UpdatePost(ctx context.Context, id string, patch PostPatch) (*Post, error) {
	var env postEnvelope
	if err := c.do(ctx, http.MethodPut, "/posts/"+url.PathEscape(id), nil, patch, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) SetPublished(ctx context.Context, id string, published bool) (*Post, error) {
	var env postEnvelope
	body := map[string]bool{"isPublished": published}
	if err := c.do(ctx, http.MethodPatch, "/posts/"+url.PathEscape(id)+"/publish", nil, body, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

type categoryEnvelope struct {
	Data Category `json:"data"`
}

func (c *Client) CreateCategory(ctx context.Context, draft CategoryDraft) (*Category, error) {
	var env categoryEnvelope
	if err := c.do(ctx, http.MethodPost, "/categories", nil, draft, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (*Category, error) {
	var env categoryEnvelope
	if err := c.do(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), nil, patch, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}
