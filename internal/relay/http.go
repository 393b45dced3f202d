package relay

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
	"time"

	"cipherelay/internal/domain"
)

// APIError is a non-2xx API response.
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("relay %s %s: %d %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("relay %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// User is one directory entry.
type User struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Online is the server's live presence list.
type Online struct {
	Count int               `json:"count"`
	Users []domain.Presence `json:"users"`
}

// HTTP is a client for the relay's JSON API. Token, when set, is sent as a
// bearer credential.
type HTTP struct {
	Base  string
	Token string
	HTTP  *http.Client
}

// NewHTTP returns a client for the server at base (for example
// "http://localhost:8000").
func NewHTTP(base string) *HTTP {
	return &HTTP{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

func (c *HTTP) Register(ctx context.Context, username, password, publicKey string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username":   username,
		"password":   password,
		"public_key": publicKey,
	}, &out)
	return out, err
}

func (c *HTTP) Login(ctx context.Context, username, password string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	return out, err
}

// Users lists every account except the caller's.
func (c *HTTP) Users(ctx context.Context) ([]User, error) {
	var out []User
	err := c.do(ctx, http.MethodGet, "/api/v1/users", nil, &out)
	return out, err
}

// PublicKey fetches username's published key.
func (c *HTTP) PublicKey(ctx context.Context, username string) (string, error) {
	var out struct {
		PublicKey string `json:"public_key"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/keys/"+url.PathEscape(username), nil, &out)
	return out.PublicKey, err
}

func (c *HTTP) Online(ctx context.Context) (Online, error) {
	var out Online
	err := c.do(ctx, http.MethodGet, "/api/v1/online", nil, &out)
	return out, err
}

// History returns up to limit of the caller's recent messages, newest
// first. A limit of zero uses the server's default.
func (c *HTTP) History(ctx context.Context, limit int) ([]domain.Message, error) {
	path := "/api/v1/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Messages, err
}

func (c *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&detail) == nil {
			apiErr.Detail = detail.Detail
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
