package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/geocoder89/securedata/internal/domain/user"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 4 << 20
)

// Kind separates the ways a call can fail.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindServer     Kind = "server"
	KindDecode     Kind = "decode"
)

type APIError struct {
	Kind   Kind
	Status int
	// Code and Message come from the server's error body when it sent one.
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error (status %d)", e.Kind, e.Status)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// AsAPIError reports whether err carries an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// Client talks to the securedata HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type usersResponse struct {
	Users []user.Record `json:"users"`
}

// AddUser stores a user and returns every stored row.
func (c *Client) AddUser(ctx context.Context, name, password string) ([]user.Record, error) {
	var out usersResponse
	if err := c.post(ctx, "/add-user", user.AddUserRequest{Name: name, Password: password}, &out); err != nil {
		return nil, err
	}
	return usersOrEmpty(out.Users), nil
}

// Decrypt returns every row, revealed where globalPassword unlocks it.
func (c *Client) Decrypt(ctx context.Context, globalPassword string) ([]user.Record, error) {
	var out usersResponse
	if err := c.post(ctx, "/decrypt", user.DecryptRequest{GlobalPassword: globalPassword}, &out); err != nil {
		return nil, err
	}
	return usersOrEmpty(out.Users), nil
}

// SendEmail returns nil details without an error when the server answered
// 2xx but left emailDetails out.
func (c *Client) SendEmail(ctx context.Context, recipient, message string) (*email.Details, error) {
	var out struct {
		EmailDetails *email.Details `json:"emailDetails"`
	}
	if err := c.post(ctx, "/send-email", email.SendEmailRequest{Email: recipient, Message: message}, &out); err != nil {
		return nil, err
	}
	return out.EmailDetails, nil
}

func (c *Client) VerifySignature(ctx context.Context, message, signature string) (bool, error) {
	var out struct {
		IsValid *bool `json:"isValid"`
	}
	if err := c.post(ctx, "/verify-signature", email.VerifySignatureRequest{Message: message, Signature: signature}, &out); err != nil {
		return false, err
	}
	if out.IsValid == nil {
		return false, &APIError{Kind: KindDecode, Status: http.StatusOK, Err: errors.New("response has no isValid field")}
	}
	return *out.IsValid, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &APIError{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Kind: KindDecode, Status: resp.StatusCode, Err: err}
	}

	return nil
}

func errorFromResponse(status int, raw []byte) *APIError {
	kind := KindServer
	if status < 500 {
		kind = KindValidation
	}

	apiErr := &APIError{Kind: kind, Status: status}

	// error must be a string to be shown; anything else is ignored
	var body struct {
		Error json.RawMessage `json:"error"`
		Code  string          `json:"code"`
	}
	if json.Unmarshal(raw, &body) == nil {
		var msg string
		if json.Unmarshal(body.Error, &msg) == nil {
			apiErr.Message = msg
		}
		apiErr.Code = body.Code
	}

	return apiErr
}

func usersOrEmpty(users []user.Record) []user.Record {
	if users == nil {
		return []user.Record{}
	}
	return users
}
