package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/geocoder89/securedata/internal/domain/user"
	"github.com/geocoder89/securedata/internal/http/handlers"
	"github.com/geocoder89/securedata/internal/service"
	"github.com/gin-gonic/gin"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVault struct {
	addFn     func(ctx context.Context, name, password string) ([]user.Record, error)
	decryptFn func(ctx context.Context, passphrase string) ([]user.Record, error)
	listFn    func(ctx context.Context) ([]user.Record, error)
}

func (f *fakeVault) AddUser(ctx context.Context, name, password string) ([]user.Record, error) {
	if f.addFn != nil {
		return f.addFn(ctx, name, password)
	}
	return []user.Record{}, nil
}

func (f *fakeVault) Decrypt(ctx context.Context, passphrase string) ([]user.Record, error) {
	if f.decryptFn != nil {
		return f.decryptFn(ctx, passphrase)
	}
	return []user.Record{}, nil
}

func (f *fakeVault) List(ctx context.Context) ([]user.Record, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []user.Record{}, nil
}

type fakeMail struct {
	sendFn    func(ctx context.Context, recipient, message string) (email.Details, error)
	verifyFn  func(ctx context.Context, message, signature string) bool
	historyFn func(ctx context.Context, limit int) ([]email.Record, error)
}

func (f *fakeMail) Send(ctx context.Context, recipient, message string) (email.Details, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, recipient, message)
	}
	return email.Details{}, nil
}

func (f *fakeMail) Verify(ctx context.Context, message, signature string) bool {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, message, signature)
	}
	return false
}

func (f *fakeMail) History(ctx context.Context, limit int) ([]email.Record, error) {
	if f.historyFn != nil {
		return f.historyFn(ctx, limit)
	}
	return []email.Record{}, nil
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal response: %v body=%s", err, w.Body.String())
	}
	return out
}

type usersResponse struct {
	Users []user.Record `json:"users"`
}

func TestAddUser_ReturnsStoredList(t *testing.T) {
	var gotName, gotPassword string

	vault := &fakeVault{
		addFn: func(ctx context.Context, name, password string) ([]user.Record, error) {
			gotName, gotPassword = name, password
			return []user.Record{
				{Name: "ct-1", Password: "$2a$10$first"},
				{Name: "ct-2", Password: "$2a$10$second"},
			}, nil
		},
	}

	r := gin.New()
	r.POST("/add-user", handlers.NewUsersHandler(vault, discardLogger(), time.Second).AddUser)

	w := doJSON(t, r, http.MethodPost, "/add-user", `{"name":"alice","password":"hunter2"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotName != "alice" || gotPassword != "hunter2" {
		t.Fatalf("vault got name=%q password=%q", gotName, gotPassword)
	}

	resp := decode[usersResponse](t, w)
	if len(resp.Users) != 2 || resp.Users[0].Name != "ct-1" || resp.Users[1].Name != "ct-2" {
		t.Fatalf("unexpected users: %+v", resp.Users)
	}
}

func TestAddUser_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		addErr     error
		wantStatus int
		wantCode   string
	}{
		{name: "missing_name", body: `{"password":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "password_too_long", body: `{"name":"a","password":"x"}`, addErr: service.ErrPasswordTooLong, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "store_failure", body: `{"name":"a","password":"x"}`, addErr: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vault := &fakeVault{
				addFn: func(ctx context.Context, name, password string) ([]user.Record, error) {
					return nil, tt.addErr
				},
			}

			r := gin.New()
			r.POST("/add-user", handlers.NewUsersHandler(vault, discardLogger(), time.Second).AddUser)

			w := doJSON(t, r, http.MethodPost, "/add-user", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			resp := decode[handlers.APIError](t, w)
			if resp.Code != tt.wantCode {
				t.Fatalf("got code %q, want %q", resp.Code, tt.wantCode)
			}
			if resp.Error == "" {
				t.Fatalf("expected a non-empty error message")
			}
		})
	}
}

func TestDecrypt_AcceptsLegacyPasswordField(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "global_password", body: `{"globalPassword":"open sesame"}`, want: "open sesame"},
		{name: "legacy_password", body: `{"password":"open sesame"}`, want: "open sesame"},
		{name: "global_wins", body: `{"globalPassword":"a","password":"b"}`, want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			vault := &fakeVault{
				decryptFn: func(ctx context.Context, passphrase string) ([]user.Record, error) {
					got = passphrase
					return []user.Record{user.Hidden()}, nil
				},
			}

			r := gin.New()
			r.POST("/decrypt", handlers.NewUsersHandler(vault, discardLogger(), time.Second).Decrypt)

			w := doJSON(t, r, http.MethodPost, "/decrypt", tt.body)

			if w.Code != http.StatusOK {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
			}
			if got != tt.want {
				t.Fatalf("got passphrase %q, want %q", got, tt.want)
			}

			resp := decode[usersResponse](t, w)
			if len(resp.Users) != 1 || resp.Users[0].Name != user.NotYours {
				t.Fatalf("unexpected users: %+v", resp.Users)
			}
		})
	}
}

func TestDecrypt_MissingPassphrase(t *testing.T) {
	r := gin.New()
	r.POST("/decrypt", handlers.NewUsersHandler(&fakeVault{}, discardLogger(), time.Second).Decrypt)

	w := doJSON(t, r, http.MethodPost, "/decrypt", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDecrypt_EmptyStoreReturnsEmptyArray(t *testing.T) {
	r := gin.New()
	r.POST("/decrypt", handlers.NewUsersHandler(&fakeVault{}, discardLogger(), time.Second).Decrypt)

	w := doJSON(t, r, http.MethodPost, "/decrypt", `{"globalPassword":"x"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	// an empty list must be [] rather than null
	if !bytes.Contains(w.Body.Bytes(), []byte(`"users":[]`)) {
		t.Fatalf("expected empty users array, body=%s", w.Body.String())
	}
}

func TestSendEmail_Success(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mail := &fakeMail{
		sendFn: func(ctx context.Context, recipient, message string) (email.Details, error) {
			return email.Details{
				Recipient: recipient,
				Message:   message,
				Signed:    true,
				Time:      sentAt,
				Signature: "abc123",
			}, nil
		},
	}

	r := gin.New()
	r.POST("/send-email", handlers.NewMailHandler(mail, time.Second).SendEmail)

	w := doJSON(t, r, http.MethodPost, "/send-email", `{"email":"bob@example.com","message":"hi"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decode[struct {
		EmailDetails email.Details `json:"emailDetails"`
	}](t, w)

	d := resp.EmailDetails
	if d.Recipient != "bob@example.com" || d.Message != "hi" || !d.Signed || d.Signature != "abc123" {
		t.Fatalf("unexpected details: %+v", d)
	}
	if !d.Time.Equal(sentAt) {
		t.Fatalf("got time %v, want %v", d.Time, sentAt)
	}
}

func TestSendEmail_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "delivery_failed", err: service.ErrDeliveryFailed, wantStatus: http.StatusBadGateway, wantCode: "delivery_failed"},
		{name: "circuit_open", err: service.ErrMailUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "mail_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail := &fakeMail{
				sendFn: func(ctx context.Context, recipient, message string) (email.Details, error) {
					return email.Details{Recipient: recipient, Error: service.FailedDeliveryMessage}, tt.err
				},
			}

			r := gin.New()
			r.POST("/send-email", handlers.NewMailHandler(mail, time.Second).SendEmail)

			w := doJSON(t, r, http.MethodPost, "/send-email", `{"email":"bob@example.com","message":"hi"}`)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", w.Code, tt.wantStatus)
			}

			resp := decode[handlers.APIError](t, w)
			if resp.Code != tt.wantCode {
				t.Fatalf("got code %q, want %q", resp.Code, tt.wantCode)
			}
			if resp.Error != service.FailedDeliveryMessage {
				t.Fatalf("got error %q, want %q", resp.Error, service.FailedDeliveryMessage)
			}
		})
	}
}

func TestSendEmail_InvalidRecipient(t *testing.T) {
	called := false
	mail := &fakeMail{
		sendFn: func(ctx context.Context, recipient, message string) (email.Details, error) {
			called = true
			return email.Details{}, nil
		},
	}

	r := gin.New()
	r.POST("/send-email", handlers.NewMailHandler(mail, time.Second).SendEmail)

	w := doJSON(t, r, http.MethodPost, "/send-email", `{"email":"","message":"hi"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Fatalf("mailer must not be called for an invalid request")
	}
}

func TestVerifySignature(t *testing.T) {
	mail := &fakeMail{
		verifyFn: func(ctx context.Context, message, signature string) bool {
			return message == "hi" && signature == "good"
		},
	}

	r := gin.New()
	r.POST("/verify-signature", handlers.NewMailHandler(mail, time.Second).VerifySignature)

	tests := []struct {
		body string
		want bool
	}{
		{body: `{"message":"hi","signature":"good"}`, want: true},
		{body: `{"message":"hi","signature":"bad"}`, want: false},
		{body: `{"message":"hi!","signature":"good"}`, want: false},
	}

	for _, tt := range tests {
		w := doJSON(t, r, http.MethodPost, "/verify-signature", tt.body)

		if w.Code != http.StatusOK {
			t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
		}

		resp := decode[email.VerifySignatureResponse](t, w)
		if resp.IsValid != tt.want {
			t.Fatalf("body %s: got isValid=%v, want %v", tt.body, resp.IsValid, tt.want)
		}
	}
}

func TestListEmails_Limit(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantStatus int
	}{
		{name: "default", query: "", wantLimit: 50, wantStatus: http.StatusOK},
		{name: "explicit", query: "?limit=5", wantLimit: 5, wantStatus: http.StatusOK},
		{name: "capped", query: "?limit=1000", wantLimit: 200, wantStatus: http.StatusOK},
		{name: "zero", query: "?limit=0", wantStatus: http.StatusBadRequest},
		{name: "garbage", query: "?limit=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLimit := -1
			mail := &fakeMail{
				historyFn: func(ctx context.Context, limit int) ([]email.Record, error) {
					gotLimit = limit
					return []email.Record{}, nil
				},
			}

			r := gin.New()
			r.GET("/emails", handlers.NewMailHandler(mail, time.Second).ListEmails)

			req := httptest.NewRequest(http.MethodGet, "/emails"+tt.query, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotLimit != tt.wantLimit {
				t.Fatalf("got limit %d, want %d", gotLimit, tt.wantLimit)
			}
		})
	}
}

func TestReadyz(t *testing.T) {
	down := func(ctx context.Context) error { return errors.New("connection refused") }
	up := func(ctx context.Context) error { return nil }

	tests := []struct {
		name       string
		checks     map[string]handlers.PingFunc
		wantStatus int
	}{
		{name: "no_checks", checks: nil, wantStatus: http.StatusOK},
		{name: "all_up", checks: map[string]handlers.PingFunc{"db": up, "redis": up}, wantStatus: http.StatusOK},
		{name: "redis_down", checks: map[string]handlers.PingFunc{"db": up, "redis": down}, wantStatus: http.StatusServiceUnavailable},
		{name: "nil_check_skipped", checks: map[string]handlers.PingFunc{"db": nil}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/readyz", handlers.NewHealthHandler(tt.checks).Readyz)

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
