package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/securedata/internal/domain/email"
	"github.com/geocoder89/securedata/internal/domain/user"
	"github.com/geocoder89/securedata/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details struct {
		JSON   string                `json:"json"`
		Field  string                `json:"field"`
		Fields []handlers.FieldError `json:"fields"`
	} `json:"details"`
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	r := gin.New()
	r.POST("/send-email", func(ctx *gin.Context) {
		var req email.SendEmailRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/send-email", bytes.NewBufferString(`{"email":"not-an-address"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}

	if resp.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Code)
	}
	if resp.Error == "" {
		t.Fatalf("expected a non-empty error string")
	}

	wantRules := map[string]string{
		"email":   "email",
		"message": "required",
	}

	found := map[string]handlers.FieldError{}
	for _, fieldErr := range resp.Details.Fields {
		found[fieldErr.Field] = fieldErr
	}

	for field, rule := range wantRules {
		fieldErr, ok := found[field]
		if !ok {
			t.Fatalf("missing field error for %q: %+v", field, resp.Details.Fields)
		}
		if fieldErr.Rule != rule {
			t.Fatalf("field %q rule mismatch: got %q want %q", field, fieldErr.Rule, rule)
		}
		if fieldErr.Message == "" {
			t.Fatalf("field %q should include a non-empty message", field)
		}
	}
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	r := gin.New()
	r.POST("/add-user", func(ctx *gin.Context) {
		var req user.AddUserRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusOK)
	})

	body := `{"name":"alice","password":42}`
	req := httptest.NewRequest(http.MethodPost, "/add-user", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}

	if resp.Details.JSON != "invalid_json_type" {
		t.Fatalf("expected invalid_json_type, got %q", resp.Details.JSON)
	}
	if resp.Details.Field != "password" {
		t.Fatalf("expected detail field to be password, got %q", resp.Details.Field)
	}
	if len(resp.Details.Fields) == 0 {
		t.Fatalf("expected at least one field error in details.fields")
	}

	fieldErr := resp.Details.Fields[0]
	if fieldErr.Rule != "type" {
		t.Fatalf("expected fields[0].rule=type, got %q", fieldErr.Rule)
	}
}

func TestBindJSON_SyntaxError(t *testing.T) {
	r := gin.New()
	r.POST("/decrypt", func(ctx *gin.Context) {
		var req user.DecryptRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/decrypt", bytes.NewBufferString(`{"globalPassword":`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}
	if resp.Details.JSON != "invalid_json_syntax" {
		t.Fatalf("expected invalid_json_syntax, got %q", resp.Details.JSON)
	}
}

func TestBindJSON_RequiredWithoutNamesJSONFields(t *testing.T) {
	r := gin.New()
	r.POST("/decrypt", func(ctx *gin.Context) {
		var req user.DecryptRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/decrypt", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}
	if len(resp.Details.Fields) != 1 {
		t.Fatalf("expected one field error, got %+v", resp.Details.Fields)
	}

	want := handlers.FieldError{
		Field:   "globalPassword",
		Rule:    "required_without",
		Param:   "password",
		Message: "is required when password is not set",
	}
	if resp.Details.Fields[0] != want {
		t.Fatalf("got %+v, want %+v", resp.Details.Fields[0], want)
	}
}

func TestBindJSON_BodyOverLimit(t *testing.T) {
	r := gin.New()
	r.POST("/send-email", func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, 16)

		var req email.SendEmailRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusOK)
	})

	body := `{"email":"bob@example.com","message":"well past sixteen bytes"}`
	req := httptest.NewRequest(http.MethodPost, "/send-email", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusRequestEntityTooLarge, w.Body.String())
	}
}
