package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pathology-records-server/internal/config"
	"pathology-records-server/internal/forms"
	"pathology-records-server/internal/models"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTokens(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		JWTSecret:                 "access-secret-for-tests-0123456789",
		JWTRefreshSecret:          "refresh-secret-for-tests-0123456789",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 1,
	}
	user := &models.User{BaseModel: models.BaseModel{ID: "user-1"}, Role: models.RoleDoctor}

	access, refresh, err := GenerateTokens(user, cfg)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ValidateToken(access, cfg.JWTSecret)
	if err != nil {
		t.Fatalf("access token rejected: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != models.RoleDoctor {
		t.Errorf("unexpected claims %+v", claims)
	}
	if _, err := ValidateToken(refresh, cfg.JWTSecret); err == nil {
		t.Error("refresh token must not validate with the access secret")
	}
	if _, err := ValidateToken(refresh, cfg.JWTRefreshSecret); err != nil {
		t.Errorf("refresh token rejected: %v", err)
	}

	_, again, err := GenerateTokens(user, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if again == refresh {
		t.Error("tokens issued back to back must differ")
	}
}

func TestRespondError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: fmt.Errorf("loading: %w", store.ErrNotFound), want: http.StatusNotFound},
		{name: "validation", err: &models.ValidationError{Fields: []string{"form.notes: must be at most 4000"}}, want: http.StatusBadRequest},
		{name: "duplicate mrn", err: repository.ErrDuplicateMRN, want: http.StatusConflict},
		{name: "has records", err: repository.ErrPatientHasRecords, want: http.StatusConflict},
		{name: "intake required", err: repository.ErrIntakeRequired, want: http.StatusUnprocessableEntity},
		{name: "unknown field", err: fmt.Errorf("%w: x.y", forms.ErrUnknownField), want: http.StatusBadRequest},
		{name: "unexpected", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			RespondError(c, zap.NewNop(), tt.err, "Thing not found")

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			var body ResponseData
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.want || body.Error == "" {
				t.Errorf("unexpected envelope %+v", body)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(body.Error, "connection reset") {
				t.Error("internal error details leaked to the client")
			}
		})
	}
}

func TestBindAndValidate(t *testing.T) {
	t.Parallel()

	type request struct {
		Email string `json:"email" validate:"required,email"`
		Age   int    `json:"age" validate:"min=0,max=150"`
	}

	tests := []struct {
		name   string
		body   string
		ok     bool
		fields int
	}{
		{name: "valid", body: `{"email": "a@b.co", "age": 40}`, ok: true},
		{name: "malformed json", body: `{"email":`, ok: false},
		{name: "rule failures", body: `{"email": "nope", "age": 200}`, ok: false, fields: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req request
			if got := BindAndValidate(c, &req); got != tt.ok {
				t.Fatalf("BindAndValidate = %v, want %v (%s)", got, tt.ok, rec.Body.String())
			}
			if tt.fields > 0 {
				var body struct {
					Data ValidationDetails `json:"data"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatal(err)
				}
				if len(body.Data.Fields) != tt.fields {
					t.Errorf("expected %d fields, got %v", tt.fields, body.Data.Fields)
				}
			}
		})
	}
}
