package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"pathology-records-server/internal/config"
	"pathology-records-server/internal/metrics"
	"pathology-records-server/internal/middleware"
	"pathology-records-server/internal/repository"
	"pathology-records-server/internal/store"
)

const asthmaForm = `{
	"symptoms": {"daytimeFrequency": "more_than_weekly", "nightAwakeningsPerMonth": 2, "wheezing": true},
	"control": {"actScore": 17},
	"spirometry": {"fev1Liters": 2.1, "fev1PercentPredicted": 72, "fvcLiters": 3.0},
	"treatment": {"ginaStep": 3, "controllers": [{"name": "budesonide/formoterol"}]}
}`

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"), make([]byte, 32)...)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	router *gin.Engine
	repos  *repository.Repositories
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Origin:                    "http://localhost:4200",
		Environment:               "development",
		JWTSecret:                 "access-secret-for-tests-0123456789",
		JWTRefreshSecret:          "refresh-secret-for-tests-0123456789",
		JWTExpirationMinutes:      15,
		JWTRefreshExpirationHours: 24,
		Attachments: config.AttachmentConfig{
			MaxBytes:     1024,
			AllowedTypes: []string{"application/pdf", "image/png"},
		},
	}
	collector := metrics.NewCollector("test")
	tracer := noop.NewTracerProvider().Tracer("test")
	mem := store.NewMemoryStore()
	repos := repository.New(store.Instrument(mem, collector.StoreOpDuration, tracer))

	router := NewRouter(Deps{
		Cfg:     cfg,
		Repos:   repos,
		Metrics: collector,
		Tracer:  tracer,
		Limiter: middleware.NewClientLimiter(1000, 1000),
		Log:     zap.NewNop(),
	})
	return &testServer{router: router, repos: repos}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return s.serve(t, req, token)
}

func (s *testServer) serve(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func (s *testServer) upload(t *testing.T, path, token, name string, content []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.serve(t, req, token)
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decoding data %s: %v", env.Data, err)
	}
	return out
}

type session struct {
	ID           string
	AccessToken  string
	RefreshToken string
}

func (s *testServer) register(t *testing.T, email, role string) session {
	t.Helper()
	rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"firstName": "Test", "lastName": "User", "email": email, "password": "password123", "role": role,
	})
	expectStatus(t, rec, http.StatusCreated)
	return s.login(t, email, "password123")
}

func (s *testServer) login(t *testing.T, email, password string) session {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	expectStatus(t, rec, http.StatusOK)
	data := decodeData[struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		User         struct {
			ID string `json:"id"`
		} `json:"user"`
	}](t, env)
	return session{ID: data.User.ID, AccessToken: data.AccessToken, RefreshToken: data.RefreshToken}
}

func TestAuthFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	t.Run("admin self-registration is refused", func(t *testing.T) {
		rec, env := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"firstName": "Eve", "lastName": "X", "email": "eve@example.com", "password": "password123", "role": "admin",
		})
		expectStatus(t, rec, http.StatusBadRequest)
		if fields := decodeData[struct{ Fields []string }](t, env).Fields; len(fields) != 1 || !strings.HasPrefix(fields[0], "role:") {
			t.Errorf("unexpected fields %v", fields)
		}
	})

	doc := s.register(t, "doc@example.com", "doctor")

	t.Run("duplicate email", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"firstName": "A", "lastName": "B", "email": "DOC@example.com", "password": "password123", "role": "patient",
		})
		expectStatus(t, rec, http.StatusConflict)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "doc@example.com", "password": "nope-nope"})
		expectStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("profile", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, "/api/v1/auth/profile", doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		if strings.Contains(string(env.Data), "passwordHash") {
			t.Error("profile leaks the password hash")
		}
		rec, _ = s.do(t, http.MethodPut, "/api/v1/auth/profile", doc.AccessToken, map[string]string{"firstName": "Gregory"})
		expectStatus(t, rec, http.StatusOK)
	})

	t.Run("refresh rotates the token", func(t *testing.T) {
		rec, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": doc.RefreshToken})
		expectStatus(t, rec, http.StatusOK)
		rotated := decodeData[struct {
			RefreshToken string `json:"refreshToken"`
		}](t, env)
		if rotated.RefreshToken == "" || rotated.RefreshToken == doc.RefreshToken {
			t.Fatal("expected a new refresh token")
		}

		rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": doc.RefreshToken})
		expectStatus(t, rec, http.StatusUnauthorized)

		// Replaying the revoked token revoked the rotated one too.
		rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": rotated.RefreshToken})
		expectStatus(t, rec, http.StatusUnauthorized)
	})

	t.Run("logout revokes", func(t *testing.T) {
		fresh := s.login(t, "doc@example.com", "password123")
		rec, _ := s.do(t, http.MethodPost, "/api/v1/auth/logout", fresh.AccessToken, map[string]string{"refreshToken": fresh.RefreshToken})
		expectStatus(t, rec, http.StatusOK)
		rec, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": fresh.RefreshToken})
		expectStatus(t, rec, http.StatusUnauthorized)
	})
}

func TestUserAdministration(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	if _, err := s.repos.Users.EnsureAdmin(context.Background(), "admin@example.com", "admin-password"); err != nil {
		t.Fatal(err)
	}
	admin := s.login(t, "admin@example.com", "admin-password")
	doc := s.register(t, "doc@example.com", "doctor")

	rec, _ := s.do(t, http.MethodGet, "/api/v1/users", doc.AccessToken, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec, env := s.do(t, http.MethodPost, "/api/v1/users", admin.AccessToken, map[string]string{
		"firstName": "Nia", "lastName": "Lee", "email": "nia@example.com", "password": "password123", "role": "doctor",
	})
	expectStatus(t, rec, http.StatusCreated)
	created := decodeData[struct {
		ID string `json:"id"`
	}](t, env)

	rec, env = s.do(t, http.MethodGet, "/api/v1/users?role=doctor", admin.AccessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if n := len(decodeData[[]json.RawMessage](t, env)); n != 2 {
		t.Errorf("expected 2 doctors, got %d", n)
	}

	rec, _ = s.do(t, http.MethodPut, "/api/v1/users/"+created.ID, admin.AccessToken, map[string]string{"email": "doc@example.com"})
	expectStatus(t, rec, http.StatusConflict)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/users/not-a-uuid", admin.AccessToken, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/users/"+admin.ID, admin.AccessToken, nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/users/"+created.ID, admin.AccessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	rec, _ = s.do(t, http.MethodGet, "/api/v1/users/"+created.ID, admin.AccessToken, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestPathologyRecordLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	if _, err := s.repos.Users.EnsureAdmin(context.Background(), "admin@example.com", "admin-password"); err != nil {
		t.Fatal(err)
	}
	admin := s.login(t, "admin@example.com", "admin-password")
	doc := s.register(t, "doc@example.com", "doctor")
	otherDoc := s.register(t, "other@example.com", "doctor")
	pat := s.register(t, "pat@example.com", "patient")
	stranger := s.register(t, "stranger@example.com", "patient")

	patientBody := map[string]string{
		"firstName": "Ada", "lastName": "Okafor", "birthDate": "1980-04-12", "sex": "female",
		"medicalRecordNumber": "MRN-42", "userId": pat.ID,
	}
	rec, env := s.do(t, http.MethodPost, "/api/v1/patients", doc.AccessToken, patientBody)
	expectStatus(t, rec, http.StatusCreated)
	patient := decodeData[struct {
		ID string `json:"id"`
	}](t, env)
	patientPath := "/api/v1/patients/" + patient.ID

	t.Run("patient access", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/patients", doc.AccessToken, patientBody)
		expectStatus(t, rec, http.StatusConflict)

		rec, _ = s.do(t, http.MethodGet, patientPath, pat.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		rec, _ = s.do(t, http.MethodGet, patientPath, stranger.AccessToken, nil)
		expectStatus(t, rec, http.StatusForbidden)
		rec, _ = s.do(t, http.MethodGet, "/api/v1/patients", pat.AccessToken, nil)
		expectStatus(t, rec, http.StatusForbidden)
		rec, _ = s.do(t, http.MethodGet, "/api/v1/patients/me", pat.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)

		rec, env := s.do(t, http.MethodGet, "/api/v1/patients?mrn=MRN-42", doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		if n := len(decodeData[[]json.RawMessage](t, env)); n != 1 {
			t.Errorf("expected 1 patient, got %d", n)
		}
	})

	recordsPath := patientPath + "/records"
	newRecord := func(kind, form string) map[string]any {
		return map[string]any{"pathology": "asthma", "kind": kind, "visitDate": "2024-05-02T10:00:00Z", "form": json.RawMessage(form)}
	}

	rec, _ = s.do(t, http.MethodPost, recordsPath, doc.AccessToken, newRecord("follow_up", asthmaForm))
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec, env = s.do(t, http.MethodPost, recordsPath, doc.AccessToken, newRecord("intake", `{"symptoms": {}, "control": {"actScore": 40}, "treatment": {"ginaStep": 1}}`))
	expectStatus(t, rec, http.StatusBadRequest)
	if fields := decodeData[struct{ Fields []string }](t, env).Fields; len(fields) != 2 {
		t.Errorf("expected daytimeFrequency and actScore errors, got %v", fields)
	}

	rec, _ = s.do(t, http.MethodPost, recordsPath, pat.AccessToken, newRecord("intake", asthmaForm))
	expectStatus(t, rec, http.StatusForbidden)

	type recordView struct {
		ID       string `json:"id"`
		Kind     string `json:"kind"`
		IntakeID string `json:"intakeId"`
		Form     struct {
			Control struct {
				ACTScore int    `json:"actScore"`
				Level    string `json:"level"`
			} `json:"control"`
			Spirometry struct {
				Ratio float64 `json:"fev1FvcRatio"`
			} `json:"spirometry"`
		} `json:"form"`
	}

	rec, env = s.do(t, http.MethodPost, recordsPath, doc.AccessToken, newRecord("intake", asthmaForm))
	expectStatus(t, rec, http.StatusCreated)
	intake := decodeData[recordView](t, env)
	if intake.Form.Control.Level != "partly_controlled" || intake.Form.Spirometry.Ratio != 0.7 {
		t.Errorf("derived fields not filled: %+v", intake.Form)
	}

	rec, env = s.do(t, http.MethodPost, recordsPath, doc.AccessToken, newRecord("follow_up", asthmaForm))
	expectStatus(t, rec, http.StatusCreated)
	followUp := decodeData[recordView](t, env)
	if followUp.IntakeID != intake.ID {
		t.Errorf("follow-up linked to %q, want %q", followUp.IntakeID, intake.ID)
	}

	t.Run("list", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, recordsPath, pat.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		list := decodeData[[]recordView](t, env)
		if len(list) != 2 || list[0].ID != followUp.ID {
			t.Errorf("expected follow-up first, got %+v", list)
		}
		rec, env = s.do(t, http.MethodGet, recordsPath+"?kind=intake", doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		if list := decodeData[[]recordView](t, env); len(list) != 1 || list[0].ID != intake.ID {
			t.Errorf("kind filter failed: %+v", list)
		}
		rec, _ = s.do(t, http.MethodGet, recordsPath+"?pathology=gout", doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusBadRequest)
		rec, _ = s.do(t, http.MethodGet, recordsPath, stranger.AccessToken, nil)
		expectStatus(t, rec, http.StatusForbidden)
	})

	recordPath := "/api/v1/records/" + followUp.ID

	t.Run("read access", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodGet, recordPath, pat.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		rec, _ = s.do(t, http.MethodGet, recordPath, stranger.AccessToken, nil)
		expectStatus(t, rec, http.StatusForbidden)
		rec, _ = s.do(t, http.MethodGet, "/api/v1/records/00000000-0000-0000-0000-000000000000", doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusNotFound)
	})

	t.Run("patch fields", func(t *testing.T) {
		rec, env := s.do(t, http.MethodPatch, recordPath+"/fields", doc.AccessToken, map[string]any{
			"fields": map[string]any{"control.actScore": 22, "notes": "better since step-up"},
		})
		expectStatus(t, rec, http.StatusOK)
		if got := decodeData[recordView](t, env); got.Form.Control.ACTScore != 22 || got.Form.Control.Level != "well_controlled" {
			t.Errorf("patch not applied: %+v", got.Form.Control)
		}

		rec, env = s.do(t, http.MethodPatch, recordPath+"/fields", doc.AccessToken, map[string]any{
			"fields": map[string]any{"spirometry.fev1Liters": 2.4},
		})
		expectStatus(t, rec, http.StatusOK)
		if got := decodeData[recordView](t, env); got.Form.Spirometry.Ratio != 0.8 {
			t.Errorf("FEV1/FVC not recomputed after patch: got %v, want 0.8", got.Form.Spirometry.Ratio)
		}

		rec, _ = s.do(t, http.MethodPatch, recordPath+"/fields", doc.AccessToken, map[string]any{"fields": map[string]any{"control.mood": 1}})
		expectStatus(t, rec, http.StatusBadRequest)

		// Clearing a required field fails whole-form validation.
		rec, _ = s.do(t, http.MethodPatch, recordPath+"/fields", doc.AccessToken, map[string]any{"fields": map[string]any{"treatment.controllers": []any{}}})
		expectStatus(t, rec, http.StatusBadRequest)

		rec, _ = s.do(t, http.MethodPatch, recordPath+"/fields", otherDoc.AccessToken, map[string]any{"fields": map[string]any{"notes": "x"}})
		expectStatus(t, rec, http.StatusForbidden)
	})

	t.Run("put", func(t *testing.T) {
		rec, env := s.do(t, http.MethodPut, recordPath, admin.AccessToken, map[string]any{"visitDate": "2024-05-09", "form": json.RawMessage(asthmaForm)})
		expectStatus(t, rec, http.StatusOK)
		if got := decodeData[recordView](t, env); got.Kind != "follow_up" || got.IntakeID != intake.ID {
			t.Errorf("identity changed on update: %+v", got)
		}
		rec, _ = s.do(t, http.MethodPut, recordPath, pat.AccessToken, map[string]any{"visitDate": "2024-05-09", "form": json.RawMessage(asthmaForm)})
		expectStatus(t, rec, http.StatusForbidden)
	})

	t.Run("attachments", func(t *testing.T) {
		rec, env := s.upload(t, recordPath+"/attachments", doc.AccessToken, "../../chest.png", pngBytes)
		expectStatus(t, rec, http.StatusCreated)
		info := decodeData[struct {
			ID       string `json:"id"`
			FileName string `json:"fileName"`
			FileType string `json:"fileType"`
		}](t, env)
		if info.FileName != "chest.png" || info.FileType != "image/png" {
			t.Errorf("unexpected attachment info %+v", info)
		}

		rec, _ = s.upload(t, recordPath+"/attachments", doc.AccessToken, "notes.png", []byte("just some text pretending"))
		expectStatus(t, rec, http.StatusUnsupportedMediaType)
		rec, _ = s.upload(t, recordPath+"/attachments", doc.AccessToken, "big.png", append(append([]byte{}, pngBytes...), make([]byte, 2048)...))
		expectStatus(t, rec, http.StatusRequestEntityTooLarge)

		rec, env = s.do(t, http.MethodGet, recordPath+"/attachments", pat.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		if n := len(decodeData[[]json.RawMessage](t, env)); n != 1 {
			t.Errorf("expected 1 attachment, got %d", n)
		}

		rec, _ = s.do(t, http.MethodGet, "/api/v1/attachments/"+info.ID, pat.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		if !bytes.Equal(rec.Body.Bytes(), pngBytes) || rec.Header().Get("Content-Type") != "image/png" {
			t.Errorf("unexpected download %q", rec.Header().Get("Content-Type"))
		}
		rec, _ = s.do(t, http.MethodGet, "/api/v1/attachments/"+info.ID, stranger.AccessToken, nil)
		expectStatus(t, rec, http.StatusForbidden)
	})

	t.Run("delete", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodDelete, patientPath, doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusConflict)

		rec, _ = s.do(t, http.MethodDelete, "/api/v1/records/"+intake.ID, doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusConflict)

		rec, _ = s.do(t, http.MethodDelete, recordPath, otherDoc.AccessToken, nil)
		expectStatus(t, rec, http.StatusForbidden)
		rec, _ = s.do(t, http.MethodDelete, recordPath, doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		rec, _ = s.do(t, http.MethodDelete, "/api/v1/records/"+intake.ID, admin.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)

		rec, _ = s.do(t, http.MethodDelete, patientPath, doc.AccessToken, nil)
		expectStatus(t, rec, http.StatusOK)
	})
}

func TestFormsAndOperationalEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	doc := s.register(t, "doc@example.com", "doctor")

	rec, env := s.do(t, http.MethodGet, "/api/v1/forms", doc.AccessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if n := len(decodeData[[]json.RawMessage](t, env)); n != 4 {
		t.Errorf("expected 4 forms, got %d", n)
	}

	rec, env = s.do(t, http.MethodGet, "/api/v1/forms/sleep_apnea", doc.AccessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(string(env.Data), "sleepStudy.ahi") {
		t.Error("definition does not list its field paths")
	}

	rec, _ = s.do(t, http.MethodGet, "/api/v1/forms/gout", doc.AccessToken, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/forms", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec, env = s.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeData[struct{ Status string }](t, env).Status; got != "UP" {
		t.Errorf("expected health status UP, got %q", got)
	}

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "test_store_operation_duration_seconds") {
		t.Error("store metrics missing from /metrics")
	}
}
