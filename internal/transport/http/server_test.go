package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"personnage-gallery/internal/bootstrap"
	"personnage-gallery/internal/config"
	"personnage-gallery/internal/model"
	"personnage-gallery/internal/transport/http/response"
)

const bobStream = "{\"message\":{\"content\":\"```json\\n{\\\"name\\\":\"}}\n" +
	"{\"message\":{\"content\":\"\\\"Bob\\\",\\\"bio\\\":\\\"X\\\"}\\n```\"}}\n"

type fakeOllama struct {
	status int
	body   string
	calls  int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls++
	if r.URL.Path != "/api/chat" {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

type testServer struct {
	router *gin.Engine
	ollama *fakeOllama
	app    *bootstrap.App
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ollama := &fakeOllama{status: http.StatusOK, body: bobStream}
	inference := httptest.NewServer(ollama)
	t.Cleanup(inference.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		App:       config.AppConfig{Name: "personnage-gallery", Env: "test", GinMode: gin.TestMode},
		Database:  config.DatabaseConfig{URL: "sqlite://" + filepath.Join(dir, "app.db")},
		Upload:    config.UploadConfig{Dir: filepath.Join(dir, "uploaded_images"), MaxBytes: 1 << 20},
		Inference: config.InferenceConfig{BaseURL: inference.URL, Model: "llava", TimeoutSeconds: 5},
	}
	if mutate != nil {
		mutate(cfg)
	}

	app, err := bootstrap.NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("bootstrap error: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{router: NewRouter(app), ollama: ollama, app: app}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	return uploadRequestWithValues(t, field, filename, content, nil)
}

func uploadRequestWithValues(t *testing.T, field, filename string, content []byte, values map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, value := range values {
		if err := w.WriteField(key, value); err != nil {
			t.Fatalf("WriteField error: %v", err)
		}
	}
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile error: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload_personnage", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestPages(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/", "/import", "/galerie"} {
		if w := s.get(path); w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
	}
	if w := s.get("/import"); !strings.Contains(w.Body.String(), `name="image"`) {
		t.Error("expected the upload form to post an image field")
	}
}

func TestCard_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/carte/42", "/carte/abc", "/carte/0", "/nowhere"} {
		if w := s.get(path); w.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestUpload_SuccessRedirectsToCard(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels")))
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/carte/1" {
		t.Fatalf("expected redirect to /carte/1, got %q", loc)
	}

	card := s.get("/carte/1")
	if card.Code != http.StatusOK {
		t.Fatalf("expected card 200, got %d", card.Code)
	}
	if body := card.Body.String(); !strings.Contains(body, "Bob") || !strings.Contains(body, "/uploaded_images/hero.png") {
		t.Errorf("expected card to show the character and its image, got %s", body)
	}

	file := s.get("/uploaded_images/hero.png")
	if file.Code != http.StatusOK || file.Body.String() != "pixels" {
		t.Errorf("expected stored file to be served, got %d %q", file.Code, file.Body.String())
	}

	gallery := s.get("/galerie")
	if !strings.Contains(gallery.Body.String(), "/carte/1") {
		t.Error("expected gallery to link the new card")
	}

	api := s.get("/api/v1/images/1")
	if api.Code != http.StatusOK {
		t.Fatalf("expected api 200, got %d", api.Code)
	}
	data, _ := decodeEnvelope(t, api).Data.(map[string]any)
	if data["name"] != "Bob" || data["bio"] != "X" || data["filename"] != "hero.png" {
		t.Errorf("unexpected api payload %v", data)
	}
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		status   int
		contains string
	}{
		{
			name:     "no file part",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "", "", nil) },
			status:   http.StatusBadRequest,
			contains: "Aucun fichier envoyé",
		},
		{
			name:     "empty filename",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "image", "", nil) },
			status:   http.StatusBadRequest,
			contains: "Aucun fichier sélectionné",
		},
		{
			name:     "disallowed type",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "image", "notes.txt", []byte("hi")) },
			status:   http.StatusBadRequest,
			contains: "Format de fichier non autorisé",
		},
		{
			name:     "too large",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "image", "big.png", make([]byte, 2048)) },
			status:   http.StatusRequestEntityTooLarge,
			contains: "Fichier trop volumineux",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(cfg *config.Config) { cfg.Upload.MaxBytes = 1024 })

			w := s.do(tt.req(t))
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("expected body to contain %q, got %s", tt.contains, w.Body.String())
			}
			if s.ollama.calls != 0 {
				t.Errorf("expected no inference call, got %d", s.ollama.calls)
			}
		})
	}
}

func TestUpload_InferenceUnavailable(t *testing.T) {
	s := newTestServer(t, nil)
	s.ollama.status = http.StatusInternalServerError
	s.ollama.body = "model not loaded"

	w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels")))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ne répond pas") {
		t.Errorf("expected inference failure message, got %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "model not loaded") {
		t.Error("expected upstream details to stay out of the page")
	}
}

func TestUpload_UnreadableResponse(t *testing.T) {
	const reply = "{\"message\":{\"content\":\"I see a cat.\"}}\n"

	t.Run("debug off", func(t *testing.T) {
		s := newTestServer(t, nil)
		s.ollama.body = reply

		w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels")))
		if w.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "Impossible de lire la réponse") {
			t.Errorf("expected no-json message, got %s", body)
		}
		if strings.Contains(body, "I see a cat.") {
			t.Error("expected raw response to be hidden without debug")
		}
	})

	t.Run("debug on", func(t *testing.T) {
		s := newTestServer(t, func(cfg *config.Config) { cfg.App.Debug = true })
		s.ollama.body = reply

		w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels")))
		if !strings.Contains(w.Body.String(), "I see a cat.") {
			t.Errorf("expected raw response in debug mode, got %s", w.Body.String())
		}
	})

	t.Run("malformed", func(t *testing.T) {
		s := newTestServer(t, nil)
		s.ollama.body = "{\"message\":{\"content\":\"{invalid json\"}}\n"

		w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels")))
		if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), "mal formée") {
			t.Errorf("expected malformed message with 502, got %d %s", w.Code, w.Body.String())
		}
	})
}

func TestUpload_ServerSideFailures(t *testing.T) {
	tests := []struct {
		name     string
		breakFn  func(t *testing.T, s *testServer)
		contains string
		calls    int
	}{
		{
			name: "upload dir gone",
			breakFn: func(t *testing.T, s *testServer) {
				if err := os.RemoveAll(s.app.Store.Dir()); err != nil {
					t.Fatalf("RemoveAll error: %v", err)
				}
			},
			contains: "Erreur lors de la sauvegarde du fichier",
			calls:    0,
		},
		{
			name: "image table gone",
			breakFn: func(t *testing.T, s *testServer) {
				if err := s.app.DB.Migrator().DropTable(&model.Image{}); err != nil {
					t.Fatalf("DropTable error: %v", err)
				}
			},
			contains: "enregistrement du personnage",
			calls:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			tt.breakFn(t, s)

			w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels")))
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.contains) {
				t.Errorf("expected body to contain %q, got %s", tt.contains, body)
			}
			if strings.Contains(body, "no such") {
				t.Error("expected internal error details to stay out of the page")
			}
			if s.ollama.calls != tt.calls {
				t.Errorf("expected %d inference calls, got %d", tt.calls, s.ollama.calls)
			}
		})
	}
}

func TestUpload_NameFieldFallback(t *testing.T) {
	s := newTestServer(t, nil)
	s.ollama.body = "{\"message\":{\"content\":\"{\\\"name\\\":\\\"\\\",\\\"bio\\\":\\\"Masked rider\\\"}\"}}\n"

	req := uploadRequestWithValues(t, "image", "hero.png", []byte("pixels"), map[string]string{"nom": "Zorro"})
	if w := s.do(req); w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", w.Code, w.Body.String())
	}

	card := s.get("/carte/1")
	if body := card.Body.String(); !strings.Contains(body, "Zorro") || !strings.Contains(body, "Masked rider") {
		t.Errorf("expected card to use the submitted name, got %s", body)
	}
}

func TestDeleteImage(t *testing.T) {
	s := newTestServer(t, nil)

	if w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels"))); w.Code != http.StatusSeeOther {
		t.Fatalf("upload: expected 303, got %d", w.Code)
	}

	w := s.do(httptest.NewRequest(http.MethodDelete, "/delete_image/1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeEnvelope(t, w); resp.Code != response.CodeOK {
		t.Errorf("expected code 0, got %d", resp.Code)
	}

	if w := s.get("/carte/1"); w.Code != http.StatusNotFound {
		t.Errorf("expected card gone, got %d", w.Code)
	}
	if w := s.get("/uploaded_images/hero.png"); w.Code != http.StatusNotFound {
		t.Errorf("expected file gone, got %d", w.Code)
	}

	w = s.do(httptest.NewRequest(http.MethodDelete, "/delete_image/1", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
	if resp := decodeEnvelope(t, w); resp.Code != response.CodeImageNotFound {
		t.Errorf("expected code %d, got %d", response.CodeImageNotFound, resp.Code)
	}
}

func TestDeleteImage_FileRemovalFailure(t *testing.T) {
	s := newTestServer(t, nil)
	hook := logtest.NewGlobal()
	t.Cleanup(hook.Reset)

	if w := s.do(uploadRequest(t, "image", "hero.png", []byte("pixels"))); w.Code != http.StatusSeeOther {
		t.Fatalf("upload: expected 303, got %d", w.Code)
	}
	// A non-empty directory where the file was makes the removal fail.
	path := filepath.Join(s.app.Store.Dir(), "hero.png")
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(path, "child"), 0o755); err != nil {
		t.Fatalf("MkdirAll error: %v", err)
	}

	w := s.do(httptest.NewRequest(http.MethodDelete, "/delete_image/1", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeEnvelope(t, w); resp.Code != response.CodeStorage {
		t.Errorf("expected code %d, got %d", response.CodeStorage, resp.Code)
	}
	if w := s.get("/carte/1"); w.Code != http.StatusOK {
		t.Errorf("expected the row to survive, got %d", w.Code)
	}

	logged := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.ErrorLevel && entry.Message == "remove image file failed" && entry.Data[log.ErrorKey] != nil {
			logged = true
		}
	}
	if !logged {
		t.Error("expected the removal error to be logged")
	}
}

func TestListImagesAPI(t *testing.T) {
	s := newTestServer(t, nil)

	for _, name := range []string{"a.png", "b.png"} {
		if w := s.do(uploadRequest(t, "image", name, []byte(name))); w.Code != http.StatusSeeOther {
			t.Fatalf("upload %s: expected 303, got %d", name, w.Code)
		}
	}

	w := s.get("/api/v1/images")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	images, _ := decodeEnvelope(t, w).Data.([]any)
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %v", images)
	}
	first, _ := images[0].(map[string]any)
	if first["filename"] != "b.png" {
		t.Errorf("expected newest first, got %v", first)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.get("/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d: %s", w.Code, w.Body.String())
	}

	s.do(uploadRequest(t, "image", "hero.png", []byte("pixels")))
	w = s.get("/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `personnage_uploads_total{stage="persisted"} 1`) {
		t.Errorf("expected upload counter in exposition, got %s", w.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, nil)
	if id := s.get("/").Header().Get("X-Request-Id"); id == "" {
		t.Error("expected X-Request-Id on responses")
	}
}
