package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/JadeCompass/internal/game"
	"github.com/Corphon/JadeCompass/internal/llm"
	"github.com/Corphon/JadeCompass/internal/storage"
	"github.com/Corphon/JadeCompass/internal/utils"
)

const testStory = `{
  "intro": "A jade compass hums in the dark.",
  "overallTheme": "Greed",
  "rounds": [
    {"round": 1, "intro": "A rope bridge sways.", "location": "Gorge",
     "narrativeState": {"location": "Gorge", "status": "Eager", "initItems": ["rope"]},
     "choices": [{"id": "r1_a", "title": "Cross slowly", "summary": "Careful steps", "isCorrect": true, "consequence": "You reach the far side", "finalItems": ["rope"]},
                 {"id": "r1_b", "title": "Run", "summary": "Speed", "isCorrect": false, "consequence": "The bridge snaps", "finalItems": []}]},
    {"round": 2, "intro": "A sealed door.", "location": "Temple",
     "narrativeState": {"location": "Temple", "status": "Tired", "initItems": ["rope"]},
     "choices": [{"id": "r2_a", "title": "Force it", "summary": "Brute force", "isCorrect": false, "consequence": "Darts fly", "finalItems": ["rope"]},
                 {"id": "r2_b", "title": "Read the glyphs", "summary": "Patience", "isCorrect": true, "consequence": "The door opens", "finalItems": ["rope", "idol"]}]}
  ]
}`

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBackend 所有后端类型共用的假实现
type fakeBackend struct {
	mu      sync.Mutex
	text    string
	err     error
	connErr error
	calls   int
	config  map[string]string
}

func (f *fakeBackend) Initialize(config map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config = config
	return nil
}

func (f *fakeBackend) GetName() string { return "fake" }

func (f *fakeBackend) lastConfig() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

func (f *fakeBackend) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text}, nil
}

func (f *fakeBackend) CheckConnection(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connErr
}

func (f *fakeBackend) set(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.err = text, err
}

type testServer struct {
	router  *gin.Engine
	backend *fakeBackend
	handler *Handler
	metrics *utils.MetricsCollector
}

type serverOption func(*Handler, *RouterOptions)

func withDiagnostics() serverOption {
	return func(h *Handler, _ *RouterOptions) {
		h.Diagnostics = llm.NewDiagnosticLog(10, true)
	}
}

func withStartLimit(n int) serverOption {
	return func(_ *Handler, o *RouterOptions) { o.StartRateLimit = n }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	backend := &fakeBackend{text: testStory}
	registry := llm.NewRegistry()
	for _, kind := range []string{"openai", "anthropic", "google", "mistral", "ollama"} {
		registry.Register(kind, func() llm.Provider { return backend })
	}

	metrics := utils.NewMetricsCollector()
	h := &Handler{
		Sessions:        storage.NewMemoryStore[*game.Session](10, time.Hour),
		WebSockets:      NewWebSocketManager(metrics),
		Metrics:         metrics,
		ProviderKeys:    map[string]string{"openai": "sk-test-1234567890"},
		DefaultProvider: "openai",
	}
	ro := RouterOptions{
		AllowedOrigins:  []string{"*"},
		StartRateLimit:  100,
		StartRateWindow: time.Minute,
		Metrics:         metrics,
	}
	for _, opt := range opts {
		opt(h, &ro)
	}

	var events llm.EventLogger = llm.NopEventLogger{}
	if h.Diagnostics != nil {
		events = h.Diagnostics
	}
	h.Factory = llm.NewFactory(llm.DefaultCatalog(),
		llm.WithRegistry(registry),
		llm.WithMetrics(metrics),
		llm.WithEventLogger(events),
	)

	return &testServer{router: NewRouter(h, ro), backend: backend, handler: h, metrics: metrics}
}

// envelope 统一响应格式的解码结构
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Message   string          `json:"message"`
	RequestID string          `json:"requestId"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && w.Code != http.StatusNoContent {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *testServer) createSession(t *testing.T, body interface{}) SessionResponse {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out SessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
