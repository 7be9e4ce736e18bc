package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/popstash/internal/capture"
	"go.klb.dev/popstash/internal/clip"
	"go.klb.dev/popstash/internal/grpcservice"
	"go.klb.dev/popstash/internal/history"
	"go.klb.dev/popstash/internal/hub"
	"go.klb.dev/popstash/internal/metrics"
	"go.klb.dev/popstash/internal/resolve"
)

type limit int

func (l limit) MaxHistoryItems() int  { return int(l) }
func (l limit) UnpinMovesToTop() bool { return false }

type fixedResolver string

func (f fixedResolver) Resolve(context.Context) (resolve.Resolution, error) {
	return resolve.Resolution{Text: string(f), Stage: resolve.StageAccessibility}, nil
}

type env struct {
	srv   *httptest.Server
	store *history.Store
	clip  *clip.Memory
}

func newEnv(t *testing.T, token string) *env {
	t.Helper()
	store := history.New(limit(10))
	mem := clip.NewMemory()
	h := hub.New()
	orch := capture.New(capture.Config{
		Resolver:  fixedResolver("selected words"),
		Store:     store,
		Clipboard: mem,
		Events:    h,
	})
	svc := grpcservice.New(grpcservice.Config{
		Capture: orch,
		History: store,
		Events:  h,
		Info:    grpcservice.Info{Version: "test", StartedAt: time.Now()},
		Token:   token,
	})
	mux, err := New(svc, metrics.New().Handler())
	require.NoError(t, err)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: store, clip: mem}
}

func (e *env) do(t *testing.T, method, path, body string, hdr ...string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestTriggerAndConfirmOverHTTP(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.do(t, http.MethodPost, "/v1/trigger", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var p grpcservice.Prompt
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "selected words", p.Text)
	assert.Equal(t, "accessibility", p.Stage)

	resp, body = e.do(t, http.MethodGet, "/v1/pending", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending grpcservice.Prompt
	require.NoError(t, json.Unmarshal(body, &pending))
	assert.Equal(t, p.ID, pending.ID)

	resp, body = e.do(t, http.MethodPost, "/v1/prompts/"+p.ID+"/confirm", `{"text":"chosen words"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got, _ := e.clip.ReadText()
	assert.Equal(t, "chosen words", got)

	resp, _ = e.do(t, http.MethodGet, "/v1/pending", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/v1/items?q=CHOSEN", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []grpcservice.Item
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "chosen words", items[0].Preview)
}

func TestSecondaryTriggerAndCancel(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.do(t, http.MethodPost, "/v1/trigger?secondary=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p grpcservice.Prompt
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "secondary", p.Trigger)

	resp, _ = e.do(t, http.MethodPost, "/v1/prompts/"+p.ID+"/cancel", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodPost, "/v1/prompts/"+p.ID+"/cancel", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "FailedPrecondition maps to 400")

	resp, _ = e.do(t, http.MethodPost, "/v1/trigger?secondary=maybe", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestItemRoutes(t *testing.T) {
	e := newEnv(t, "")
	png := []byte{0x89, 'P', 'N', 'G', 1, 2}
	imgID := e.store.Insert(history.Image(png), history.Source{})
	textID := e.store.Insert(history.Text("plain"), history.Source{})

	resp, body := e.do(t, http.MethodGet, "/v1/items/"+imgID+"/content", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, png, body)

	resp, body = e.do(t, http.MethodPost, "/v1/items/"+imgID+"/pin", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", strings.TrimSpace(string(body)))

	resp, _ = e.do(t, http.MethodPost, "/v1/items/"+textID+"/copy", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ := e.clip.ReadText()
	assert.Equal(t, "plain", got)

	resp, _ = e.do(t, http.MethodDelete, "/v1/items/"+textID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodDelete, "/v1/items/"+textID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, http.MethodDelete, "/v1/items", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, e.store.Len())
}

func TestStatusAndMetrics(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.do(t, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st grpcservice.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, "idle", st.State)

	resp, body = e.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "popstash_")
}

func TestBearerTokenForwarded(t *testing.T) {
	e := newEnv(t, "hunter2")

	resp, _ := e.do(t, http.MethodGet, "/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/v1/status", "", "Authorization", "Bearer hunter2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
