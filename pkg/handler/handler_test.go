package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agile-defense/evc/pkg/kernel"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/postgres"
	"github.com/agile-defense/evc/pkg/supervision"
	"github.com/agile-defense/evc/pkg/targets"
	"github.com/agile-defense/evc/pkg/vbc"
)

type fakeOnboard struct {
	mu     sync.Mutex
	out    kernel.Output
	inputs []kernel.Input
}

func (f *fakeOnboard) Last() kernel.Output { return f.out }

func (f *fakeOnboard) Enqueue(in kernel.Input) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
}

func serve(t *testing.T, path string, routes chi.Router, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(Correlation)
	r.Mount(path, routes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus(t *testing.T) {
	onboard := &fakeOnboard{}
	h := NewStatusHandler(onboard, "evc-1", zerolog.Nop())

	rec := serve(t, "/status", h.Routes(), httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	onboard.out = kernel.Output{
		Cycle:    12,
		Mode:     "FS",
		Level:    "N1",
		EstFront: 500,
		Speed:    20,
		State:    supervision.State{Monitoring: supervision.TargetSpeed, Supervision: supervision.Indication, Permitted: 25},
		Targets:  []targets.Target{{Kind: targets.KindEoA, Location: 900}},
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	rec = serve(t, "/status", h.Routes(), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "corr-1", rec.Header().Get(CorrelationHeader))

	var report messages.SupervisionReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "TSM", report.Monitoring)
	assert.Equal(t, "IndS", report.Supervision)
	assert.Equal(t, "evc-1", report.Envelope.Source)
	assert.Equal(t, uint64(12), report.Envelope.Cycle)
	assert.Equal(t, 25.0, report.Permitted)

	rec = serve(t, "/status", h.Routes(), httptest.NewRequest(http.MethodGet, "/status/targets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TargetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Targets, 1)
	assert.Equal(t, 400.0, resp.Targets[0].Distance)
}

func TestPostDriverAction(t *testing.T) {
	onboard := &fakeOnboard{}
	h := NewStatusHandler(onboard, "evc-1", zerolog.Nop())

	rec := serve(t, "/status", h.Routes(), httptest.NewRequest(http.MethodPost, "/status/driver/ack_trip", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(t, "/status", h.Routes(), httptest.NewRequest(http.MethodPost, "/status/driver/self_destruct", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Len(t, onboard.inputs, 1)
	assert.Equal(t, kernel.Input{Source: kernel.SourceDriver, Driver: kernel.AckTrip}, onboard.inputs[0])
}

func TestCovers(t *testing.T) {
	store, err := vbc.Open(filepath.Join(t.TempDir(), "vbcs.dat"), zerolog.Nop())
	require.NoError(t, err)
	h := NewCoverHandler(store, zerolog.Nop())
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	put := func(body string) *httptest.ResponseRecorder {
		return serve(t, "/covers", h.Routes(), httptest.NewRequest(http.MethodPut, "/covers", strings.NewReader(body)))
	}

	assert.Equal(t, http.StatusOK, put(`{"nid_c": 5, "nid_vbcmk": 3, "t_vbc": 2}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, put(`{"nid_c": 5, "nid_vbcmk": 64, "t_vbc": 2}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, put(`{"nid_c": 5, "nid_vbcmk": 3}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`{`).Code)

	rec := serve(t, "/covers", h.Routes(), httptest.NewRequest(http.MethodGet, "/covers", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list CoverListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Covers, 1)
	assert.Equal(t, 5, list.Covers[0].Country)
	assert.True(t, list.Covers[0].Expiry.Equal(now.Add(48*time.Hour)))

	rec = serve(t, "/covers", h.Routes(), httptest.NewRequest(http.MethodDelete, "/covers/5/3", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.List())

	rec = serve(t, "/covers", h.Routes(), httptest.NewRequest(http.MethodDelete, "/covers/x/3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeRecords struct {
	filter postgres.Filter
	err    error
}

func (f *fakeRecords) ListBrakeCommands(_ context.Context, filter postgres.Filter) ([]postgres.BrakeRow, error) {
	f.filter = filter
	return []postgres.BrakeRow{{Source: "evc-1", EmergencyBrake: true}}, f.err
}

func (f *fakeRecords) ListFaults(_ context.Context, filter postgres.Filter) ([]postgres.FaultRow, error) {
	f.filter = filter
	return nil, f.err
}

func (f *fakeRecords) ListTransitions(_ context.Context, filter postgres.Filter) ([]postgres.TransitionRow, error) {
	f.filter = filter
	return nil, f.err
}

func TestRecords(t *testing.T) {
	db := &fakeRecords{}
	h := NewRecordHandler(db, zerolog.Nop())

	rec := serve(t, "/records", h.Routes(), httptest.NewRequest(http.MethodGet,
		"/records/faults?source=evc-1&kind=not_linked&since=2026-01-01T00:00:00Z&limit=5&offset=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evc-1", db.filter.Source)
	assert.Equal(t, "not_linked", db.filter.Kind)
	require.NotNil(t, db.filter.Since)
	assert.Equal(t, 2026, db.filter.Since.Year())
	assert.Equal(t, 5, db.filter.Limit)
	assert.Equal(t, 10, db.filter.Offset)
	assert.Contains(t, rec.Body.String(), `"records":[]`)

	rec = serve(t, "/records", h.Routes(), httptest.NewRequest(http.MethodGet, "/records/brakes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Records []postgres.BrakeRow `json:"records"`
		Limit   int                 `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.True(t, resp.Records[0].EmergencyBrake)
	assert.Equal(t, 100, resp.Limit)

	rec = serve(t, "/records", h.Routes(), httptest.NewRequest(http.MethodGet, "/records/transitions?since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	db.err = errors.New("connection refused")
	rec = serve(t, "/records", h.Routes(), httptest.NewRequest(http.MethodGet, "/records/transitions", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebSocketBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub := NewWebSocketHub(nil, zerolog.Nop())
	hubCtx, stop := context.WithCancel(ctx)
	defer stop()
	go hub.Run(hubCtx)

	srv := httptest.NewServer(NewWebSocketHandler(hub, []string{"*"}, zerolog.Nop()))
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	payload, err := json.Marshal(&messages.BrakeCommand{
		Envelope:       messages.NewEnvelope("evc-1", "evc").WithCorrelation("corr-7", ""),
		EmergencyBrake: true,
	})
	require.NoError(t, err)
	hub.Broadcast(Forward(MessageTypeBrake, payload))

	var msg WebSocketMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, MessageTypeBrake, msg.Type)
	assert.Equal(t, "corr-7", msg.CorrelationID)
	assert.True(t, bytes.Contains(msg.Payload, []byte(`"emergency_brake":true`)))
}

func TestClientSubscriptions(t *testing.T) {
	c := &WebSocketClient{subscribed: map[string]bool{}}
	assert.True(t, c.isSubscribed(MessageTypeFault))

	c.subscribed[MessageTypeStatus] = true
	assert.True(t, c.isSubscribed(MessageTypeStatus))
	assert.False(t, c.isSubscribed(MessageTypeFault))
}
