package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/simlink/core"
)

const versionDoc = `{
  "inputs": [],
  "outputs": [
    {"name": "meanDelay", "type": "double", "value": 0, "units": "MINUTE"},
    {"name": "served", "type": "int", "value": 0}
  ],
  "configuration": [
    {"name": "num_workers", "type": "int", "value": 0},
    {"name": "label", "type": "String", "value": "base"}
  ],
  "engine_settings": [
    {"name": "units", "type": "TimeUnits", "value": "MINUTE"},
    {"name": "start_time", "type": "double", "value": 0},
    {"name": "start_date", "type": "Date", "value": "2024-01-01T00:00:00.000Z"},
    {"name": "stop_time", "type": "double", "value": "Infinity"},
    {"name": "stop_date", "type": "Date", "value": null},
    {"name": "seed", "type": "Long", "value": null}
  ],
  "observation": [{"name": "queue", "type": "int", "value": 0}],
  "action": [{"name": "speed", "type": "double", "value": 0}]
}`

type recorded struct {
	method string
	path   string
	query  string
	body   string
}

// fakeServer mimics the engine server's HTTP surface.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recorded
	status   string
	failNext *core.EngineError
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		status: `{"state":"PAUSED","observation":{"queue":4},"stop":false,"sequence_id":2,"episode_num":1,"step_num":1,"time":30,"date":1704069000000,"progress":0.25,"message":null}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) { f.reply(w, r, versionDoc) })
	mux.HandleFunc("PUT /rl", func(w http.ResponseWriter, r *http.Request) { f.reply(w, r, "") })
	mux.HandleFunc("PATCH /rl", func(w http.ResponseWriter, r *http.Request) { f.reply(w, r, "") })
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		doc := f.status
		f.mu.Unlock()
		f.reply(w, r, doc)
	})
	mux.HandleFunc("GET /engine", func(w http.ResponseWriter, r *http.Request) {
		f.reply(w, r, `{"state":"RUNNING","engine_events":12,"engine_steps":0,"next_engine_step":"Infinity","next_engine_event":31.5,"time":30,"date":1704069000000,"progress":-1,"message":"","settings":{"units":"MINUTE","start_time":0,"seed":7}}`)
	})
	mux.HandleFunc("GET /outputs", func(w http.ResponseWriter, r *http.Request) {
		f.reply(w, r, `{"model_datas":[
			{"name":"served","type":"int","value":12},
			{"name":"meanDelay","type":"double","value":3.5,"units":"MINUTE"}]}`)
	})
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("DELETE /", func(w http.ResponseWriter, r *http.Request) { f.reply(w, r, "") })

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) reply(w http.ResponseWriter, r *http.Request, doc string) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
	fail := f.failNext
	f.failNext = nil
	f.mu.Unlock()

	if fail != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fail.Status)
		_, _ = io.WriteString(w, `{"status":400,"error":"`+fail.Err+`","message":"`+fail.Message+`","path":"`+r.URL.Path+`"}`)
		return
	}
	if doc == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

func (f *fakeServer) history() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func (f *fakeServer) count(method, path string) int {
	n := 0
	for _, r := range f.history() {
		if r.method == method && r.path == path {
			n++
		}
	}
	return n
}

func newChannel(t *testing.T, f *fakeServer, optFns ...func(o *Options)) *Channel {
	t.Helper()
	ch, err := New(f.URL, optFns...)
	require.NoError(t, err)
	return ch
}

func TestNew_InvalidEndpoint(t *testing.T) {
	_, err := New("127.0.0.1:8080")
	assert.Error(t, err)

	_, err = New("ftp://127.0.0.1")
	assert.Error(t, err)
}

func TestSchema_FetchedOnce(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)
	ctx := context.Background()

	s, err := ch.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"num_workers", "label"}, s.Configuration.Names())
	assert.Equal(t, []string{"speed"}, s.Action.Names())

	_, err = ch.Status(ctx)
	require.NoError(t, err)
	_, err = ch.Schema(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, f.count(http.MethodGet, "/version"))
}

func TestReset_SendsOrderedBody(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)
	ctx := context.Background()

	s, err := ch.Schema(ctx)
	require.NoError(t, err)
	cfg, err := s.Configuration.Resolve(core.Args{"num_workers": core.Literal(10)})
	require.NoError(t, err)
	settings := s.EngineSettings.Defaults()

	require.NoError(t, ch.Reset(ctx, core.ResetRequest{Configuration: cfg, EngineSettings: settings}))

	reqs := f.history()
	last := reqs[len(reqs)-1]
	assert.Equal(t, http.MethodPut, last.method)
	assert.Equal(t, "/rl", last.path)
	assert.True(t, strings.HasPrefix(last.body, `{"configuration":{"num_workers":10,"label":"base"},"engine_settings":{`), last.body)

	doc := gjson.Parse(last.body)
	assert.Equal(t, "MINUTE", doc.Get("engine_settings.units").String())
	assert.Equal(t, "Infinity", doc.Get("engine_settings.stop_time").String())
	assert.Equal(t, "2024-01-01T00:00:00.000Z", doc.Get("engine_settings.start_date").String())
}

func TestAct(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)
	ctx := context.Background()

	s, err := ch.Schema(ctx)
	require.NoError(t, err)
	act, err := s.Action.Resolve(core.Args{"speed": core.Literal(0.5)})
	require.NoError(t, err)

	require.NoError(t, ch.Act(ctx, act))

	reqs := f.history()
	last := reqs[len(reqs)-1]
	assert.Equal(t, http.MethodPatch, last.method)
	assert.JSONEq(t, `{"action":{"speed":0.5}}`, last.body)
}

func TestStatus(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)

	st, err := ch.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.StatePaused, st.State)
	q, err := st.Observation.Int("queue")
	require.NoError(t, err)
	assert.Equal(t, int64(4), q)
	assert.Equal(t, int64(2), st.SequenceID)
	assert.Equal(t, 0.25, st.Progress)
	require.NotNil(t, st.Date)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC), *st.Date)
}

func TestStatus_ErrorStateIsData(t *testing.T) {
	f := newFakeServer(t)
	f.status = `{"state":"ERROR","observation":{},"message":"java.lang.NullPointerException"}`
	ch := newChannel(t, f)

	st, err := ch.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StateError, st.State)
	assert.Equal(t, "java.lang.NullPointerException", st.Message)
}

func TestOutputs(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)

	out, err := ch.Outputs(context.Background(), []string{"served", "meanDelay"})
	require.NoError(t, err)
	assert.Equal(t, []string{"served", "meanDelay"}, out.Keys())

	reqs := f.history()
	assert.Equal(t, "names=served&names=meanDelay", reqs[len(reqs)-1].query)

	served, _ := out.Int("served")
	assert.Equal(t, int64(12), served)
	delay, _ := out.Float("meanDelay")
	assert.Equal(t, 3.5, delay)
}

func TestEngine(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)

	info, err := ch.Engine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.StateRunning, info.State)
	assert.Equal(t, int64(12), info.EngineEvents)
	assert.Equal(t, 31.5, info.NextEngineEvent)
	seed, _ := info.Settings.Int("seed")
	assert.Equal(t, int64(7), seed)
}

func TestEngineRejection(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)
	ctx := context.Background()

	s, err := ch.Schema(ctx)
	require.NoError(t, err)

	f.mu.Lock()
	f.failNext = &core.EngineError{Status: http.StatusBadRequest, Err: "Bad Request", Message: "engine is not paused"}
	f.mu.Unlock()

	err = ch.Act(ctx, s.Action.Defaults())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransport))

	var ee *core.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, http.StatusBadRequest, ee.Status)
	assert.Equal(t, "engine is not paused", ee.Message)
	assert.Equal(t, "/rl", ee.Path)
}

func TestEngineError_PlainBody(t *testing.T) {
	ee := engineError(http.StatusInternalServerError, "/status", []byte("boom\n"))
	assert.Equal(t, "boom", ee.Message)
	assert.Equal(t, "Internal Server Error", ee.Err)
	assert.Equal(t, "/status", ee.Path)
}

func TestRequestTimeout(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f, func(o *Options) { o.Timeout = 20 * time.Millisecond })

	_, err := ch.do(context.Background(), "slow", http.MethodGet, "/slow", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransport))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConnectionRefused(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)
	f.Close()

	_, err := ch.Status(context.Background())
	require.Error(t, err)

	var te *core.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "schema", te.Op)
}

func TestProcessExitedFailsFast(t *testing.T) {
	f := newFakeServer(t)
	done := make(chan struct{})
	ch := newChannel(t, f, func(o *Options) { o.Done = done })

	_, err := ch.Schema(context.Background())
	require.NoError(t, err)

	close(done)
	_, err = ch.Status(context.Background())
	assert.ErrorIs(t, err, ErrProcessExited)
	assert.True(t, errors.Is(err, core.ErrTransport))

	before := len(f.history())
	require.NoError(t, ch.Close())
	assert.Equal(t, before, len(f.history()))
}

func TestClose_SendsShutdownOnce(t *testing.T) {
	f := newFakeServer(t)
	ch := newChannel(t, f)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, 1, f.count(http.MethodDelete, "/"))
}
