package scenario

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/genload/pkg/jsonschema"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func newStatusServer(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var seen []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        data,
		})
		mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

type countingRecorder struct {
	mu         sync.Mutex
	requests   int
	failed     int
	checks     map[string][2]int
	iterations int
}

func (r *countingRecorder) RecordRequest(name string, d time.Duration, failed bool, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	if failed {
		r.failed++
	}
}

func (r *countingRecorder) RecordCheck(name string, passed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.checks == nil {
		r.checks = make(map[string][2]int)
	}
	c := r.checks[name]
	if passed {
		c[0]++
	} else {
		c[1]++
	}
	r.checks[name] = c
}

func (r *countingRecorder) RecordIteration(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations++
}

func quickAction(host string) *Action {
	a := DefaultAction(host)
	a.Pause = 10 * time.Millisecond
	return a
}

func TestAction_SendsGenerationRequest(t *testing.T) {
	srv, seen := newStatusServer(t, http.StatusOK, "")

	out := quickAction(srv.URL).Do(context.Background(), srv.Client())
	require.NotNil(t, out)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/generate", req.path)
	assert.Equal(t, "application/json", req.contentType)
	assert.JSONEq(t, `{"prompt":"Hello World","options":{"num_tokens":10}}`, string(req.body))
}

func TestAction_Status200PassesEveryIteration(t *testing.T) {
	srv, _ := newStatusServer(t, http.StatusOK, `{"response":"hi"}`)
	a := quickAction(srv.URL)

	for i := 0; i < 5; i++ {
		out := a.Do(context.Background(), srv.Client())
		require.Len(t, out.Checks, 1)
		assert.Equal(t, "is status 200", out.Checks[0].Name)
		assert.True(t, out.Checks[0].Passed, "iteration %d", i)
		assert.True(t, out.Passed())
		assert.False(t, out.Response.Failed())
	}
}

func TestAction_Status500FailsCheck(t *testing.T) {
	srv, _ := newStatusServer(t, http.StatusInternalServerError, `{"error":"boom"}`)

	out := quickAction(srv.URL).Do(context.Background(), srv.Client())

	require.Len(t, out.Checks, 1)
	assert.False(t, out.Checks[0].Passed)
	assert.Equal(t, http.StatusInternalServerError, out.Response.StatusCode)
	assert.True(t, out.Response.Failed())
	assert.NoError(t, out.Response.Err)
}

func TestAction_ConnectionRefusedFailsCheck(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	a := quickAction(host)

	var out *Outcome
	require.NotPanics(t, func() {
		out = a.Do(context.Background(), http.DefaultClient)
	})

	require.Len(t, out.Checks, 1)
	assert.False(t, out.Checks[0].Passed)
	assert.Equal(t, 0, out.Response.StatusCode)
	assert.Error(t, out.Response.Err)
	assert.True(t, out.Response.Failed())
}

func TestAction_MissingHostFailsCheck(t *testing.T) {
	out := quickAction("").Do(context.Background(), http.DefaultClient)

	assert.False(t, out.Passed())
	assert.Error(t, out.Response.Err)
}

func TestAction_OneIterationEndToEnd(t *testing.T) {
	srv, _ := newStatusServer(t, http.StatusOK, "")

	a := DefaultAction(srv.URL)
	a.Pause = 200 * time.Millisecond
	rec := &countingRecorder{}

	start := time.Now()
	out := a.Iterate(context.Background(), srv.Client(), rec)
	elapsed := time.Since(start)

	assert.True(t, out.Passed())
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond, "iteration must pause before returning")

	assert.Equal(t, 1, rec.requests)
	assert.Equal(t, 0, rec.failed)
	assert.Equal(t, 1, rec.iterations)
	assert.Equal(t, [2]int{1, 0}, rec.checks["is status 200"])
}

func TestAction_PauseHonoursCancellation(t *testing.T) {
	srv, _ := newStatusServer(t, http.StatusOK, "")

	a := DefaultAction(srv.URL)
	a.Pause = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	a.Do(ctx, srv.Client())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAction_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := quickAction(srv.URL)
	a.Timeout = 50 * time.Millisecond

	out := a.Do(context.Background(), srv.Client())
	assert.False(t, out.Passed())
	assert.Error(t, out.Response.Err)
}

func TestJSONPathCheck(t *testing.T) {
	resp := &Response{StatusCode: 200, Body: []byte(`{"model":"mistral","response":"Hello there","done":true}`)}

	assert.True(t, JSONPathCheck{Path: "$.response"}.Evaluate(resp))
	assert.True(t, JSONPathCheck{Path: "$.model", Match: MatchEquals, Value: "mistral"}.Evaluate(resp))
	assert.True(t, JSONPathCheck{Path: "response", Match: MatchContains, Value: "Hello"}.Evaluate(resp))
	assert.False(t, JSONPathCheck{Path: "$.missing"}.Evaluate(resp))
	assert.False(t, JSONPathCheck{Path: "$.model", Match: MatchEquals, Value: "llama"}.Evaluate(resp))
	assert.False(t, JSONPathCheck{Path: "$.response"}.Evaluate(&Response{Body: []byte("not json")}))

	assert.Equal(t, "has $.response", JSONPathCheck{Path: "$.response"}.Name())
}

func TestSchemaCheck(t *testing.T) {
	schema, err := jsonschema.Compile(`{"type":"object","required":["response"]}`)
	require.NoError(t, err)

	c := SchemaCheck{Schema: schema}
	assert.True(t, c.Evaluate(&Response{StatusCode: 200, Body: []byte(`{"response":"x"}`)}))
	assert.False(t, c.Evaluate(&Response{StatusCode: 200, Body: []byte(`{"other":"x"}`)}))
	assert.False(t, c.Evaluate(&Response{StatusCode: 200, Body: []byte(``)}))
	assert.Equal(t, "matches schema", c.Name())
}

func TestStatusCheck_Name(t *testing.T) {
	assert.Equal(t, "is status 200", DefaultCheck().Name())
	assert.Equal(t, "is status 201", StatusCheck{Code: 201}.Name())
}

func TestScenario_Validate(t *testing.T) {
	assert.NoError(t, Default("localhost:8000").Validate())

	s := Default("")
	assert.ErrorContains(t, s.Validate(), "target host is required")

	s = Default("localhost:8000")
	s.Action.Checks = nil
	assert.Error(t, s.Validate())

	s = Default("localhost:8000")
	s.Profile = nil
	assert.Error(t, s.Validate())
}
