package scenario

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultPause is the think time after every iteration.
const DefaultPause = time.Second

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder receives the measurements of each iteration.
type Recorder interface {
	RecordRequest(name string, d time.Duration, failed bool, bytes int64)
	RecordCheck(name string, passed bool)
	RecordIteration(d time.Duration)
}

// Outcome is the result of one iteration.
type Outcome struct {
	Response *Response
	Checks   []CheckResult
}

// Passed reports whether every check passed.
func (o *Outcome) Passed() bool {
	for _, c := range o.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Action is the per-iteration work: one request, its checks and a pause.
// An Action is read-only once built and may be shared by every VU.
type Action struct {
	Name    string
	Method  string
	Target  Target
	Headers map[string]string
	Payload Payload
	Checks  []Check
	Pause   time.Duration
	// Timeout bounds the request alone, on top of the client's own timeout.
	Timeout time.Duration
}

// DefaultAction returns the generation request against host: POST /generate
// with a JSON body, checked for status 200, followed by a one second pause.
func DefaultAction(host string) *Action {
	return &Action{
		Name:    "generate",
		Method:  http.MethodPost,
		Target:  Target{BaseURL: host, Path: DefaultPath},
		Headers: map[string]string{"Content-Type": "application/json"},
		Payload: DefaultPayload(),
		Checks:  []Check{DefaultCheck()},
		Pause:   DefaultPause,
	}
}

// Do runs one iteration. Transport errors never escape: they are reported on
// Outcome.Response.Err and fail every check.
func (a *Action) Do(ctx context.Context, client Doer) *Outcome {
	resp := a.send(ctx, client)

	out := &Outcome{
		Response: resp,
		Checks:   make([]CheckResult, 0, len(a.Checks)),
	}
	for _, c := range a.Checks {
		out.Checks = append(out.Checks, CheckResult{Name: c.Name(), Passed: c.Evaluate(resp)})
	}

	a.pause(ctx)
	return out
}

// Iterate runs Do and reports the result to rec.
func (a *Action) Iterate(ctx context.Context, client Doer, rec Recorder) *Outcome {
	start := time.Now()
	out := a.Do(ctx, client)

	if rec != nil {
		resp := out.Response
		rec.RecordRequest(a.Name, resp.Duration, resp.Failed(), int64(len(resp.Body)))
		for _, c := range out.Checks {
			rec.RecordCheck(c.Name, c.Passed)
		}
		rec.RecordIteration(time.Since(start))
	}
	return out
}

func (a *Action) send(ctx context.Context, client Doer) (resp *Response) {
	resp = &Response{}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			resp.Err = fmt.Errorf("request panicked: %v", r)
		}
		resp.Duration = time.Since(start)
	}()

	req, err := a.buildRequest(ctx)
	if err != nil {
		resp.Err = err
		return resp
	}

	if a.Timeout > 0 {
		reqCtx, cancel := context.WithTimeout(req.Context(), a.Timeout)
		defer cancel()
		req = req.WithContext(reqCtx)
	}

	httpResp, err := client.Do(req)
	if err != nil {
		resp.Err = err
		return resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode
	resp.Header = httpResp.Header
	resp.Body, err = io.ReadAll(httpResp.Body)
	if err != nil {
		resp.Err = fmt.Errorf("read response body: %w", err)
	}
	return resp
}

func (a *Action) buildRequest(ctx context.Context) (*http.Request, error) {
	url, err := a.Target.URL()
	if err != nil {
		return nil, err
	}

	body, err := a.Payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	method := a.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (a *Action) pause(ctx context.Context) {
	if a.Pause <= 0 {
		return
	}
	t := time.NewTimer(a.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
