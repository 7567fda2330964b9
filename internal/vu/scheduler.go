package vu

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/genload/internal/scenario"
)

// Recorder is what the scheduler reports to: the per-iteration measurements
// plus the live VU count.
type Recorder interface {
	scenario.Recorder
	SetActiveVUs(n int)
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	// MaxConnsPerHost limits the total connections per host; 0 is unlimited.
	MaxConnsPerHost int
	IdleConnTimeout time.Duration

	DisableKeepAlives  bool
	DisableCompression bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// UseSharedClient makes every VU use one client and connection pool.
	UseSharedClient bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		UseSharedClient:     true,
	}
}

// NewHTTPClient builds a client from cfg.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Scheduler owns the VU pool of one run. Executors use it to grow and shrink
// the number of running VUs.
type Scheduler struct {
	action   *scenario.Action
	recorder Recorder
	httpCfg  HTTPClientConfig
	log      logrus.FieldLogger

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextID atomic.Int32

	sharedClient *http.Client

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler for action. A nil logger discards.
func NewScheduler(action *scenario.Action, rec Recorder, httpCfg HTTPClientConfig, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	s := &Scheduler{
		action:   action,
		recorder: rec,
		httpCfg:  httpCfg,
		log:      log,
		vus:      make(map[int]*VirtualUser),
	}
	if httpCfg.UseSharedClient {
		s.sharedClient = NewHTTPClient(httpCfg)
	}
	return s
}

// Spawn registers a new idle VU without starting it.
func (s *Scheduler) Spawn() *VirtualUser {
	id := int(s.nextID.Add(1))

	client := s.sharedClient
	if client == nil {
		client = NewHTTPClient(s.httpCfg)
	}
	v := New(id, s.action, client, s.recorder)

	s.vusMu.Lock()
	s.vus[id] = v
	s.vusMu.Unlock()

	return v
}

// Start runs v on its own goroutine. The VU is forgotten once it stops.
func (s *Scheduler) Start(ctx context.Context, v *VirtualUser) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.remove(v.ID)

		s.log.WithField("vu", v.ID).Debug("vu started")
		v.Run(ctx)
		s.log.WithFields(logrus.Fields{
			"vu":         v.ID,
			"iterations": v.Iterations(),
		}).Debug("vu stopped")
	}()
}

func (s *Scheduler) remove(id int) {
	s.vusMu.Lock()
	delete(s.vus, id)
	s.vusMu.Unlock()
	s.UpdateMetrics()
}

// VU returns a VU by ID, or nil if not found.
func (s *Scheduler) VU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// ActiveCount returns the number of VUs that have not been asked to stop.
func (s *Scheduler) ActiveCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	n := 0
	for _, v := range s.vus {
		if st := v.State(); st == StateIdle || st == StateRunning {
			n++
		}
	}
	return n
}

// ScaleTo starts or stops VUs until target are active and returns the new
// active count. Newest VUs are stopped first.
func (s *Scheduler) ScaleTo(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}
	current := s.ActiveCount()

	switch {
	case target > current:
		for i := current; i < target; i++ {
			s.Start(ctx, s.Spawn())
		}
	case target < current:
		s.stopNewest(current - target)
	}

	s.UpdateMetrics()
	return s.ActiveCount()
}

func (s *Scheduler) stopNewest(n int) {
	s.vusMu.RLock()
	ids := make([]int, 0, len(s.vus))
	for id, v := range s.vus {
		if st := v.State(); st == StateIdle || st == StateRunning {
			ids = append(ids, id)
		}
	}
	s.vusMu.RUnlock()

	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	for i := 0; i < n && i < len(ids); i++ {
		if v := s.VU(ids[i]); v != nil {
			v.RequestStop()
		}
	}
}

// StopAll asks every VU to stop.
func (s *Scheduler) StopAll() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, v := range s.vus {
		v.RequestStop()
	}
}

// UpdateMetrics publishes the active VU count.
func (s *Scheduler) UpdateMetrics() {
	if s.recorder != nil {
		s.recorder.SetActiveVUs(s.ActiveCount())
	}
}

// Wait blocks until every started VU has returned or timeout passes. It
// reports whether all VUs returned.
func (s *Scheduler) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Shutdown stops every VU, waits up to timeout, then releases idle
// connections.
func (s *Scheduler) Shutdown(timeout time.Duration) bool {
	s.StopAll()
	ok := s.Wait(timeout)
	if !ok {
		s.log.WithField("timeout", timeout).Warn("vus still running after shutdown timeout")
	}
	if s.sharedClient != nil {
		s.sharedClient.CloseIdleConnections()
	}
	return ok
}
