package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"jobfit-backend/internal/analyses"
	"jobfit-backend/internal/analysisclient"
	"jobfit-backend/internal/ratelimit"
	"jobfit-backend/internal/shared/auth"
	"jobfit-backend/internal/shared/storage/object"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memObjects struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deleted []string
	saveErr error
}

func newMemObjects() *memObjects { return &memObjects{blobs: make(map[string][]byte)} }

func (m *memObjects) Save(_ context.Context, ownerID, fileName string, r io.Reader) (object.Object, error) {
	if m.saveErr != nil {
		return object.Object{}, m.saveErr
	}
	key, err := object.NewKey(ownerID, fileName)
	if err != nil {
		return object.Object{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, err
	}
	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
	return object.Object{Key: key, Size: int64(len(data))}, nil
}

func (m *memObjects) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, object.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memObjects) put(ownerID, name string, data []byte) string {
	obj, _ := m.Save(context.Background(), ownerID, name, bytes.NewReader(data))
	return obj.Key
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, jobID string) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	d.ids = append(d.ids, jobID)
	d.mu.Unlock()
	return nil
}

type failingRepo struct {
	*MemoryRepo
	createErr     error
	transitionErr error
}

func (r *failingRepo) Create(ctx context.Context, j Job) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryRepo.Create(ctx, j)
}

func (r *failingRepo) Transition(ctx context.Context, id string, from []Status, u Update) (Job, error) {
	if r.transitionErr != nil && u.Status == StatusProcessing {
		return Job{}, r.transitionErr
	}
	return r.MemoryRepo.Transition(ctx, id, from, u)
}

// spyRepo records the status of every write the executor and scheduler make.
type spyRepo struct {
	*MemoryRepo
	mu      sync.Mutex
	created []Status
	writes  []Job
}

func (r *spyRepo) Create(ctx context.Context, j Job) error {
	r.mu.Lock()
	r.created = append(r.created, j.Status)
	r.mu.Unlock()
	return r.MemoryRepo.Create(ctx, j)
}

func (r *spyRepo) Transition(ctx context.Context, id string, from []Status, u Update) (Job, error) {
	j, err := r.MemoryRepo.Transition(ctx, id, from, u)
	if err == nil {
		r.record(j)
	}
	return j, err
}

func (r *spyRepo) Checkpoint(ctx context.Context, id string, cp Checkpoint) (Job, error) {
	j, err := r.MemoryRepo.Checkpoint(ctx, id, cp)
	if err == nil {
		r.record(j)
	}
	return j, err
}

func (r *spyRepo) record(j Job) {
	r.mu.Lock()
	r.writes = append(r.writes, j)
	r.mu.Unlock()
}

func (r *spyRepo) progressions() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.writes))
	for _, j := range r.writes {
		out = append(out, j.Progress)
	}
	return out
}

type stubAnalyzer struct {
	mu       sync.Mutex
	calls    []analysisclient.Request
	result   analysisclient.Result
	err      error
	started  chan struct{}
	block    bool
	panicVal any
}

func (a *stubAnalyzer) Analyze(ctx context.Context, req analysisclient.Request) (analysisclient.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	a.mu.Unlock()
	if a.panicVal != nil {
		panic(a.panicVal)
	}
	if a.started != nil {
		close(a.started)
	}
	if a.block {
		<-ctx.Done()
		return analysisclient.Result{}, ctx.Err()
	}
	return a.result, a.err
}

func (a *stubAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type stubRecorder struct {
	mu    sync.Mutex
	calls []analyses.RecordInput
	err   error
}

func (r *stubRecorder) Record(_ context.Context, in analyses.RecordInput) (analyses.Analysis, error) {
	r.mu.Lock()
	r.calls = append(r.calls, in)
	r.mu.Unlock()
	if r.err != nil {
		return analyses.Analysis{}, r.err
	}
	return analyses.Analysis{ID: "analysis-" + in.JobID, JobID: in.JobID, UserID: in.UserID}, nil
}

type stubSigner struct {
	token string
	err   error
	got   auth.Claims
}

func (s *stubSigner) Sign(claims auth.Claims, _ time.Duration) (string, error) {
	s.got = claims
	return s.token, s.err
}

var errBoom = errors.New("boom")

func sampleResult() analysisclient.Result {
	return analysisclient.Result{
		JobDetails: analysisclient.JobDetails{Title: "Backend Engineer", CompanyName: "Acme"},
		Analysis:   analysisclient.Analysis{MatchScore: 82, Strengths: []string{"Go"}},
		Raw:        []byte(`{"job_details":{"title":"Backend Engineer","company_name":"Acme"},"analysis":{"match_score":82}}`),
	}
}

type fixture struct {
	clock    *testClock
	repo     *spyRepo
	objects  *memObjects
	limiter  *ratelimit.Limiter
	dispatch *recordingDispatcher
	cancels  *CancelRegistry
	svc      *Service
	exec     *Executor
	analyzer *stubAnalyzer
	recorder *stubRecorder
	signer   *stubSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newClock()
	repo := &spyRepo{MemoryRepo: NewMemoryRepo()}
	repo.now = clock.Now
	objects := newMemObjects()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), 4, 24*time.Hour, ratelimit.WithClock(clock.Now))
	dispatch := &recordingDispatcher{}
	cancels := NewCancelRegistry()
	ids := 0
	f := &fixture{
		clock:    clock,
		repo:     repo,
		objects:  objects,
		limiter:  limiter,
		dispatch: dispatch,
		cancels:  cancels,
		analyzer: &stubAnalyzer{result: sampleResult()},
		recorder: &stubRecorder{},
		signer:   &stubSigner{token: "svc-token"},
	}
	f.svc = &Service{
		Repo:       repo,
		Limiter:    limiter,
		Dispatcher: dispatch,
		Objects:    objects,
		Cancels:    cancels,
		Now:        clock.Now,
		NewID: func() string {
			ids++
			return "job-" + strconv.Itoa(ids)
		},
	}
	f.exec = &Executor{
		Repo:     repo,
		Objects:  objects,
		Analyzer: f.analyzer,
		Recorder: f.recorder,
		Signer:   f.signer,
		Cancels:  cancels,
		Timeout:  5 * time.Minute,
		Now:      clock.Now,
	}
	return f
}

func (f *fixture) create(t *testing.T, owner string) Job {
	t.Helper()
	res, err := f.svc.Create(context.Background(), CreateInput{
		OwnerID:    owner,
		OwnerEmail: owner + "@example.com",
		ClientIP:   "203.0.113.7",
		Resume:     bytes.NewReader([]byte("%PDF-1.4 resume")),
		FileName:   "cv.pdf",
		JobURL:     "https://jobs.example.com/123",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return res.Job
}

// seedPending stores a job that has not been started yet.
func (f *fixture) seedPending(t *testing.T, id, owner string) Job {
	t.Helper()
	now := f.clock.Now()
	j := Job{
		ID:          id,
		UserID:      owner,
		Status:      StatusPending,
		CurrentStep: StepQueued,
		TotalSteps:  TotalSteps,
		FileName:    "cv.pdf",
		ResumeRef:   f.objects.put(owner, "cv.pdf", []byte("%PDF-1.4 resume")),
		JobURL:      "https://jobs.example.com/123",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.repo.MemoryRepo.Create(context.Background(), j); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return j
}
