package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/pdf-gateway/internal/engine"
	"github.com/cuongbtq/pdf-gateway/internal/pipeline"
	"github.com/cuongbtq/pdf-gateway/internal/tools"
	"github.com/cuongbtq/pdf-gateway/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJobID  = "9a8b7c6d-5e4f-4a3b-9c2d-1e0f9a8b7c6d"
	testUserID = "0b7d6c1e-2f3a-4b5c-8d9e-0f1a2b3c4d5e"
)

type finishCall struct {
	status   string
	result   any
	errorMsg string
}

type fakeStore struct {
	mu           sync.Mutex
	job          domain.Job
	claimErr     error
	finishErr    error
	requeueErr   error
	heartbeatErr error
	staleIDs     []string
	staleBefore  time.Time

	finished   []finishCall
	requeued   []string
	released   []string
	heartbeats int
}

func (f *fakeStore) ClaimJob(_ context.Context, jobID, workerID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	job := f.job
	job.JobID = jobID
	job.WorkerID = workerID
	job.Status = domain.JobStatusRunning
	return &job, nil
}

func (f *fakeStore) FinishJob(_ context.Context, _, _, status string, result any, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, finishCall{status: status, result: result, errorMsg: errorMsg})
	return f.finishErr
}

func (f *fakeStore) RequeueJob(_ context.Context, jobID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, jobID)
	return f.requeueErr
}

func (f *fakeStore) ReleaseJob(_ context.Context, jobID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, jobID)
	return f.requeueErr
}

func (f *fakeStore) UpdateJobHeartbeat(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return f.heartbeatErr
}

func (f *fakeStore) ResetStaleJobs(_ context.Context, staleBefore time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleBefore = staleBefore
	return f.staleIDs, nil
}

func (f *fakeStore) snapshot() ([]finishCall, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]finishCall(nil), f.finished...), append([]string(nil), f.requeued...)
}

type runnerFunc func(ctx context.Context, job pipeline.Job) (*pipeline.Result, error)

func (f runnerFunc) Run(ctx context.Context, job pipeline.Job) (*pipeline.Result, error) {
	return f(ctx, job)
}

type fakeQueue struct {
	mu         sync.Mutex
	deliveries chan amqp.Delivery
	published  [][]byte
	publishErr error
}

func (q *fakeQueue) Consume(string, int) (<-chan amqp.Delivery, error) {
	return q.deliveries, nil
}

func (q *fakeQueue) Publish(_ context.Context, body []byte, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, body)
	return nil
}

// fakeAck records how a single message was settled
type fakeAck struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAck) Ack(bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(_ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

// amqpAck settles raw deliveries by tag
type amqpAck struct {
	mu       sync.Mutex
	outcomes map[uint64]string
}

func (a *amqpAck) set(tag uint64, outcome string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes[tag] = outcome
	return nil
}

func (a *amqpAck) Ack(tag uint64, _ bool) error { return a.set(tag, "ack") }

func (a *amqpAck) Nack(tag uint64, _ bool, requeue bool) error {
	if requeue {
		return a.set(tag, "requeue")
	}
	return a.set(tag, "nack")
}

func (a *amqpAck) Reject(tag uint64, _ bool) error { return a.set(tag, "reject") }

func (a *amqpAck) outcome(tag uint64) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcomes[tag]
}

func newTestWorker(store JobStore, runner JobRunner, queue Queue) *Worker {
	return NewWorker(&Config{
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		WorkerID:          "worker-test",
		Store:             store,
		Runner:            runner,
		Queue:             queue,
		Concurrency:       2,
		JobTimeout:        5 * time.Second,
		HeartbeatInterval: 10 * time.Millisecond,
		StaleAfter:        time.Minute,
	})
}

func testStore(retryCount, maxRetries int) *fakeStore {
	return &fakeStore{job: domain.Job{
		UserID:     testUserID,
		JobType:    "compress",
		Payload:    `{"input_paths":["uploads/` + testUserID + `/a.pdf"],"params":{"level":5}}`,
		RetryCount: retryCount,
		MaxRetries: maxRetries,
	}}
}

func succeed(_ context.Context, job pipeline.Job) (*pipeline.Result, error) {
	return &pipeline.Result{
		OutputPath: "results/" + job.UserID + "/" + job.ID + "/compress.pdf",
		Filename:   "compress.pdf",
		Size:       42,
	}, nil
}

func failWith(err error) runnerFunc {
	return func(context.Context, pipeline.Job) (*pipeline.Result, error) {
		return nil, err
	}
}

func engineFailure(status int) error {
	return &pipeline.StageError{
		Stage: pipeline.StageEngine,
		Err:   &engine.Error{Engine: tools.EngineStirling, StatusCode: status, Message: http.StatusText(status)},
	}
}

func TestWorker_HandleMessage(t *testing.T) {
	tests := []struct {
		name        string
		store       *fakeStore
		runner      runnerFunc
		wantAck     bool
		wantRequeue bool
		wantStatus  string
		wantRetried bool
	}{
		{
			name:       "success",
			store:      testStore(0, 3),
			runner:     succeed,
			wantAck:    true,
			wantStatus: domain.JobStatusCompleted,
		},
		{
			name:        "transient engine failure is retried",
			store:       testStore(0, 3),
			runner:      failWith(engineFailure(http.StatusServiceUnavailable)),
			wantRequeue: true,
			wantRetried: true,
		},
		{
			name:       "transient failure after last retry",
			store:      testStore(3, 3),
			runner:     failWith(engineFailure(http.StatusServiceUnavailable)),
			wantStatus: domain.JobStatusFailed,
		},
		{
			name:       "rejected document is not retried",
			store:      testStore(0, 3),
			runner:     failWith(engineFailure(http.StatusBadRequest)),
			wantStatus: domain.JobStatusFailed,
		},
		{
			name: "invalid payload",
			store: func() *fakeStore {
				s := testStore(0, 3)
				s.job.Payload = "{"
				return s
			}(),
			runner: func(context.Context, pipeline.Job) (*pipeline.Result, error) {
				panic("runner must not be called")
			},
			wantStatus: domain.JobStatusFailed,
		},
		{
			name: "job canceled while running",
			store: func() *fakeStore {
				s := testStore(0, 3)
				s.finishErr = domain.ErrJobNotRunning
				return s
			}(),
			runner:     succeed,
			wantAck:    true,
			wantStatus: domain.JobStatusCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorker(tt.store, tt.runner, &fakeQueue{})
			ack := &fakeAck{}

			w.handleMessage("worker-test-0", &domain.JobMessage{JobID: testJobID, Delivery: ack})

			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, !tt.wantAck, ack.nacked)
			assert.Equal(t, tt.wantRequeue, ack.requeue)

			finished, requeued := tt.store.snapshot()
			if tt.wantStatus != "" {
				require.Len(t, finished, 1)
				assert.Equal(t, tt.wantStatus, finished[0].status)
			} else {
				assert.Empty(t, finished)
			}
			if tt.wantRetried {
				assert.Equal(t, []string{testJobID}, requeued)
			} else {
				assert.Empty(t, requeued)
			}
		})
	}
}

func TestWorker_RunReceivesStoredJob(t *testing.T) {
	store := testStore(0, 3)
	var got pipeline.Job
	w := newTestWorker(store, runnerFunc(func(ctx context.Context, job pipeline.Job) (*pipeline.Result, error) {
		got = job
		return succeed(ctx, job)
	}), &fakeQueue{})

	w.handleMessage("worker-test-0", &domain.JobMessage{JobID: testJobID, Delivery: &fakeAck{}})

	assert.Equal(t, testJobID, got.ID)
	assert.Equal(t, testUserID, got.UserID)
	assert.Equal(t, "compress", got.Type)
	assert.Equal(t, float64(5), got.Payload.Params["level"])

	finished, _ := store.snapshot()
	require.Len(t, finished, 1)
	result, ok := finished[0].result.(*pipeline.Result)
	require.True(t, ok)
	assert.Equal(t, "results/"+testUserID+"/"+testJobID+"/compress.pdf", result.OutputPath)
}

func TestWorker_AlreadyClaimed(t *testing.T) {
	store := testStore(0, 3)
	store.claimErr = domain.ErrJobAlreadyClaimed
	called := false
	w := newTestWorker(store, runnerFunc(func(context.Context, pipeline.Job) (*pipeline.Result, error) {
		called = true
		return nil, nil
	}), &fakeQueue{})
	ack := &fakeAck{}

	w.handleMessage("worker-test-0", &domain.JobMessage{JobID: testJobID, Delivery: ack})

	assert.False(t, called)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestWorker_ClaimDatabaseErrorIsRequeued(t *testing.T) {
	store := testStore(0, 3)
	store.claimErr = errors.New("connection reset")
	w := newTestWorker(store, runnerFunc(succeed), &fakeQueue{})
	ack := &fakeAck{}

	w.handleMessage("worker-test-0", &domain.JobMessage{JobID: testJobID, Delivery: ack})

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestWorker_HeartbeatStopsCanceledJob(t *testing.T) {
	store := testStore(0, 3)
	store.heartbeatErr = domain.ErrJobNotRunning
	store.finishErr = domain.ErrJobNotRunning

	w := newTestWorker(store, runnerFunc(func(ctx context.Context, _ pipeline.Job) (*pipeline.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), &fakeQueue{})
	ack := &fakeAck{}

	done := make(chan struct{})
	go func() {
		w.handleMessage("worker-test-0", &domain.JobMessage{JobID: testJobID, Delivery: ack})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not stopped after its heartbeat was rejected")
	}

	assert.True(t, ack.acked)
	_, requeued := store.snapshot()
	assert.Empty(t, requeued)
}

func TestWorker_ShutdownReleasesRunningJob(t *testing.T) {
	store := testStore(3, 3)
	started := make(chan struct{})
	w := newTestWorker(store, runnerFunc(func(ctx context.Context, _ pipeline.Job) (*pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}), &fakeQueue{})
	w.heartbeatInterval = time.Hour
	ack := &fakeAck{}

	done := make(chan struct{})
	go func() {
		w.handleMessage("worker-test-0", &domain.JobMessage{JobID: testJobID, Delivery: ack})
		close(done)
	}()

	<-started
	w.cancelRuns()
	<-done

	finished, requeued := store.snapshot()
	assert.Empty(t, requeued, "shutdown must not spend a retry")
	assert.Empty(t, finished)
	store.mu.Lock()
	assert.Equal(t, []string{testJobID}, store.released)
	store.mu.Unlock()
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestWorker_ReapStaleJobs(t *testing.T) {
	store := testStore(0, 3)
	store.staleIDs = []string{testJobID, "5f0c4a2e-8d1b-4c3a-9e7f-6b5a4d3c2b1a"}
	queue := &fakeQueue{}
	w := newTestWorker(store, runnerFunc(succeed), queue)

	before := time.Now()
	n := w.reapStaleJobs(context.Background())

	assert.Equal(t, 2, n)
	assert.WithinDuration(t, before.Add(-time.Minute), store.staleBefore, time.Second)
	require.Len(t, queue.published, 2)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(queue.published[0], &msg))
	assert.Equal(t, testJobID, msg["job_id"])
}

func TestWorker_ReapPublishFailure(t *testing.T) {
	store := testStore(0, 3)
	store.staleIDs = []string{testJobID}
	w := newTestWorker(store, runnerFunc(succeed), &fakeQueue{publishErr: errors.New("channel closed")})

	assert.Equal(t, 0, w.reapStaleJobs(context.Background()))
}

func TestWorker_StartDispatchesDeliveries(t *testing.T) {
	store := testStore(0, 3)
	acks := &amqpAck{outcomes: map[uint64]string{}}
	queue := &fakeQueue{deliveries: make(chan amqp.Delivery, 3)}
	queue.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 1, Body: []byte(`not json`)}
	queue.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 2, Body: []byte(`{"job_id":"nope"}`)}
	queue.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: 3, Body: []byte(`{"job_id":"` + testJobID + `"}`)}
	close(queue.deliveries)

	w := newTestWorker(store, runnerFunc(succeed), queue)

	err := w.Start(context.Background())
	assert.ErrorIs(t, err, errDeliveriesClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.Equal(t, "nack", acks.outcome(1))
	assert.Equal(t, "nack", acks.outcome(2))
	assert.Equal(t, "ack", acks.outcome(3))
}

func TestWorker_StartStopsOnContextCancel(t *testing.T) {
	queue := &fakeQueue{deliveries: make(chan amqp.Delivery)}
	w := newTestWorker(testStore(0, 3), runnerFunc(succeed), queue)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	assert.NoError(t, w.Stop(stopCtx))
}

func TestShouldRequeueJob(t *testing.T) {
	w := newTestWorker(testStore(0, 3), runnerFunc(succeed), &fakeQueue{})

	assert.True(t, w.shouldRequeueJob(domain.NewRetryableError(errors.New("engine down"))))
	assert.False(t, w.shouldRequeueJob(domain.ErrJobAlreadyClaimed))
	assert.False(t, w.shouldRequeueJob(domain.ErrMaxRetriesExceeded))
	assert.False(t, w.shouldRequeueJob(domain.ErrInvalidPayload))
	assert.False(t, w.shouldRequeueJob(errors.New("unknown")))
}
