package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redraft/features/transform"
	"redraft/internal/middleware"
	"redraft/internal/worker"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	ctxs []context.Context
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, jobID)
	f.ctxs = append(f.ctxs, ctx)
	return f.err
}

func taskMessage(t *testing.T, payload transform.TaskPayload) *nsq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return nsq.NewMessage(nsq.MessageID{}, body)
}

func TestTaskConsumer_RunsJob(t *testing.T) {
	runner := &fakeRunner{}
	consumer := worker.NewTaskConsumer(runner)

	err := consumer.HandleMessage(taskMessage(t, transform.TaskPayload{JobID: "job-1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, runner.runs)
}

func TestTaskConsumer_PropagatesCorrelationID(t *testing.T) {
	runner := &fakeRunner{}
	consumer := worker.NewTaskConsumer(runner)

	err := consumer.HandleMessage(taskMessage(t, transform.TaskPayload{JobID: "job-1", CorrelationID: "corr-42"}))
	require.NoError(t, err)
	require.Len(t, runner.ctxs, 1)
	assert.Equal(t, "corr-42", middleware.GetCorrelationID(runner.ctxs[0]))
}

func TestTaskConsumer_DropsBadMessages(t *testing.T) {
	runner := &fakeRunner{}
	consumer := worker.NewTaskConsumer(runner)

	cases := []struct {
		name string
		body []byte
	}{
		{"Empty", nil},
		{"MalformedJSON", []byte(`{not json`)},
		{"MissingJobID", []byte(`{}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := nsq.NewMessage(nsq.MessageID{}, tc.body)
			assert.NoError(t, consumer.HandleMessage(msg), "bad messages must be dropped, not requeued")
		})
	}
	assert.Empty(t, runner.runs)
}

func TestTaskConsumer_UnknownJobNotRequeued(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("lookup: %w", transform.ErrJobNotFound)}
	consumer := worker.NewTaskConsumer(runner)

	err := consumer.HandleMessage(taskMessage(t, transform.TaskPayload{JobID: "ghost"}))
	assert.NoError(t, err, "a job unknown to this instance can never succeed on retry")
}

func TestTaskConsumer_OtherErrorsRequeue(t *testing.T) {
	runner := &fakeRunner{err: errors.New("transient wiring failure")}
	consumer := worker.NewTaskConsumer(runner)

	err := consumer.HandleMessage(taskMessage(t, transform.TaskPayload{JobID: "job-1"}))
	assert.Error(t, err)
}

func TestResultConsumer_AcksAllStates(t *testing.T) {
	consumer := worker.NewResultConsumer()

	for _, state := range []string{"completed", "partially_failed", "failed", "cancelled"} {
		body, err := json.Marshal(transform.ResultPayload{JobID: "job-1", State: state})
		require.NoError(t, err)
		msg := nsq.NewMessage(nsq.MessageID{}, body)
		assert.NoError(t, consumer.HandleMessage(msg))
	}

	assert.NoError(t, consumer.HandleMessage(nsq.NewMessage(nsq.MessageID{}, []byte(`oops`))))
	assert.NoError(t, consumer.HandleMessage(nsq.NewMessage(nsq.MessageID{}, nil)))
}
