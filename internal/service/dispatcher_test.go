package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"checkin-companion/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowProcessor struct {
	done atomic.Int32
	err  error
}

func (p *slowProcessor) Process(context.Context, tasks.MessageWriteTask) error {
	time.Sleep(20 * time.Millisecond)
	p.done.Add(1)
	return p.err
}

func TestAsyncDispatcherDrainsOnClose(t *testing.T) {
	p := &slowProcessor{}
	d := NewAsyncDispatcher(p, nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		d.DispatchMessage(tasks.MessageWriteTask{MessageID: "m"})
	}
	assert.Less(t, time.Since(start), 20*time.Millisecond, "dispatch must not block")

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(5), p.done.Load())

	// 关闭后的任务被丢弃
	d.DispatchMessage(tasks.MessageWriteTask{MessageID: "late"})
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(5), p.done.Load())
}

// orderRecorder 记录任务的执行顺序，首个任务人为放慢。
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (p *orderRecorder) Process(_ context.Context, task tasks.MessageWriteTask) error {
	p.mu.Lock()
	first := len(p.order) == 0
	p.mu.Unlock()
	if first {
		time.Sleep(20 * time.Millisecond)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = append(p.order, task.MessageID)
	return nil
}

func TestAsyncDispatcherKeepsSessionOrder(t *testing.T) {
	p := &orderRecorder{}
	d := NewAsyncDispatcher(p, nil)

	for _, id := range []string{"user-1", "agent-1", "user-2", "agent-2"} {
		d.DispatchMessage(tasks.MessageWriteTask{StudyID: "MH482913", Date: "2024-05-01", MessageID: id})
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"user-1", "agent-1", "user-2", "agent-2"}, p.order)
}

func TestAsyncDispatcherRunsSessionsIndependently(t *testing.T) {
	p := &slowProcessor{}
	d := NewAsyncDispatcher(p, nil)

	start := time.Now()
	for _, id := range []string{"MH100001", "MH100002", "MH100003", "MH100004"} {
		d.DispatchMessage(tasks.MessageWriteTask{StudyID: id, Date: "2024-05-01", MessageID: id})
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(4), p.done.Load())
	assert.Less(t, time.Since(start), 70*time.Millisecond, "different sessions must not queue behind each other")
}

func TestAsyncDispatcherReportsErrors(t *testing.T) {
	rec := &errorRecorder{}
	d := NewAsyncDispatcher(&slowProcessor{err: errUnreachable}, rec.Hook)

	d.DispatchMessage(tasks.MessageWriteTask{MessageID: "m1"})
	d.Detach("archive", func(context.Context) error { return errors.New("boom") })
	require.NoError(t, d.Close(context.Background()))

	require.Equal(t, 2, rec.Len())
	names := []string{rec.errors[0].name, rec.errors[1].name}
	assert.ElementsMatch(t, []string{"message:m1", "archive"}, names)
}

func TestAsyncDispatcherCloseHonoursDeadline(t *testing.T) {
	d := NewAsyncDispatcher(&slowProcessor{}, nil)
	block := make(chan struct{})
	d.Detach("stuck", func(context.Context) error {
		<-block
		return nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestKafkaDispatcherFallsBackWithoutProducer(t *testing.T) {
	p := &slowProcessor{}
	d := NewKafkaDispatcher(NewAsyncDispatcher(p, nil))

	d.DispatchMessage(tasks.MessageWriteTask{MessageID: "m1"})
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(1), p.done.Load())
}

func TestArchiveObjectName(t *testing.T) {
	assert.Equal(t, "transcripts/MH482913/2024-05-01.json", TranscriptObjectName("MH482913", "2024-05-01"))
}
