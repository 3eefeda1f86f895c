package service

import (
	"context"
	"sync"

	"checkin-companion/pkg/kafka"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/tasks"
)

// Dispatcher 执行脱离请求的后台工作。调用方从不等待结果，失败只通过错误回调记录。
type Dispatcher interface {
	// DispatchMessage 安排一条消息的持久化写入，立即返回。
	DispatchMessage(task tasks.MessageWriteTask)
	// Detach 在后台运行 fn。
	Detach(name string, fn func(ctx context.Context) error)
	// Close 停止接收新任务并等待已提交的任务完成，直到 ctx 结束。
	Close(ctx context.Context) error
}

// ErrorHook 接收后台任务的失败。
type ErrorHook func(name string, err error)

// LogErrorHook 把后台失败写入日志。
func LogErrorHook(name string, err error) {
	log.Errorw("后台任务失败", "task", name, "error", err)
}

// asyncDispatcher 为每个后台任务启动一个 goroutine。
// 同一会话 (studyID/date) 的消息写入按提交顺序逐条执行，与 Kafka 按 key 分区的语义一致。
type asyncDispatcher struct {
	processor kafka.TaskProcessor
	onError   ErrorHook
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	// queues 中存在的 key 表示该会话已有一个写入 goroutine 在运行
	queues    map[string][]tasks.MessageWriteTask
}

// NewAsyncDispatcher 创建一个进程内的 Dispatcher。
func NewAsyncDispatcher(processor kafka.TaskProcessor, onError ErrorHook) Dispatcher {
	if onError == nil {
		onError = LogErrorHook
	}
	return &asyncDispatcher{
		processor: processor,
		onError:   onError,
		queues:    make(map[string][]tasks.MessageWriteTask),
	}
}

// messageTaskKey 与 Kafka 消息 key 相同
func messageTaskKey(task tasks.MessageWriteTask) string {
	return task.StudyID + "/" + task.Date
}

func (d *asyncDispatcher) DispatchMessage(task tasks.MessageWriteTask) {
	key := messageTaskKey(task)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		log.Warnw("调度器已关闭，丢弃后台任务", "task", "message:"+task.MessageID)
		return
	}
	queue, running := d.queues[key]
	d.queues[key] = append(queue, task)
	if running {
		return
	}
	d.wg.Add(1)
	go d.drainQueue(key)
}

func (d *asyncDispatcher) drainQueue(key string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		task := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		if err := d.processor.Process(context.Background(), task); err != nil {
			d.onError("message:"+task.MessageID, err)
		}
	}
}

func (d *asyncDispatcher) Detach(name string, fn func(ctx context.Context) error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Warnw("调度器已关闭，丢弃后台任务", "task", name)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		if err := fn(context.Background()); err != nil {
			d.onError(name, err)
		}
	}()
}

func (d *asyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// kafkaDispatcher 把消息写入任务投递到 Kafka，由消费者执行；投递失败时回退到进程内执行。
type kafkaDispatcher struct {
	fallback Dispatcher
}

// NewKafkaDispatcher 创建一个基于 Kafka 的 Dispatcher。调用前需要先初始化 Kafka 生产者。
// fallback 用于非消息类后台任务以及投递失败的消息。
func NewKafkaDispatcher(fallback Dispatcher) Dispatcher {
	return &kafkaDispatcher{fallback: fallback}
}

func (d *kafkaDispatcher) DispatchMessage(task tasks.MessageWriteTask) {
	// 异步写入器立即返回；只有同步错误才在这里回退
	if err := kafka.ProduceMessageTask(context.Background(), task); err != nil {
		log.Warnw("投递 Kafka 失败，改为进程内写入", "messageId", task.MessageID, "error", err)
		d.fallback.DispatchMessage(task)
	}
}

func (d *kafkaDispatcher) Detach(name string, fn func(ctx context.Context) error) {
	d.fallback.Detach(name, fn)
}

func (d *kafkaDispatcher) Close(ctx context.Context) error {
	// 先刷新生产者：投递失败的消息会进入 fallback，再等待 fallback 排空
	if err := kafka.CloseProducer(); err != nil {
		log.Error("关闭 Kafka 生产者失败", err)
	}
	return d.fallback.Close(ctx)
}
