// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkin-companion/internal/config"
	"checkin-companion/pkg/database"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/tasks"

	"github.com/patrickmn/go-cache"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 之后提交 offset，放弃该消息
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete persistence implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.MessageWriteTask) error
}

// DeliveryErrorHandler 在异步投递失败时被调用。
type DeliveryErrorHandler func(task tasks.MessageWriteTask, err error)

var producer *kafka.Writer

// Brokers 将逗号分隔的地址列表拆分为切片。
func Brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// InitProducer 初始化异步 Kafka 生产者。投递失败的任务交给 onError 处理。
func InitProducer(cfg config.KafkaConfig, onError DeliveryErrorHandler) {
	producer = &kafka.Writer{
		Addr:         kafka.TCP(Brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil || onError == nil {
				return
			}
			for _, m := range messages {
				var task tasks.MessageWriteTask
				if jsonErr := json.Unmarshal(m.Value, &task); jsonErr != nil {
					log.Errorf("无法解析投递失败的 Kafka 消息: %v", jsonErr)
					continue
				}
				onError(task, err)
			}
		},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceMessageTask 发送一个消息写入任务到 Kafka。同一会话的任务使用相同的 key，保证分区内有序。
func ProduceMessageTask(ctx context.Context, task tasks.MessageWriteTask) error {
	if producer == nil {
		return errors.New("kafka producer not initialized")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.StudyID + "/" + task.Date),
		Value: taskBytes,
	})
}

// CloseProducer 刷新缓冲区并关闭生产者。
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	err := producer.Close()
	producer = nil
	return err
}

// StartConsumer 启动一个 Kafka 消费者来处理消息写入任务，直到 ctx 被取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  Brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	attempts := newAttemptCounter()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}

		var task tasks.MessageWriteTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, offset: %d", err, m.Offset)
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		// 写入不随消费者关闭而中断
		if err := processor.Process(context.WithoutCancel(ctx), task); err != nil {
			log.Errorw("处理消息写入任务失败", "messageId", task.MessageID, "studyId", task.StudyID, "error", err)
			n, incErr := attempts.Incr(ctx, task.MessageID)
			if incErr != nil {
				// 计数异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if n >= maxAttempts {
				log.Errorf("消息写入任务多次失败(>=%d)，提交 offset 终止重试: messageId=%s", maxAttempts, task.MessageID)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			continue
		}

		attempts.Reset(ctx, task.MessageID)
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
}

const attemptsTTL = 24 * time.Hour

// attemptCounter 记录每个任务的失败次数。配置了 Redis 时跨实例共享，否则仅在进程内计数。
type attemptCounter struct {
	local *cache.Cache
}

func newAttemptCounter() *attemptCounter {
	return &attemptCounter{local: cache.New(attemptsTTL, time.Hour)}
}

func attemptsKey(id string) string {
	return fmt.Sprintf("kafka:attempts:%s", id)
}

func (a *attemptCounter) Incr(ctx context.Context, id string) (int64, error) {
	if database.RDB == nil {
		// 已存在时 Add 返回错误，忽略即可
		_ = a.local.Add(id, int64(0), cache.DefaultExpiration)
		return a.local.IncrementInt64(id, 1)
	}
	n, err := database.RDB.Incr(ctx, attemptsKey(id)).Result()
	if err != nil {
		return 0, err
	}
	_ = database.RDB.Expire(ctx, attemptsKey(id), attemptsTTL).Err()
	return n, nil
}

func (a *attemptCounter) Reset(ctx context.Context, id string) {
	if database.RDB == nil {
		a.local.Delete(id)
		return
	}
	_ = database.RDB.Del(ctx, attemptsKey(id)).Err()
}
