package service

import (
	"context"
	"fmt"

	"checkin-companion/internal/model"
	"checkin-companion/internal/repository"
	"checkin-companion/pkg/tasks"
)

// MessageProcessor 执行一条消息的持久化写入。
// 会话标识不是持久标识时，先按 (StudyID, Date) 找回或创建真实会话，再用找回的标识写入消息并标记已聊天。
type MessageProcessor struct {
	repo repository.StudyRepository
}

// NewMessageProcessor 创建一个新的 MessageProcessor 实例。
func NewMessageProcessor(repo repository.StudyRepository) *MessageProcessor {
	return &MessageProcessor{repo: repo}
}

// Process 实现 kafka.TaskProcessor。
func (p *MessageProcessor) Process(ctx context.Context, task tasks.MessageWriteTask) error {
	sessionID, err := p.resolveSession(ctx, task.StudyID, task.SessionID, task.Date)
	if err != nil {
		return err
	}

	msg := model.Message{
		ID:        task.MessageID,
		Text:      task.Text,
		Sender:    model.Sender(task.Sender),
		Timestamp: task.Timestamp,
	}
	if err := withRetry(ctx, func(ctx context.Context) error {
		return p.repo.InsertMessage(ctx, sessionID, msg)
	}); err != nil {
		return fmt.Errorf("insert message %s: %w", task.MessageID, err)
	}
	if err := withRetry(ctx, func(ctx context.Context) error {
		return p.repo.MarkChatted(ctx, sessionID)
	}); err != nil {
		return fmt.Errorf("mark session %s chatted: %w", sessionID, err)
	}
	return nil
}

func (p *MessageProcessor) resolveSession(ctx context.Context, studyID, sessionID, date string) (string, error) {
	if model.IsDurableID(sessionID) {
		return sessionID, nil
	}
	var sess *model.DailySession
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		sess, err = p.repo.GetOrCreateSession(ctx, studyID, date)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("recover session for %s on %s: %w", studyID, date, err)
	}
	return sess.ID, nil
}
