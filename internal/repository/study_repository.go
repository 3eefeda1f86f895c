// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"fmt"

	"checkin-companion/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSessionNotFound 表示按标识找不到每日会话。
var ErrSessionNotFound = errors.New("daily session not found")

// StudyRepository 定义了参与者、每日会话与消息的持久化操作。
// 远程（GORM）与本地（JSON 文件）两种实现可以互换，启动时选定其一。
type StudyRepository interface {
	// UpsertParticipant 幂等地登记参与者，已存在时忽略。
	UpsertParticipant(ctx context.Context, studyID string) error
	// GetOrCreateSession 按 (studyID, date) 获取或创建会话，消息按创建时间升序返回。
	GetOrCreateSession(ctx context.Context, studyID, date string) (*model.DailySession, error)
	// InsertMessage 写入一条消息，按消息 ID 幂等。
	InsertMessage(ctx context.Context, sessionID string, msg model.Message) error
	// MarkChatted 将会话标记为已聊天。
	MarkChatted(ctx context.Context, sessionID string) error
	// UpdateSurvey 写入问卷回答并标记完成；已完成的会话不会被覆盖。
	UpdateSurvey(ctx context.Context, sessionID string, resp model.SurveyResponse) error
}

// gormStudyRepository 是 StudyRepository 接口的 GORM 实现。
type gormStudyRepository struct {
	db *gorm.DB
}

// NewStudyRepository 创建一个新的基于 GORM 的 StudyRepository 实例。
func NewStudyRepository(db *gorm.DB) StudyRepository {
	return &gormStudyRepository{db: db}
}

// UpsertParticipant 插入参与者记录，主键冲突时什么也不做。
func (r *gormStudyRepository) UpsertParticipant(ctx context.Context, studyID string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Participant{StudyID: studyID}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// GetOrCreateSession 先以自然键插入（冲突忽略），再读回唯一的那一行。
// 并发调用也只会得到同一个会话标识。
func (r *gormStudyRepository) GetOrCreateSession(ctx context.Context, studyID, date string) (*model.DailySession, error) {
	db := r.db.WithContext(ctx)
	candidate := &model.DailySession{ID: uuid.NewString(), StudyID: studyID, Date: date}
	err := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(candidate).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create daily session: %w", err)
	}

	var sess model.DailySession
	err = db.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC")
	}).Where("study_id = ? AND date = ?", studyID, date).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load daily session: %w", err)
	}
	if sess.Messages == nil {
		sess.Messages = []model.Message{}
	}
	return &sess, nil
}

// InsertMessage 写入消息；重复投递的同一消息会被忽略。
func (r *gormStudyRepository) InsertMessage(ctx context.Context, sessionID string, msg model.Message) error {
	msg.SessionID = sessionID
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&msg).Error
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// MarkChatted 设置 has_chatted 标志。
func (r *gormStudyRepository) MarkChatted(ctx context.Context, sessionID string) error {
	err := r.db.WithContext(ctx).Model(&model.DailySession{}).
		Where("id = ?", sessionID).
		Update("has_chatted", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark session chatted: %w", err)
	}
	return nil
}

// UpdateSurvey 仅在会话尚未完成时写入问卷字段。
func (r *gormStudyRepository) UpdateSurvey(ctx context.Context, sessionID string, resp model.SurveyResponse) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.DailySession{}).
		Where("id = ? AND survey_completed = ?", sessionID, false).
		Select("survey_completed", "survey_data").
		Updates(&model.DailySession{SurveyCompleted: true, SurveyData: &resp})
	if res.Error != nil {
		return fmt.Errorf("failed to update survey: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// 没有行被更新：要么已完成（视为成功），要么会话不存在
	var count int64
	if err := db.Model(&model.DailySession{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check daily session: %w", err)
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}
