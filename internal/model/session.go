package model

import (
	"time"

	"github.com/google/uuid"
)

// SurveyResponse 是一次每日问卷的回答，附加到会话后不可再修改。
type SurveyResponse struct {
	Date              string `json:"date"`
	Mood              *int   `json:"mood,omitempty"`
	Helpfulness       *int   `json:"helpfulness,omitempty"`
	Comments          string `json:"comments,omitempty"`
	ExternalCompleted *bool  `json:"externalCompleted,omitempty"`
}

// DailySession 是某位参与者在某一天的对话与问卷状态。
// (StudyID, Date) 唯一；ID 为空表示该会话尚未在存储中落地。
type DailySession struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id,omitempty"`
	StudyID         string          `gorm:"type:varchar(64);not null;uniqueIndex:uidx_study_date" json:"-"`
	Date            string          `gorm:"type:varchar(10);not null;uniqueIndex:uidx_study_date" json:"date"`
	Messages        []Message       `gorm:"foreignKey:SessionID" json:"messages"`
	SurveyCompleted bool            `gorm:"not null;default:false" json:"surveyCompleted"`
	HasChatted      bool            `gorm:"not null;default:false" json:"hasChatted"`
	SurveyData      *SurveyResponse `gorm:"serializer:json;type:text" json:"surveyData,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"-"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"-"`
}

func (DailySession) TableName() string {
	return "daily_sessions"
}

// IsDurableID 报告 id 是否为存储分配的标识（UUID）。
// 空串或客户端占位符都不是持久标识，写入前需要先按 (StudyID, Date) 找回真实会话。
func IsDurableID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Persisted 报告会话是否已拥有持久标识。
func (s DailySession) Persisted() bool {
	return IsDurableID(s.ID)
}

// Clone 返回会话的深拷贝。
func (s DailySession) Clone() DailySession {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if s.SurveyData != nil {
		sd := *s.SurveyData
		out.SurveyData = &sd
	}
	return out
}

// CountBySender 统计会话中指定发送方的消息数。
func (s DailySession) CountBySender(sender Sender) int {
	n := 0
	for _, m := range s.Messages {
		if m.Sender == sender {
			n++
		}
	}
	return n
}
