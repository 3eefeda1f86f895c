// Package model 包含了应用的数据模型定义。
package model

import "time"

// Participant 代表一名研究参与者。StudyID 是其唯一的身份凭据。
type Participant struct {
	StudyID   string    `gorm:"primaryKey;type:varchar(64)" json:"studyId"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Participant) TableName() string {
	return "participants"
}
