package model

// Sender 标识消息的发送方。
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Valid 报告 Sender 是否为已知取值。
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// Message 代表每日会话中的单条消息，只追加，不修改。
type Message struct {
	ID        string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID string `gorm:"type:varchar(36);not null;index" json:"-"`
	Text      string `gorm:"column:content;type:text;not null" json:"text"`
	Sender    Sender `gorm:"type:varchar(16);not null" json:"sender"`
	// Timestamp 为毫秒级 Unix 时间
	Timestamp int64 `gorm:"column:created_at;not null;index" json:"timestamp"`
}

func (Message) TableName() string {
	return "messages"
}
