// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// MessageWriteTask represents one detached durable write of a chat message.
// SessionID may be empty or a placeholder; the processor recovers the real
// row from (StudyID, Date) in that case.
type MessageWriteTask struct {
	StudyID   string `json:"study_id"`
	SessionID string `json:"session_id"`
	Date      string `json:"date"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}
