package service

import (
	"context"
	"fmt"
	"time"

	"checkin-companion/internal/model"
	"checkin-companion/pkg/storage"

	"github.com/minio/minio-go/v7"
)

// TranscriptArchiver 导出一天的完整对话记录。
type TranscriptArchiver interface {
	Archive(ctx context.Context, studyID string, sess model.DailySession) error
}

// Transcript 是归档对象的内容。
type Transcript struct {
	StudyID    string                `json:"studyId"`
	Date       string                `json:"date"`
	SessionID  string                `json:"sessionId"`
	Messages   []model.Message       `json:"messages"`
	Survey     *model.SurveyResponse `json:"survey,omitempty"`
	ExportedAt model.LocalTime       `json:"exportedAt"`
}

// TranscriptObjectName 返回归档对象在存储桶中的路径。
func TranscriptObjectName(studyID, date string) string {
	return fmt.Sprintf("transcripts/%s/%s.json", studyID, date)
}

// NewTranscript 从会话构建归档内容。
func NewTranscript(studyID string, sess model.DailySession, exportedAt time.Time) Transcript {
	c := sess.Clone()
	return Transcript{
		StudyID:    studyID,
		Date:       c.Date,
		SessionID:  c.ID,
		Messages:   c.Messages,
		Survey:     c.SurveyData,
		ExportedAt: model.LocalTime(exportedAt),
	}
}

type minioArchiver struct {
	client     *minio.Client
	bucketName string
}

// NewMinioArchiver 创建一个写入 MinIO 的归档器。
func NewMinioArchiver(client *minio.Client, bucketName string) TranscriptArchiver {
	return &minioArchiver{client: client, bucketName: bucketName}
}

func (a *minioArchiver) Archive(ctx context.Context, studyID string, sess model.DailySession) error {
	t := NewTranscript(studyID, sess, time.Now())
	return storage.PutJSON(ctx, a.client, a.bucketName, TranscriptObjectName(studyID, t.Date), t)
}

// NoopArchiver 在未配置对象存储时使用。
type NoopArchiver struct{}

func (NoopArchiver) Archive(context.Context, string, model.DailySession) error { return nil }
