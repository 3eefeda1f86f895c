package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"checkin-companion/internal/model"
	"checkin-companion/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteRepository(t *testing.T) StudyRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接都是独立的数据库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return NewStudyRepository(db)
}

func newLocalRepository(t *testing.T) StudyRepository {
	t.Helper()
	return NewLocalStudyRepository(filepath.Join(t.TempDir(), "store", "data.json"))
}

func forEachRepository(t *testing.T, fn func(t *testing.T, repo StudyRepository)) {
	t.Run("gorm", func(t *testing.T) { fn(t, newSQLiteRepository(t)) })
	t.Run("local", func(t *testing.T) { fn(t, newLocalRepository(t)) })
}

func TestUpsertParticipantIsIdempotent(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo StudyRepository) {
		ctx := context.Background()
		require.NoError(t, repo.UpsertParticipant(ctx, "MH482913"))
		require.NoError(t, repo.UpsertParticipant(ctx, "MH482913"))
	})
}

func TestGetOrCreateSessionReturnsSameID(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo StudyRepository) {
		ctx := context.Background()
		first, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
		require.NoError(t, err)
		second, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
		require.NoError(t, err)

		assert.True(t, first.Persisted())
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "2024-05-01", second.Date)
		assert.Empty(t, second.Messages)

		other, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-02")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
	})
}

func TestGetOrCreateSessionConcurrent(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo StudyRepository) {
		ctx := context.Background()
		var wg sync.WaitGroup
		ids := make([]string, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sess, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
				if assert.NoError(t, err) {
					ids[i] = sess.ID
				}
			}(i)
		}
		wg.Wait()
		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})
}

func TestMessageRoundTripPreservesOrder(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo StudyRepository) {
		ctx := context.Background()
		sess, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
		require.NoError(t, err)

		base := int64(1714557600000)
		var sent []model.Message
		for i := 0; i < 6; i++ {
			sender := model.SenderUser
			if i%2 == 1 {
				sender = model.SenderAgent
			}
			sent = append(sent, model.Message{
				ID:        uuid.NewString(),
				Text:      fmt.Sprintf("Nachricht %d", i),
				Sender:    sender,
				Timestamp: base + int64(i)*1000,
			})
		}
		// 后台写入可能乱序到达
		order := []int{1, 0, 2, 4, 3, 5}
		for _, i := range order {
			require.NoError(t, repo.InsertMessage(ctx, sess.ID, sent[i]))
		}
		// 重复投递应被忽略
		require.NoError(t, repo.InsertMessage(ctx, sess.ID, sent[0]))

		reloaded, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
		require.NoError(t, err)
		require.Len(t, reloaded.Messages, len(sent))
		for i, m := range reloaded.Messages {
			assert.Equal(t, sent[i].ID, m.ID)
			assert.Equal(t, sent[i].Text, m.Text)
			assert.Equal(t, sent[i].Sender, m.Sender)
			assert.Equal(t, sent[i].Timestamp, m.Timestamp)
		}
	})
}

func TestMarkChattedAndSurvey(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo StudyRepository) {
		ctx := context.Background()
		sess, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
		require.NoError(t, err)

		require.NoError(t, repo.MarkChatted(ctx, sess.ID))

		mood, help := 4, 3
		first := model.SurveyResponse{Date: "2024-05-01", Mood: &mood, Helpfulness: &help, Comments: "gut"}
		require.NoError(t, repo.UpdateSurvey(ctx, sess.ID, first))

		low := 1
		require.NoError(t, repo.UpdateSurvey(ctx, sess.ID, model.SurveyResponse{Date: "2024-05-01", Mood: &low}))

		reloaded, err := repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
		require.NoError(t, err)
		assert.True(t, reloaded.HasChatted)
		assert.True(t, reloaded.SurveyCompleted)
		require.NotNil(t, reloaded.SurveyData)
		require.NotNil(t, reloaded.SurveyData.Mood)
		assert.Equal(t, 4, *reloaded.SurveyData.Mood)
		assert.Equal(t, "gut", reloaded.SurveyData.Comments)
	})
}

func TestUpdateSurveyUnknownSession(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo StudyRepository) {
		err := repo.UpdateSurvey(context.Background(), uuid.NewString(), model.SurveyResponse{})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestLocalRepositoryPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	ctx := context.Background()

	first := NewLocalStudyRepository(path)
	sess, err := first.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
	require.NoError(t, err)
	require.NoError(t, first.InsertMessage(ctx, sess.ID, model.Message{ID: "m-1", Text: "Hallo", Sender: model.SenderUser, Timestamp: 1}))

	second := NewLocalStudyRepository(path)
	reloaded, err := second.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, reloaded.ID)
	require.Len(t, reloaded.Messages, 1)
	assert.Equal(t, "Hallo", reloaded.Messages[0].Text)
}
