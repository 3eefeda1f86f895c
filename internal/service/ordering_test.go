package service

import (
	"context"
	"fmt"
	"testing"

	"checkin-companion/internal/model"
	"checkin-companion/internal/repository"
	"checkin-companion/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteRepo(t *testing.T) repository.StudyRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return repository.NewStudyRepository(db)
}

// 时钟不走动时，用户消息与代理回复落在同一毫秒，重新加载后仍须保持发送顺序。
func TestReloadKeepsOrderWithinSameMillisecond(t *testing.T) {
	for _, store := range []struct {
		name    string
		newRepo func(t *testing.T) repository.StudyRepository
	}{
		{"gorm", newSQLiteRepo},
		{"local", newLocalRepo},
	} {
		newRepo := store.newRepo
		t.Run(store.name, func(t *testing.T) {
			for round := 0; round < 20; round++ {
				f := newFixture(t, newRepo(t), studyConfig())
				f.clock.Freeze()
				ctx := context.Background()

				_, err := f.companion.Login(ctx, "MH482913")
				require.NoError(t, err)
				for i := 1; i <= 3; i++ {
					_, err := f.companion.SendMessage(ctx, "MH482913", fmt.Sprintf("Nachricht %d", i), nil)
					require.NoError(t, err)
				}
				f.drain(t)
				require.Zero(t, f.errors.Len())

				stored, err := f.repo.GetOrCreateSession(ctx, "MH482913", "2024-05-01")
				require.NoError(t, err)
				require.Len(t, stored.Messages, 6)
				for i, m := range stored.Messages {
					if i%2 == 0 {
						assert.Equal(t, model.SenderUser, m.Sender, "round %d message %d", round, i)
						assert.Equal(t, fmt.Sprintf("Nachricht %d", i/2+1), m.Text)
					} else {
						assert.Equal(t, model.SenderAgent, m.Sender, "round %d message %d", round, i)
					}
					if i > 0 {
						assert.Less(t, stored.Messages[i-1].Timestamp, m.Timestamp)
					}
				}
			}
		})
	}
}
