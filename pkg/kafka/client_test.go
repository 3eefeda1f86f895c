package kafka

import (
	"context"
	"testing"

	"checkin-companion/internal/config"
	"checkin-companion/pkg/database"
	"checkin-companion/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers(config.KafkaConfig{Brokers: " a:9092, ,b:9092 "}))
	assert.Empty(t, Brokers(config.KafkaConfig{}))
}

func TestAttemptCounterInMemory(t *testing.T) {
	database.RDB = nil
	ctx := context.Background()
	a := newAttemptCounter()

	for want := int64(1); want <= 3; want++ {
		n, err := a.Incr(ctx, "m-1")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	a.Reset(ctx, "m-1")
	n, err := a.Incr(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAttemptCounterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	database.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = database.RDB.Close()
		database.RDB = nil
	})
	ctx := context.Background()

	a := newAttemptCounter()
	_, err := a.Incr(ctx, "m-1")
	require.NoError(t, err)
	// 另一个实例看到同样的计数
	n, err := newAttemptCounter().Incr(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.TTL(attemptsKey("m-1")) > 0)

	a.Reset(ctx, "m-1")
	assert.False(t, mr.Exists(attemptsKey("m-1")))
}

func TestProduceWithoutProducer(t *testing.T) {
	require.NoError(t, CloseProducer())
	assert.Error(t, ProduceMessageTask(context.Background(), tasksFixture()))
}

func tasksFixture() tasks.MessageWriteTask {
	return tasks.MessageWriteTask{StudyID: "MH482913", Date: "2024-05-01", MessageID: "m-1", Text: "Hallo", Sender: "user"}
}
