package session

import (
	"fmt"
	"testing"
	"time"

	"checkin-companion/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = "2024-05-01"

var noon = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestDeriveTodaySessionZeroValue(t *testing.T) {
	state := model.NewUserState("MH482913")

	sess := DeriveTodaySession(state, day)

	assert.Empty(t, sess.ID)
	assert.Equal(t, day, sess.Date)
	assert.Empty(t, sess.Messages)
	assert.False(t, sess.SurveyCompleted)
	assert.False(t, sess.HasChatted)
	assert.Empty(t, state.Sessions, "derive must not create the session")
}

func TestAppendMessageDoesNotMutateInput(t *testing.T) {
	state := model.NewUserState("MH482913")
	state.Sessions[day] = model.DailySession{ID: "11111111-1111-1111-1111-111111111111", Date: day}

	next, msg := AppendMessage(state, day, "Hallo", model.SenderUser, noon)

	assert.Empty(t, state.Sessions[day].Messages)
	assert.False(t, state.Sessions[day].HasChatted)

	got := next.Sessions[day]
	require.Len(t, got.Messages, 1)
	assert.Equal(t, msg, got.Messages[0])
	assert.Equal(t, "Hallo", msg.Text)
	assert.Equal(t, model.SenderUser, msg.Sender)
	assert.Equal(t, noon.UnixMilli(), msg.Timestamp)
	assert.Equal(t, got.ID, msg.SessionID)
	assert.True(t, got.HasChatted)
	assert.NotEmpty(t, msg.ID)
}

func TestAppendMessageSynthesizesPlaceholderSession(t *testing.T) {
	state := model.UserState{ID: "MH482913"}

	next, msg := AppendMessage(state, day, "Hallo", model.SenderUser, noon)

	sess, ok := next.Sessions[day]
	require.True(t, ok)
	assert.False(t, sess.Persisted())
	assert.Empty(t, msg.SessionID)
	assert.Len(t, sess.Messages, 1)
}

func TestAppendPreservesOrder(t *testing.T) {
	state := model.NewUserState("MH482913")
	for i := 0; i < 4; i++ {
		sender := model.SenderUser
		if i%2 == 1 {
			sender = model.SenderAgent
		}
		state, _ = AppendMessage(state, day, fmt.Sprintf("m%d", i), sender, noon.Add(time.Duration(i)*time.Second))
	}

	msgs := state.Sessions[day].Messages
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Text)
		if i > 0 {
			assert.Less(t, msgs[i-1].Timestamp, m.Timestamp)
		}
	}
}

func TestAppendMessageTimestampsStrictlyIncrease(t *testing.T) {
	state := model.NewUserState("MH482913")
	state, user := AppendMessage(state, day, "Hallo", model.SenderUser, noon)
	state, agent := AppendMessage(state, day, "Hallo zurück", model.SenderAgent, noon)
	// 时钟回拨也不会打乱顺序
	state, late := AppendMessage(state, day, "Noch da?", model.SenderUser, noon.Add(-time.Minute))

	assert.Equal(t, noon.UnixMilli(), user.Timestamp)
	assert.Equal(t, user.Timestamp+1, agent.Timestamp)
	assert.Equal(t, agent.Timestamp+1, late.Timestamp)

	msgs := state.Sessions[day].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{user.Timestamp, agent.Timestamp, late.Timestamp},
		[]int64{msgs[0].Timestamp, msgs[1].Timestamp, msgs[2].Timestamp})
}

func TestCompleteSurveyKeepsFirstResponse(t *testing.T) {
	mood, help := 4, 5
	state := model.NewUserState("MH482913")

	first := CompleteSurvey(state, day, model.SurveyResponse{Date: day, Mood: &mood, Helpfulness: &help})
	assert.False(t, DeriveTodaySession(state, day).SurveyCompleted)
	assert.True(t, first.Sessions[day].SurveyCompleted)

	other := 1
	second := CompleteSurvey(first, day, model.SurveyResponse{Date: day, Mood: &other})
	require.NotNil(t, second.Sessions[day].SurveyData)
	assert.Equal(t, 4, *second.Sessions[day].SurveyData.Mood)
}

func TestWithSessionIDUpdatesMessages(t *testing.T) {
	state, _ := AppendMessage(model.NewUserState("MH482913"), day, "Hallo", model.SenderUser, noon)
	id := "22222222-2222-2222-2222-222222222222"

	next := WithSessionID(state, day, id)

	assert.Equal(t, id, next.Sessions[day].ID)
	assert.Equal(t, id, next.Sessions[day].Messages[0].SessionID)
	assert.Empty(t, state.Sessions[day].ID)
}

func TestOnlyToday(t *testing.T) {
	state := model.NewUserState("MH482913")
	state.Sessions["2024-04-30"] = model.DailySession{Date: "2024-04-30"}
	state.Sessions[day] = model.DailySession{Date: day}

	out := OnlyToday(state, day)

	assert.Len(t, out.Sessions, 1)
	assert.Contains(t, out.Sessions, day)
}

func TestStatusComposerLocksAtCap(t *testing.T) {
	state := model.NewUserState("MH482913")
	for n := 1; n <= 10; n++ {
		state, _ = AppendMessage(state, day, "u", model.SenderUser, noon)
		st := Status(DeriveTodaySession(state, day), DefaultPolicy)
		assert.Equal(t, n, st.UserMessages)
		assert.Equal(t, n >= 10, st.Locked, "after %d messages", n)
	}
}

func TestStatusSurveyAvailability(t *testing.T) {
	tests := []struct {
		name       string
		users      int
		agents     int
		available  bool
		emphasized bool
	}{
		{"no replies", 3, 0, false, false},
		{"four replies", 4, 4, false, false},
		{"five replies", 5, 5, true, false},
		{"five replies at cap", 10, 5, true, true},
		{"cap without replies", 10, 2, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := model.DailySession{Date: day}
			for i := 0; i < tt.users; i++ {
				sess.Messages = append(sess.Messages, model.Message{Sender: model.SenderUser})
			}
			for i := 0; i < tt.agents; i++ {
				sess.Messages = append(sess.Messages, model.Message{Sender: model.SenderAgent})
			}
			st := Status(sess, DefaultPolicy)
			assert.Equal(t, tt.available, st.SurveyAvailable)
			assert.Equal(t, tt.emphasized, st.SurveyEmphasized)
		})
	}
}
