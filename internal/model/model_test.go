package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDurableID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"temp-offline-id", false},
		{"abc", false},
		{uuid.NewString(), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDurableID(tt.id), tt.id)
	}
}

func TestUserStateCloneIsDeep(t *testing.T) {
	mood := 3
	orig := NewUserState("MH482913")
	orig.Sessions["2024-05-01"] = DailySession{
		Date:       "2024-05-01",
		Messages:   []Message{{ID: "m1", Text: "hi", Sender: SenderUser}},
		SurveyData: &SurveyResponse{Mood: &mood},
	}

	clone := orig.Clone()
	s := clone.Sessions["2024-05-01"]
	s.Messages[0].Text = "changed"
	s.SurveyData.Comments = "changed"
	clone.Sessions["2024-05-02"] = DailySession{Date: "2024-05-02"}

	assert.Equal(t, "hi", orig.Sessions["2024-05-01"].Messages[0].Text)
	assert.Empty(t, orig.Sessions["2024-05-01"].SurveyData.Comments)
	assert.Len(t, orig.Sessions, 1)
}

func TestCountBySender(t *testing.T) {
	s := DailySession{Messages: []Message{
		{Sender: SenderUser}, {Sender: SenderAgent}, {Sender: SenderUser},
	}}
	assert.Equal(t, 2, s.CountBySender(SenderUser))
	assert.Equal(t, 1, s.CountBySender(SenderAgent))
}

func TestDateOf(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	// 23:30 UTC is already the next day in Berlin
	ts := time.Date(2024, 4, 30, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-04-30", DateOf(ts, time.UTC))
	assert.Equal(t, "2024-05-01", DateOf(ts, berlin))
}

func TestDailySessionJSONOmitsStorageFields(t *testing.T) {
	b, err := json.Marshal(DailySession{StudyID: "MH482913", Date: "2024-05-01"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "MH482913")
	assert.NotContains(t, string(b), `"id"`)
	assert.Contains(t, string(b), `"date":"2024-05-01"`)
}
