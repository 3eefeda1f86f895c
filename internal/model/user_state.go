package model

import "time"

// UserState 是参与者的聚合根：ID 加上按日期索引的每日会话。
type UserState struct {
	ID       string                  `json:"id"`
	Sessions map[string]DailySession `json:"sessions"`
}

// NewUserState 创建一个指定 ID 的空状态。
func NewUserState(id string) UserState {
	return UserState{ID: id, Sessions: map[string]DailySession{}}
}

// Clone 返回状态的深拷贝，调用方可自由修改而不影响原值。
func (u UserState) Clone() UserState {
	out := UserState{ID: u.ID, Sessions: make(map[string]DailySession, len(u.Sessions))}
	for date, s := range u.Sessions {
		out.Sessions[date] = s.Clone()
	}
	return out
}

// Screen 是应用的界面状态。
type Screen string

const (
	ScreenLogin     Screen = "LOGIN"
	ScreenChat      Screen = "CHAT"
	ScreenSurvey    Screen = "SURVEY"
	ScreenCompleted Screen = "COMPLETED"
)

// Snapshot 是参与者句柄的缓存副本，用于重启或多实例后恢复到正确的界面。
type Snapshot struct {
	StudyID   string    `json:"studyId"`
	Screen    Screen    `json:"screen"`
	State     UserState `json:"state"`
	UpdatedAt time.Time `json:"updatedAt"`
}
