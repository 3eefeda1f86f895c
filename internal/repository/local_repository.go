package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"checkin-companion/internal/model"

	"github.com/google/uuid"
)

// LocalStoreKey 是本地存储文件中唯一的顶层键。
const LocalStoreKey = "research_app_data_v1"

// localStudyRepository 把所有参与者的 UserState 序列化为一个 JSON 文件。
// 未配置远程数据库时它是完整的替代数据面，而不是缓存。
type localStudyRepository struct {
	mu   sync.Mutex
	path string
}

// NewLocalStudyRepository 创建一个基于本地 JSON 文件的 StudyRepository 实例。
func NewLocalStudyRepository(path string) StudyRepository {
	return &localStudyRepository{path: path}
}

func (r *localStudyRepository) load() (map[string]model.UserState, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]model.UserState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local store: %w", err)
	}

	var blob map[string]map[string]model.UserState
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to unmarshal local store: %w", err)
	}
	states := blob[LocalStoreKey]
	if states == nil {
		states = map[string]model.UserState{}
	}
	return states, nil
}

// save 先写临时文件再重命名，避免进程中断留下半个文件
func (r *localStudyRepository) save(states map[string]model.UserState) error {
	data, err := json.Marshal(map[string]map[string]model.UserState{LocalStoreKey: states})
	if err != nil {
		return fmt.Errorf("failed to marshal local store: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create local store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkin-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write local store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close local store: %w", err)
	}
	return os.Rename(tmp.Name(), r.path)
}

// UpsertParticipant 确保参与者条目存在。
func (r *localStudyRepository) UpsertParticipant(_ context.Context, studyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	states, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := states[studyID]; ok {
		return nil
	}
	states[studyID] = model.NewUserState(studyID)
	return r.save(states)
}

// GetOrCreateSession 按 (studyID, date) 获取或创建会话。
func (r *localStudyRepository) GetOrCreateSession(_ context.Context, studyID, date string) (*model.DailySession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	states, err := r.load()
	if err != nil {
		return nil, err
	}
	st, ok := states[studyID]
	if !ok || st.Sessions == nil {
		st = model.NewUserState(studyID)
	}
	sess, ok := st.Sessions[date]
	if !ok {
		sess = model.DailySession{ID: uuid.NewString(), Date: date, Messages: []model.Message{}}
		st.Sessions[date] = sess
		states[studyID] = st
		if err := r.save(states); err != nil {
			return nil, err
		}
	}

	out := sess.Clone()
	out.StudyID = studyID
	return &out, nil
}

// InsertMessage 追加消息并按时间戳保持顺序；同 ID 的消息只保留一份。
func (r *localStudyRepository) InsertMessage(_ context.Context, sessionID string, msg model.Message) error {
	return r.mutateSession(sessionID, func(sess *model.DailySession) {
		for _, m := range sess.Messages {
			if m.ID == msg.ID {
				return
			}
		}
		msg.SessionID = sessionID
		sess.Messages = append(sess.Messages, msg)
		sort.SliceStable(sess.Messages, func(i, j int) bool {
			return sess.Messages[i].Timestamp < sess.Messages[j].Timestamp
		})
	})
}

// MarkChatted 设置已聊天标志。
func (r *localStudyRepository) MarkChatted(_ context.Context, sessionID string) error {
	return r.mutateSession(sessionID, func(sess *model.DailySession) {
		sess.HasChatted = true
	})
}

// UpdateSurvey 仅在会话尚未完成时写入问卷回答。
func (r *localStudyRepository) UpdateSurvey(_ context.Context, sessionID string, resp model.SurveyResponse) error {
	return r.mutateSession(sessionID, func(sess *model.DailySession) {
		if sess.SurveyCompleted {
			return
		}
		sd := resp
		sess.SurveyData = &sd
		sess.SurveyCompleted = true
	})
}

func (r *localStudyRepository) mutateSession(sessionID string, fn func(sess *model.DailySession)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	states, err := r.load()
	if err != nil {
		return err
	}
	for studyID, st := range states {
		for date, sess := range st.Sessions {
			if sess.ID != sessionID {
				continue
			}
			fn(&sess)
			st.Sessions[date] = sess
			states[studyID] = st
			return r.save(states)
		}
	}
	return ErrSessionNotFound
}
