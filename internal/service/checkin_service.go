// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"checkin-companion/internal/model"
	"checkin-companion/internal/repository"
	"checkin-companion/internal/session"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/tasks"
)

// CheckinService 是研究数据的持久化适配层，封装了本地或远程存储的差异。
type CheckinService interface {
	// Login 登记参与者并加载当天的会话。任何存储错误都只记录日志，返回只含 ID 的空状态。
	Login(ctx context.Context, studyID string) model.UserState
	// SaveMessage 把消息追加到 date 的会话，同步计算新状态并立即返回，持久化写入在后台执行。
	SaveMessage(ctx context.Context, studyID, date, sessionID, text string, sender model.Sender, current model.UserState) (model.UserState, model.Message)
	// ResolveSession 在 date 的会话仍是占位会话时向存储找回真实标识，只尝试一次；失败时原样返回 current。
	ResolveSession(ctx context.Context, studyID, date string, current model.UserState) model.UserState
	// SaveSurvey 计算新状态并等待问卷写入完成；失败时返回 ErrSurveyNotSaved 与原状态。
	SaveSurvey(ctx context.Context, studyID, sessionID string, resp model.SurveyResponse, current model.UserState) (model.UserState, error)
}

type checkinService struct {
	repo       repository.StudyRepository
	dispatcher Dispatcher
	archiver   TranscriptArchiver
	clock      Clock
}

// NewCheckinService 创建一个新的 CheckinService 实例。
func NewCheckinService(repo repository.StudyRepository, dispatcher Dispatcher, archiver TranscriptArchiver, clock Clock) CheckinService {
	if archiver == nil {
		archiver = NoopArchiver{}
	}
	return &checkinService{
		repo:       repo,
		dispatcher: dispatcher,
		archiver:   archiver,
		clock:      clock,
	}
}

func (s *checkinService) Login(ctx context.Context, studyID string) model.UserState {
	state := model.NewUserState(studyID)
	today := s.clock.Today()

	if err := withRetry(ctx, func(ctx context.Context) error {
		return s.repo.UpsertParticipant(ctx, studyID)
	}); err != nil {
		log.Warnw("登记参与者失败，使用空状态继续", "studyId", studyID, "error", err)
		return state
	}

	sess, err := s.repo.GetOrCreateSession(ctx, studyID, today)
	if err != nil {
		log.Warnw("加载每日会话失败，使用空状态继续", "studyId", studyID, "date", today, "error", err)
		return state
	}
	state.Sessions[today] = sess.Clone()
	return state
}

func (s *checkinService) SaveMessage(_ context.Context, studyID, date, sessionID, text string, sender model.Sender, current model.UserState) (model.UserState, model.Message) {
	next, msg := session.AppendMessage(current, date, text, sender, s.clock.current())

	s.dispatcher.DispatchMessage(tasks.MessageWriteTask{
		StudyID:   studyID,
		SessionID: sessionID,
		Date:      date,
		MessageID: msg.ID,
		Text:      msg.Text,
		Sender:    string(msg.Sender),
		Timestamp: msg.Timestamp,
	})
	return next, msg
}

func (s *checkinService) ResolveSession(ctx context.Context, studyID, date string, current model.UserState) model.UserState {
	sess, ok := current.Sessions[date]
	if !ok || model.IsDurableID(sess.ID) {
		return current
	}
	stored, err := s.repo.GetOrCreateSession(ctx, studyID, date)
	if err != nil {
		log.Warnw("找回会话标识失败", "studyId", studyID, "date", date, "error", err)
		return current
	}
	return session.WithSessionID(current, date, stored.ID)
}

func (s *checkinService) SaveSurvey(ctx context.Context, studyID, sessionID string, resp model.SurveyResponse, current model.UserState) (model.UserState, error) {
	today := s.clock.Today()
	next := session.CompleteSurvey(current, today, resp)

	id := sessionID
	if !model.IsDurableID(id) {
		var sess *model.DailySession
		err := withRetry(ctx, func(ctx context.Context) error {
			var err error
			sess, err = s.repo.GetOrCreateSession(ctx, studyID, today)
			return err
		})
		if err != nil {
			return current, fmt.Errorf("%w: recover session: %w", ErrSurveyNotSaved, err)
		}
		id = sess.ID
		next = session.WithSessionID(next, today, id)
	}

	saved := next.Sessions[today]
	if err := withRetry(ctx, func(ctx context.Context) error {
		return s.repo.UpdateSurvey(ctx, id, *saved.SurveyData)
	}); err != nil {
		return current, fmt.Errorf("%w: %w", ErrSurveyNotSaved, err)
	}

	s.dispatcher.Detach("archive:"+studyID+"/"+today, func(ctx context.Context) error {
		return s.archiver.Archive(ctx, studyID, saved)
	})
	return next, nil
}
