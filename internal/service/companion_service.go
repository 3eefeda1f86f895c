package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"checkin-companion/internal/config"
	"checkin-companion/internal/model"
	"checkin-companion/internal/repository"
	"checkin-companion/internal/router"
	"checkin-companion/internal/session"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/token"
)

// CompanionService 驱动每位参与者的界面流转。
type CompanionService interface {
	GenerateStudyID() (string, error)
	Login(ctx context.Context, rawID string) (LoginResult, error)
	View(ctx context.Context, studyID string) (View, error)
	// SendMessage 发送用户消息并等待代理回复。progress 在代理思考期间收到一次 typing 视图，可以为 nil。
	SendMessage(ctx context.Context, studyID, text string, progress func(View)) (View, error)
	StartSurvey(ctx context.Context, studyID string) (View, error)
	SubmitSurvey(ctx context.Context, studyID string, in SurveyInput) (View, error)
	Logout(ctx context.Context, studyID, tokenString string, tokenTTL time.Duration) View
}

// LoginResult 包含登录后的 token 和首个界面。
type LoginResult struct {
	Token string `json:"token"`
	View  View   `json:"view"`
}

// SurveyInput 是参与者提交的问卷回答。
type SurveyInput struct {
	Mood              *int   `json:"mood"`
	Helpfulness       *int   `json:"helpfulness"`
	Comments          string `json:"comments"`
	ExternalCompleted bool   `json:"externalCompleted"`
}

// participantHandle 保存一位已登录参与者的最新状态。所有读取都通过句柄进行。
type participantHandle struct {
	mu        sync.Mutex
	studyID   string
	date      string
	router    *router.Router
	state     model.UserState
	typing    bool
	discarded bool
}

type companionService struct {
	checkin    CheckinService
	agent      AgentService
	cache      repository.SessionCache
	jwtManager *token.JWTManager
	clock      Clock
	cfg        config.StudyConfig
	policy     session.Policy

	mu      sync.Mutex
	handles map[string]*participantHandle
}

// NewCompanionService 创建一个新的 CompanionService 实例。
func NewCompanionService(checkin CheckinService, agent AgentService, cache repository.SessionCache, jwtManager *token.JWTManager, clock Clock, cfg config.StudyConfig) CompanionService {
	policy := session.DefaultPolicy
	if cfg.MaxUserMessages > 0 {
		policy.MaxUserMessages = cfg.MaxUserMessages
	}
	if cfg.MinAgentReplies > 0 {
		policy.MinAgentReplies = cfg.MinAgentReplies
	}
	if cfg.MinStudyIDLength <= 0 {
		cfg.MinStudyIDLength = 5
	}
	return &companionService{
		checkin:    checkin,
		agent:      agent,
		cache:      cache,
		jwtManager: jwtManager,
		clock:      clock,
		cfg:        cfg,
		policy:     policy,
		handles:    make(map[string]*participantHandle),
	}
}

// NormalizeStudyID 去除首尾空白并转为大写。
func NormalizeStudyID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func (s *companionService) GenerateStudyID() (string, error) {
	return token.GenerateStudyID(s.cfg.StudyIDPrefix)
}

func (s *companionService) Login(ctx context.Context, rawID string) (LoginResult, error) {
	studyID := NormalizeStudyID(rawID)
	if utf8.RuneCountInString(studyID) < s.cfg.MinStudyIDLength {
		r := router.New()
		r.LoginFailed(MsgInvalidStudyID)
		return LoginResult{View: LoginView(r.LastError())}, inputError(MsgInvalidStudyID)
	}

	h := s.newHandle(ctx, studyID)
	tok, err := s.jwtManager.GenerateToken(studyID)
	if err != nil {
		return LoginResult{View: LoginView(MsgInvalidAction)}, fmt.Errorf("generate token: %w", err)
	}

	s.mu.Lock()
	if old, ok := s.handles[studyID]; ok && old != h {
		old.mu.Lock()
		old.discarded = true
		old.mu.Unlock()
	}
	s.handles[studyID] = h
	s.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	s.saveSnapshotLocked(ctx, h)
	log.Infow("参与者登录", "studyId", studyID, "screen", h.router.Screen())
	return LoginResult{Token: tok, View: s.viewLocked(h)}, nil
}

// newHandle 执行一次完整的登录：加载当天会话并按每日状态路由。
func (s *companionService) newHandle(ctx context.Context, studyID string) *participantHandle {
	today := s.clock.Today()
	state := s.checkin.Login(ctx, studyID)
	r := router.New()
	r.LoginSucceeded(studyID, session.DeriveTodaySession(state, today))
	return &participantHandle{studyID: studyID, date: today, router: r, state: state}
}

// handle 返回参与者的句柄。进程内没有句柄时（例如服务重启后）先从快照恢复，否则静默重新登录。
func (s *companionService) handle(ctx context.Context, studyID string) (*participantHandle, error) {
	if studyID == "" {
		return nil, ErrNotLoggedIn
	}
	s.mu.Lock()
	h, ok := s.handles[studyID]
	s.mu.Unlock()
	if ok {
		return h, nil
	}

	h = s.restoreHandle(ctx, studyID)
	if h == nil {
		h = s.newHandle(ctx, studyID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.handles[studyID]; ok {
		return existing, nil
	}
	s.handles[studyID] = h
	return h, nil
}

func (s *companionService) restoreHandle(ctx context.Context, studyID string) *participantHandle {
	snap, err := s.cache.LoadSnapshot(ctx, studyID)
	if err != nil {
		log.Warnw("读取快照失败", "studyId", studyID, "error", err)
		return nil
	}
	if snap == nil || snap.StudyID != studyID {
		return nil
	}
	r := router.Restore(studyID, snap.Screen)
	if r.ParticipantID() == "" {
		return nil
	}
	return &participantHandle{
		studyID: studyID,
		date:    model.DateOf(snap.UpdatedAt, s.clock.Location),
		router:  r,
		state:   snap.State,
	}
}

// refreshLocked 重新执行每日状态检查。跨日后重新加载当天会话，旧日期的内容不再保留。
// 代理回复进行中时保持原日期，回复完成后的下一次请求再切换。
func (s *companionService) refreshLocked(ctx context.Context, h *participantHandle) {
	if h.date != s.clock.Today() && !h.typing {
		fresh := s.newHandle(ctx, h.studyID)
		h.date, h.router, h.state = fresh.date, fresh.router, fresh.state
		return
	}
	h.router.Reconcile(session.DeriveTodaySession(h.state, h.date))
}

// lock 取得句柄并加锁；句柄在等待期间被丢弃时返回 ErrNotLoggedIn。
func (s *companionService) lock(ctx context.Context, studyID string) (*participantHandle, error) {
	h, err := s.handle(ctx, studyID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	if h.discarded {
		h.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	s.refreshLocked(ctx, h)
	return h, nil
}

func (s *companionService) View(ctx context.Context, studyID string) (View, error) {
	h, err := s.lock(ctx, studyID)
	if err != nil {
		return LoginView(UserMessage(err)), err
	}
	defer h.mu.Unlock()
	s.saveSnapshotLocked(ctx, h)
	return s.viewLocked(h), nil
}

func (s *companionService) SendMessage(ctx context.Context, studyID, text string, progress func(View)) (View, error) {
	text = strings.TrimSpace(text)
	h, err := s.lock(ctx, studyID)
	if err != nil {
		return LoginView(UserMessage(err)), err
	}

	if text == "" {
		return s.rejectLocked(h, inputError(MsgEmptyMessage))
	}
	if h.router.Screen() != model.ScreenChat {
		return s.rejectLocked(h, fmt.Errorf("%w: send message on %s", router.ErrInvalidTransition, h.router.Screen()))
	}
	today := h.date
	current := session.DeriveTodaySession(h.state, today)
	if session.Status(current, s.policy).Locked {
		return s.rejectLocked(h, ErrChatLocked)
	}
	if h.typing {
		return s.rejectLocked(h, ErrReplyPending)
	}

	history := current.Messages
	h.state, _ = s.checkin.SaveMessage(ctx, studyID, today, current.ID, text, model.SenderUser, h.state)
	h.typing = true
	typingView := s.viewLocked(h)
	s.saveSnapshotLocked(ctx, h)
	h.mu.Unlock()

	if progress != nil {
		progress(typingView)
	}
	// 代理调用不随请求取消
	reply := s.agent.GetReply(context.WithoutCancel(ctx), history, text)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.typing = false
	if h.discarded {
		return LoginView(""), nil
	}
	latest := session.DeriveTodaySession(h.state, today)
	if !model.IsDurableID(latest.ID) {
		// 登录时存储不可达：找回真实会话标识，后续写入不再重复查找
		h.state = s.checkin.ResolveSession(context.WithoutCancel(ctx), studyID, today, h.state)
		latest = session.DeriveTodaySession(h.state, today)
	}
	h.state, _ = s.checkin.SaveMessage(ctx, studyID, today, latest.ID, reply, model.SenderAgent, h.state)
	s.saveSnapshotLocked(ctx, h)
	return s.viewLocked(h), nil
}

func (s *companionService) StartSurvey(ctx context.Context, studyID string) (View, error) {
	h, err := s.lock(ctx, studyID)
	if err != nil {
		return LoginView(UserMessage(err)), err
	}

	defer h.mu.Unlock()
	switch h.router.Screen() {
	case model.ScreenSurvey:
		return s.viewLocked(h), nil
	case model.ScreenChat:
		if !session.Status(session.DeriveTodaySession(h.state, h.date), s.policy).SurveyAvailable {
			return s.errorViewLocked(h, ErrSurveyUnavailable)
		}
	}
	if _, err := h.router.StartSurvey(); err != nil {
		return s.errorViewLocked(h, err)
	}
	s.saveSnapshotLocked(ctx, h)
	return s.viewLocked(h), nil
}

func (s *companionService) SubmitSurvey(ctx context.Context, studyID string, in SurveyInput) (View, error) {
	h, err := s.lock(ctx, studyID)
	if err != nil {
		return LoginView(UserMessage(err)), err
	}
	if h.router.Screen() != model.ScreenSurvey {
		return s.rejectLocked(h, fmt.Errorf("%w: submit survey on %s", router.ErrInvalidTransition, h.router.Screen()))
	}
	resp, err := s.surveyResponse(h.date, in)
	if err != nil {
		return s.rejectLocked(h, err)
	}

	// 问卷写入必须等待完成；句柄在此期间保持加锁，重复提交会排队
	current := session.DeriveTodaySession(h.state, h.date)
	next, err := s.checkin.SaveSurvey(context.WithoutCancel(ctx), studyID, current.ID, resp, h.state)
	if err != nil {
		log.Errorw("问卷保存失败", "studyId", studyID, "date", h.date, "error", err)
		return s.rejectLocked(h, err)
	}
	defer h.mu.Unlock()
	h.state = next
	if _, err := h.router.SurveySubmitted(); err != nil {
		return s.viewLocked(h), err
	}
	s.saveSnapshotLocked(ctx, h)
	log.Infow("问卷已提交", "studyId", studyID, "date", h.date)
	return s.viewLocked(h), nil
}

func (s *companionService) surveyResponse(today string, in SurveyInput) (model.SurveyResponse, error) {
	resp := model.SurveyResponse{Date: today, Comments: strings.TrimSpace(in.Comments)}
	for _, v := range []*int{in.Mood, in.Helpfulness} {
		if v != nil && (*v < 1 || *v > 5) {
			return resp, inputError(MsgSurveyOutOfRange)
		}
	}
	resp.Mood, resp.Helpfulness = in.Mood, in.Helpfulness

	if s.cfg.SurveyMode == config.SurveyModeExternal {
		// 仅记录参与者的自述，外部问卷是否真正完成不做校验
		reported := in.ExternalCompleted
		resp.ExternalCompleted = &reported
		return resp, nil
	}
	if in.Mood == nil || in.Helpfulness == nil {
		return resp, inputError(MsgSurveyIncomplete)
	}
	return resp, nil
}

func (s *companionService) Logout(ctx context.Context, studyID, tokenString string, tokenTTL time.Duration) View {
	s.mu.Lock()
	h, ok := s.handles[studyID]
	delete(s.handles, studyID)
	s.mu.Unlock()

	if ok {
		// 进行中的代理调用会静默结束
		h.mu.Lock()
		h.discarded = true
		h.router.Logout()
		h.mu.Unlock()
	}
	if err := s.cache.DeleteSnapshot(ctx, studyID); err != nil {
		log.Warnw("删除快照失败", "studyId", studyID, "error", err)
	}
	if tokenString != "" {
		if err := s.cache.RevokeToken(ctx, tokenString, tokenTTL); err != nil {
			log.Warnw("注销 token 失败", "studyId", studyID, "error", err)
		}
	}
	log.Infow("参与者退出", "studyId", studyID)
	return LoginView("")
}

// rejectLocked 释放句柄锁，返回当前界面并附带错误提示。
func (s *companionService) rejectLocked(h *participantHandle, err error) (View, error) {
	defer h.mu.Unlock()
	return s.errorViewLocked(h, err)
}

func (s *companionService) errorViewLocked(h *participantHandle, err error) (View, error) {
	v := s.viewLocked(h)
	v.Error = UserMessage(err)
	return v, err
}

func (s *companionService) saveSnapshotLocked(ctx context.Context, h *participantHandle) {
	snap := model.Snapshot{
		StudyID:   h.studyID,
		Screen:    h.router.Screen(),
		State:     h.state.Clone(),
		UpdatedAt: s.clock.current(),
	}
	if err := s.cache.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		log.Warnw("写入快照失败", "studyId", h.studyID, "error", err)
	}
}

func (s *companionService) viewLocked(h *participantHandle) View {
	screen := h.router.Screen()
	if screen == model.ScreenLogin {
		return LoginView(h.router.LastError())
	}
	v := View{Screen: screen, StudyID: h.router.ParticipantID(), Date: h.date}
	today := session.DeriveTodaySession(h.state, h.date)
	switch screen {
	case model.ScreenChat:
		status := session.Status(today, s.policy)
		v.Messages = today.Messages
		v.Status = &status
		v.Typing = h.typing
		if len(today.Messages) == 0 {
			v.Prompt = WelcomeText
		}
		if status.SurveyAvailable {
			v.Survey = newSurveyView(s.cfg)
		}
	case model.ScreenSurvey:
		v.Survey = newSurveyView(s.cfg)
	case model.ScreenCompleted:
		v.Completion = CompletionText
		v.Prompt = SavedNotice
	}
	return v
}
