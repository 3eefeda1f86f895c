package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"checkin-companion/internal/middleware"
	"checkin-companion/internal/repository"
	"checkin-companion/internal/service"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// 帧类型
const (
	frameTyping = "typing"
	frameView   = "view"
	frameError  = "error"
)

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	companionService service.CompanionService
	jwtManager       *token.JWTManager
	cache            repository.SessionCache
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(companionService service.CompanionService, jwtManager *token.JWTManager, cache repository.SessionCache) *ChatHandler {
	return &ChatHandler{
		companionService: companionService,
		jwtManager:       jwtManager,
		cache:            cache,
	}
}

type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type serverFrame struct {
	Type      string       `json:"type"`
	Message   string       `json:"message,omitempty"`
	Data      service.View `json:"data"`
	Timestamp int64        `json:"timestamp"`
}

// Handle 处理一个传入的 WebSocket 连接。连接建立后先推送当前界面，之后每条消息依次推送 typing 与最终界面。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := middleware.VerifyParticipantToken(c.Request.Context(), h.jwtManager, h.cache, c.Param("token"))
	if err != nil {
		middleware.Unauthorized(c, "Deine Sitzung ist abgelaufen. Bitte melde dich erneut an.")
		return
	}
	studyID := claims.StudyID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infow("WebSocket 连接已建立", "studyId", studyID)
	ctx := c.Request.Context()

	view, err := h.companionService.View(ctx, studyID)
	if err := writeFrame(conn, frameFor(view, err)); err != nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var frame clientFrame
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &frame); err != nil {
				log.Warnf("无法解析 WebSocket 消息: %v", err)
				continue
			}
		} else {
			// 纯文本视为一条聊天消息
			frame = clientFrame{Type: "message", Text: string(message)}
		}

		switch strings.ToLower(frame.Type) {
		case "message":
			view, err = h.companionService.SendMessage(ctx, studyID, frame.Text, func(typing service.View) {
				_ = writeFrame(conn, serverFrame{Type: frameTyping, Data: typing})
			})
		case "view", "":
			view, err = h.companionService.View(ctx, studyID)
		case "start_survey":
			view, err = h.companionService.StartSurvey(ctx, studyID)
		default:
			continue
		}
		if err := writeFrame(conn, frameFor(view, err)); err != nil {
			log.Warnf("写入 WebSocket 消息失败: %v", err)
			break
		}
	}
}

func frameFor(view service.View, err error) serverFrame {
	if err != nil {
		return serverFrame{Type: frameError, Message: service.UserMessage(err), Data: view}
	}
	return serverFrame{Type: frameView, Data: view}
}

func writeFrame(conn *websocket.Conn, frame serverFrame) error {
	frame.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
