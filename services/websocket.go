package services

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/qianlnk/mindwolf/models"
	"github.com/sirupsen/logrus"
)

const (
	writeWait    = 5 * time.Second
	pingInterval = 15 * time.Second
	pongWait     = 3 * pingInterval
	sendBuffer   = 64
	maxReadSize  = 512 * 1024
)

// ErrNotConnected 玩家没有WebSocket连接
var ErrNotConnected = errors.New("玩家未连接")

// Message WebSocket入站消息
type Message struct {
	Type    string          `json:"type"`
	GameID  string          `json:"game_id"`
	Content json.RawMessage `json:"content"`
}

// client 一条连接，写操作只在 writePump 中进行
type client struct {
	gameID   string
	playerID string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WebSocketManager WebSocket连接管理器，按游戏分组推送事件
type WebSocketManager struct {
	games       map[string]map[string]*client // gameID -> playerID -> client
	roomManager *RoomManager
	log         logrus.FieldLogger
	mutex       sync.RWMutex
}

// NewWebSocketManager 创建WebSocket管理器实例
func NewWebSocketManager(log logrus.FieldLogger) *WebSocketManager {
	return &WebSocketManager{
		games: make(map[string]map[string]*client),
		log:   log,
	}
}

// SetRoomManager 设置房间管理器实例
func (wm *WebSocketManager) SetRoomManager(rm *RoomManager) {
	wm.roomManager = rm
}

// RegisterConnection 注册新的WebSocket连接，同一玩家的旧连接会被关闭
func (wm *WebSocketManager) RegisterConnection(gameID, playerID string, conn *websocket.Conn) {
	c := &client{
		gameID:   gameID,
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}

	wm.mutex.Lock()
	if wm.games[gameID] == nil {
		wm.games[gameID] = make(map[string]*client)
	}
	if old, exists := wm.games[gameID][playerID]; exists {
		old.close()
	}
	wm.games[gameID][playerID] = c
	wm.mutex.Unlock()

	wm.log.WithFields(logrus.Fields{"game_id": gameID, "player_id": playerID}).Info("[WebSocket] 玩家已连接")
	go wm.writePump(c)
	go wm.handleMessages(c)
	wm.pushStatus(gameID, playerID)
}

// RemoveConnection 移除WebSocket连接
func (wm *WebSocketManager) RemoveConnection(c *client) {
	wm.mutex.Lock()
	if players, ok := wm.games[c.gameID]; ok && players[c.playerID] == c {
		delete(players, c.playerID)
		if len(players) == 0 {
			delete(wm.games, c.gameID)
		}
	}
	wm.mutex.Unlock()
	c.close()
	wm.log.WithFields(logrus.Fields{"game_id": c.gameID, "player_id": c.playerID}).Info("[WebSocket] 连接已清理")
}

// GameListener 把某局游戏的事件推送给该局的连接
func (wm *WebSocketManager) GameListener(gameID string) Listener {
	return ListenerFunc(func(e Event) {
		switch ev := e.(type) {
		case NightActionEvent, AnalysisReportedEvent:
			// 私密信息不广播
			return
		case GameStartedEvent:
			// 开局名单带身份，只推送各自视角的状态
			wm.BroadcastToGame(gameID, map[string]interface{}{"type": e.EventType(), "day": ev.Day})
			wm.pushStatusToGame(gameID)
			return
		case NightResolvedEvent:
			wm.BroadcastToGame(gameID, map[string]interface{}{
				"type":   e.EventType(),
				"day":    ev.Outcome.Day,
				"deaths": ev.Outcome.Deaths,
			})
		case PlayerEliminatedEvent:
			// 出局玩家身份公开
			wm.BroadcastToGame(gameID, map[string]interface{}{"type": e.EventType(), "data": ev})
		default:
			wm.BroadcastToGame(gameID, map[string]interface{}{"type": e.EventType(), "data": e})
		}

		switch e.(type) {
		case PhaseChangedEvent, PlayerEliminatedEvent, VoteResolvedEvent, GameOverEvent:
			wm.pushStatusToGame(gameID)
		}
	})
}

// BroadcastToGame 向一局游戏的所有连接广播消息
func (wm *WebSocketManager) BroadcastToGame(gameID string, message interface{}) {
	msgBytes, err := json.Marshal(message)
	if err != nil {
		wm.log.Warnf("[WebSocket广播] 消息序列化失败: %v", err)
		return
	}

	wm.mutex.RLock()
	clients := make([]*client, 0, len(wm.games[gameID]))
	for _, c := range wm.games[gameID] {
		clients = append(clients, c)
	}
	wm.mutex.RUnlock()

	wm.log.WithField("game_id", gameID).Debugf("[WebSocket广播] %d 个活跃连接", len(clients))
	for _, c := range clients {
		wm.enqueue(c, msgBytes)
	}
}

// SendToPlayer 向指定玩家发送消息
func (wm *WebSocketManager) SendToPlayer(gameID, playerID string, message interface{}) error {
	wm.mutex.RLock()
	c, exists := wm.games[gameID][playerID]
	wm.mutex.RUnlock()
	if !exists {
		return ErrNotConnected
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	wm.enqueue(c, msgBytes)
	return nil
}

// enqueue 缓冲区满时丢弃消息，避免阻塞游戏流程
func (wm *WebSocketManager) enqueue(c *client, msg []byte) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		wm.log.WithField("player_id", c.playerID).Warn("[WebSocket] 发送缓冲区已满，丢弃消息")
	}
}

func (wm *WebSocketManager) pushStatusToGame(gameID string) {
	wm.mutex.RLock()
	players := make([]string, 0, len(wm.games[gameID]))
	for playerID := range wm.games[gameID] {
		players = append(players, playerID)
	}
	wm.mutex.RUnlock()

	for _, playerID := range players {
		wm.pushStatus(gameID, playerID)
	}
}

// pushStatus 发送该玩家视角的游戏状态
func (wm *WebSocketManager) pushStatus(gameID, playerID string) {
	if wm.roomManager == nil {
		return
	}
	game, ok := wm.roomManager.GetGameController(gameID)
	if !ok {
		return
	}
	_ = wm.SendToPlayer(gameID, playerID, map[string]interface{}{
		"type": "game_state",
		"data": game.PublicStatus(playerID),
	})
}

// writePump 串行写入消息并定时发送心跳
func (wm *WebSocketManager) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		wm.RemoveConnection(c)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				wm.log.WithField("player_id", c.playerID).Warnf("[WebSocket] 发送消息失败: %v", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				wm.log.WithField("player_id", c.playerID).Warnf("[WebSocket] 心跳检测失败: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleMessages 处理接收到的WebSocket消息
func (wm *WebSocketManager) handleMessages(c *client) {
	defer wm.RemoveConnection(c)

	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wm.log.WithField("player_id", c.playerID).Warnf("[WebSocket] 读取消息失败: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(p, &msg); err != nil {
			wm.sendError(c, "消息格式错误")
			continue
		}

		var action models.GameAction
		switch msg.Type {
		case "game_action":
			if err := json.Unmarshal(msg.Content, &action); err != nil || action.Type == "" {
				wm.sendError(c, "无效的动作类型")
				continue
			}
		case "chat":
			var chat struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(msg.Content, &chat); err != nil {
				wm.sendError(c, "无效的聊天内容")
				continue
			}
			action = models.GameAction{Type: "speak", Content: chat.Message}
		default:
			wm.log.Debugf("[WebSocket] 未知的消息类型: %s", msg.Type)
			continue
		}

		action.GameID = c.gameID
		action.PlayerID = c.playerID
		action.Timestamp = time.Now().Unix()
		wm.dispatch(c, action)
	}
}

func (wm *WebSocketManager) dispatch(c *client, action models.GameAction) {
	if wm.roomManager == nil {
		wm.sendError(c, "游戏未开始或不存在")
		return
	}
	game, ok := wm.roomManager.GetGameController(c.gameID)
	if !ok {
		wm.sendError(c, "游戏未开始或不存在")
		return
	}
	if err := game.ProcessAction(action); err != nil {
		wm.sendError(c, err.Error())
		return
	}
	wm.pushStatus(c.gameID, c.playerID)
}

func (wm *WebSocketManager) sendError(c *client, message string) {
	_ = wm.SendToPlayer(c.gameID, c.playerID, map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}
