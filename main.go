package main

import (
	"errors"
	"flag"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/qianlnk/mindwolf/config"
	"github.com/qianlnk/mindwolf/models"
	"github.com/qianlnk/mindwolf/services"
	"github.com/qianlnk/mindwolf/storage"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有跨域请求，生产环境中应该更严格
	},
}

// server HTTP接口依赖的组件
type server struct {
	rooms   *services.RoomManager
	ws      *services.WebSocketManager
	history *storage.Store // 为空表示未启用存储
	log     logrus.FieldLogger
}

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}

	var (
		store    *storage.Store
		recorder services.GameRecorder
	)
	if cfg.Storage.Enabled {
		store, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			logger.Fatalf("打开数据库失败: %v", err)
		}
		defer store.Close()
		recorder = store
	}

	webSocketMgr := services.NewWebSocketManager(logger)
	roomManager := services.NewRoomManager(cfg.Game, config.BuildGenerator(cfg.LLM, logger), recorder, webSocketMgr, logger)
	webSocketMgr.SetRoomManager(roomManager)
	logger.Infof("初始化完成: WebSocket管理器和房间管理器已配置, LLM启用: %v", cfg.LLM.Enabled)

	srv := &server{rooms: roomManager, ws: webSocketMgr, history: store, log: logger}
	r := srv.routes()

	logger.Infof("服务器启动在 %s", cfg.Server.Addr)
	if err := r.Run(cfg.Server.Addr); err != nil {
		logger.Fatalf("服务器启动失败: %v", err)
	}
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 设置跨域中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// WebSocket连接处理
	r.GET("/ws", s.serveWebSocket)

	// API路由组
	api := r.Group("/api")
	{
		// 游戏相关
		api.POST("/games", s.createGame)
		api.GET("/games", s.listGames)
		api.GET("/games/:id", s.getGameStatus)
		api.POST("/games/:id/action", s.gameAction)
		api.GET("/games/:id/analysis/:agentId", s.getAnalysis)

		// 历史记录
		api.GET("/history", s.listHistory)
		api.GET("/history/:id", s.getHistory)
		api.DELETE("/history/:id", s.deleteHistory)
	}
	return r
}

// statusFor 错误到HTTP状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrPlayerNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case services.IsGameLogicError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Errorf("[接口] %s %s 失败: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (s *server) serveWebSocket(c *gin.Context) {
	gameID := c.Query("game")
	playerID := c.Query("player")
	if gameID == "" || playerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少必要的连接参数"})
		return
	}
	if _, ok := s.rooms.GetGameController(gameID); !ok {
		s.fail(c, services.ErrRoomNotFound)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("升级WebSocket连接失败: %v", err)
		return
	}
	s.ws.RegisterConnection(gameID, playerID, ws)
}

// createGame 创建房间并立即开始游戏
func (s *server) createGame(c *gin.Context) {
	var req struct {
		Name         string `json:"name"`
		HumanName    string `json:"human_name" binding:"required"`
		TotalPlayers int    `json:"total_players"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := s.rooms.CreateRoom(req.Name, req.HumanName, req.TotalPlayers)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.rooms.StartGame(room.ID); err != nil {
		s.fail(c, err)
		return
	}
	started, err := s.rooms.GetRoom(room.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, started)
}

func (s *server) listGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": s.rooms.ListRooms()})
}

// getGameStatus 返回游戏状态，游戏结束前只提供真人玩家视角
func (s *server) getGameStatus(c *gin.Context) {
	game, ok := s.rooms.GetGameController(c.Param("id"))
	if !ok {
		s.fail(c, services.ErrRoomNotFound)
		return
	}
	viewer := c.DefaultQuery("player", services.HumanPlayerID)
	c.JSON(http.StatusOK, game.PublicStatus(viewer))
}

func (s *server) gameAction(c *gin.Context) {
	var action models.GameAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	game, ok := s.rooms.GetGameController(c.Param("id"))
	if !ok {
		s.fail(c, services.ErrRoomNotFound)
		return
	}
	action.GameID = game.ID()
	action.Timestamp = time.Now().Unix()
	if err := game.ProcessAction(action); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, game.Status(services.HumanPlayerID))
}

func (s *server) getAnalysis(c *gin.Context) {
	game, ok := s.rooms.GetGameController(c.Param("id"))
	if !ok {
		s.fail(c, services.ErrRoomNotFound)
		return
	}
	entries, err := game.PublicAnalysis(c.Param("agentId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": c.Param("agentId"), "analysis": entries})
}

func (s *server) historyEnabled(c *gin.Context) bool {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用对局记录存储"})
		return false
	}
	return true
}

func (s *server) listHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是整数"})
		return
	}
	games, err := s.history.GetRecentGames(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (s *server) getHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}
	details, err := s.history.GetGameDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *server) deleteHistory(c *gin.Context) {
	if !s.historyEnabled(c) {
		return
	}
	if err := s.history.DeleteGame(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}
