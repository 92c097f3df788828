package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qianlnk/mindwolf/models"
	"github.com/sirupsen/logrus"
)

var ErrRoomNotFound = errors.New("房间不存在")

// RoomManager 房间管理器，每个房间对应一局游戏
type RoomManager struct {
	rooms        map[string]*models.Room
	games        map[string]*GameController
	defaults     models.GameConfig
	generator    TextGenerator
	recorder     GameRecorder
	webSocketMgr *WebSocketManager
	log          logrus.FieldLogger
	mutex        sync.RWMutex
}

// NewRoomManager 创建房间管理器实例，generator 和 recorder 可以为空
func NewRoomManager(defaults models.GameConfig, generator TextGenerator, recorder GameRecorder, webSocketMgr *WebSocketManager, log logrus.FieldLogger) *RoomManager {
	return &RoomManager{
		rooms:        make(map[string]*models.Room),
		games:        make(map[string]*GameController),
		defaults:     defaults,
		generator:    generator,
		recorder:     recorder,
		webSocketMgr: webSocketMgr,
		log:          log,
	}
}

// CreateRoom 创建房间并初始化游戏，totalPlayers<=0 时使用默认人数
func (rm *RoomManager) CreateRoom(name, humanName string, totalPlayers int) (*models.Room, error) {
	cfg := rm.defaults
	if totalPlayers > 0 && totalPlayers != cfg.TotalPlayers {
		cfg.TotalPlayers = totalPlayers
		cfg.RoleDistribution = nil
	}

	id := uuid.NewString()
	bus := NewEventBus()
	if rm.recorder != nil {
		bus.Subscribe(NewRecorder(id, rm.recorder, rm.log))
	}
	if rm.webSocketMgr != nil {
		bus.Subscribe(rm.webSocketMgr.GameListener(id))
	}

	controller, err := NewGameController(id, ControllerOptions{
		Config:    cfg,
		HumanName: humanName,
		Generator: rm.generator,
	}, bus, rm.log)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = "房间-" + id[:8]
	}
	room := &models.Room{
		ID:        id,
		Name:      name,
		HumanID:   HumanPlayerID,
		HumanName: humanName,
		Config:    cfg,
		CreatedAt: time.Now().Unix(),
	}

	rm.mutex.Lock()
	rm.rooms[id] = room
	rm.games[id] = controller
	rm.mutex.Unlock()

	rm.log.WithField("game_id", id).Infof("[房间] 创建房间 %s, 玩家数量: %d", name, cfg.TotalPlayers)
	return room, nil
}

// StartGame 开始房间中的游戏
func (rm *RoomManager) StartGame(roomID string) error {
	controller, ok := rm.GetGameController(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	if err := controller.StartGame(context.Background()); err != nil {
		return err
	}

	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	if room, ok := rm.rooms[roomID]; ok {
		room.GameStarted = true
	}
	return nil
}

// GetRoom 获取房间信息
func (rm *RoomManager) GetRoom(roomID string) (models.Room, error) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	room, exists := rm.rooms[roomID]
	if !exists {
		return models.Room{}, ErrRoomNotFound
	}
	return *room, nil
}

// ListRooms 获取所有房间列表，按创建时间排序
func (rm *RoomManager) ListRooms() []models.Room {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	rooms := make([]models.Room, 0, len(rm.rooms))
	for _, room := range rm.rooms {
		rooms = append(rooms, *room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt != rooms[j].CreatedAt {
			return rooms[i].CreatedAt < rooms[j].CreatedAt
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

// GetGameController 获取游戏控制器
func (rm *RoomManager) GetGameController(roomID string) (*GameController, bool) {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	game, exists := rm.games[roomID]
	return game, exists
}

// RemoveRoom 关闭房间并停止游戏
func (rm *RoomManager) RemoveRoom(roomID string) error {
	rm.mutex.Lock()
	controller, ok := rm.games[roomID]
	delete(rm.games, roomID)
	delete(rm.rooms, roomID)
	rm.mutex.Unlock()

	if !ok {
		return ErrRoomNotFound
	}
	controller.Stop()
	return nil
}
