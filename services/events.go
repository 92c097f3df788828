package services

import (
	"sync"

	"github.com/qianlnk/mindwolf/models"
)

// Event 游戏事件
type Event interface {
	EventType() string
}

// Listener 事件订阅者
type Listener interface {
	HandleEvent(e Event)
}

// ListenerFunc 函数形式的订阅者
type ListenerFunc func(e Event)

// HandleEvent 实现 Listener
func (f ListenerFunc) HandleEvent(e Event) { f(e) }

// EventBus 事件总线，按订阅顺序同步分发
type EventBus struct {
	listeners []Listener
	mutex     sync.RWMutex
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe 订阅全部事件
func (eb *EventBus) Subscribe(l Listener) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.listeners = append(eb.listeners, l)
}

// Publish 分发事件
func (eb *EventBus) Publish(e Event) {
	eb.mutex.RLock()
	listeners := append([]Listener(nil), eb.listeners...)
	eb.mutex.RUnlock()

	for _, l := range listeners {
		l.HandleEvent(e)
	}
}

// GameStartedEvent 游戏开始
type GameStartedEvent struct {
	GameID  string          `json:"game_id"`
	Day     int             `json:"day"`
	Players []models.Player `json:"players"`
}

// PhaseChangedEvent 阶段切换
type PhaseChangedEvent struct {
	GameID   string       `json:"game_id"`
	From     models.Phase `json:"from"`
	To       models.Phase `json:"to"`
	Day      int          `json:"day"`
	TimeLeft int          `json:"time_left"`
}

// VoteCastEvent 有人投票
type VoteCastEvent struct {
	GameID string      `json:"game_id"`
	Day    int         `json:"day"`
	Vote   models.Vote `json:"vote"`
}

// VoteResolvedEvent 投票结算
type VoteResolvedEvent struct {
	GameID       string         `json:"game_id"`
	Day          int            `json:"day"`
	Tally        map[string]int `json:"tally"`
	EliminatedID string         `json:"eliminated_id,omitempty"`
}

// NightActionEvent 夜晚行动已提交，仅用于记录
type NightActionEvent struct {
	GameID string             `json:"game_id"`
	Day    int                `json:"day"`
	Action models.NightAction `json:"action"`
}

// NightResolvedEvent 夜晚结算
type NightResolvedEvent struct {
	GameID  string              `json:"game_id"`
	Outcome models.NightOutcome `json:"outcome"`
}

// PlayerEliminatedEvent 玩家出局
type PlayerEliminatedEvent struct {
	GameID string            `json:"game_id"`
	Day    int               `json:"day"`
	Player models.Player     `json:"player"`
	Cause  models.DeathCause `json:"cause"`
}

// SpeechEvent 玩家发言
type SpeechEvent struct {
	GameID string        `json:"game_id"`
	Speech models.Speech `json:"speech"`
}

// GameOverEvent 游戏结束，公开全部身份
type GameOverEvent struct {
	GameID  string          `json:"game_id"`
	Day     int             `json:"day"`
	Winner  models.Faction  `json:"winner"`
	Players []models.Player `json:"players"`
}

// AnalysisReportedEvent 游戏结束时AI公开自己的推理报告
type AnalysisReportedEvent struct {
	GameID   string          `json:"game_id"`
	AgentID  string          `json:"agent_id"`
	Day      int             `json:"day"`
	Strategy Strategy        `json:"strategy"`
	Entries  []AnalysisEntry `json:"entries"`
}

func (GameStartedEvent) EventType() string      { return "game_started" }
func (PhaseChangedEvent) EventType() string     { return "phase_changed" }
func (VoteCastEvent) EventType() string         { return "vote_cast" }
func (VoteResolvedEvent) EventType() string     { return "vote_resolved" }
func (NightActionEvent) EventType() string      { return "night_action" }
func (NightResolvedEvent) EventType() string    { return "night_resolved" }
func (PlayerEliminatedEvent) EventType() string { return "player_eliminated" }
func (SpeechEvent) EventType() string           { return "speech" }
func (GameOverEvent) EventType() string         { return "game_over" }
func (AnalysisReportedEvent) EventType() string { return "analysis_reported" }
