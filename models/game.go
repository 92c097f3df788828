package models

import "time"

// Role 游戏角色
type Role string

const (
	Werewolf Role = "werewolf" // 狼人
	Villager Role = "villager" // 村民
	Seer     Role = "seer"     // 预言家
	Witch    Role = "witch"    // 女巫
	Hunter   Role = "hunter"   // 猎人
	Guard    Role = "guard"    // 守卫
)

// AllRoles 全部角色，顺序固定
var AllRoles = []Role{Werewolf, Villager, Seer, Witch, Hunter, Guard}

// Faction 阵营
type Faction string

const (
	FactionNone     Faction = ""
	FactionWerewolf Faction = "werewolf" // 狼人阵营
	FactionVillager Faction = "villager" // 好人阵营
)

// Faction 角色所属阵营
func (r Role) Faction() Faction {
	if r == Werewolf {
		return FactionWerewolf
	}
	return FactionVillager
}

// CanVote 是否可以参与白天投票
func (r Role) CanVote() bool {
	return r.Valid()
}

// HasNightAction 是否拥有夜晚技能
func (r Role) HasNightAction() bool {
	switch r {
	case Werewolf, Seer, Witch, Guard:
		return true
	default:
		return false
	}
}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case Werewolf, Villager, Seer, Witch, Hunter, Guard:
		return true
	}
	return false
}

// DisplayName 角色中文名
func (r Role) DisplayName() string {
	switch r {
	case Werewolf:
		return "狼人"
	case Villager:
		return "村民"
	case Seer:
		return "预言家"
	case Witch:
		return "女巫"
	case Hunter:
		return "猎人"
	case Guard:
		return "守卫"
	}
	return string(r)
}

// Description 角色说明
func (r Role) Description() string {
	switch r {
	case Werewolf:
		return "狼人：夜晚可以杀死一名玩家，目标是消灭所有好人"
	case Villager:
		return "村民：普通村民，没有特殊技能，依靠投票和推理找出狼人"
	case Seer:
		return "预言家：每晚可以查验一名玩家的身份"
	case Witch:
		return "女巫：拥有一瓶解药和一瓶毒药，可以救人或杀人"
	case Hunter:
		return "猎人：被投票出局或被狼人杀死时，可以带走一名玩家"
	case Guard:
		return "守卫：每晚可以保护一名玩家，使其免受狼人攻击"
	}
	return ""
}

// DisplayName 阵营中文名
func (f Faction) DisplayName() string {
	switch f {
	case FactionWerewolf:
		return "狼人"
	case FactionVillager:
		return "好人"
	}
	return "未知"
}

// Description 阵营目标
func (f Faction) Description() string {
	switch f {
	case FactionWerewolf:
		return "狼人阵营：消灭所有好人"
	case FactionVillager:
		return "好人阵营：找出并消灭所有狼人"
	}
	return ""
}

// Phase 游戏阶段
type Phase string

const (
	PhasePreparation   Phase = "preparation"    // 准备阶段
	PhaseNight         Phase = "night"          // 夜晚
	PhaseDayDiscussion Phase = "day_discussion" // 白天讨论
	PhaseVoting        Phase = "voting"         // 投票
	PhaseLastWords     Phase = "last_words"     // 遗言
	PhaseGameOver      Phase = "game_over"      // 游戏结束
)

// DisplayName 阶段中文名
func (p Phase) DisplayName() string {
	switch p {
	case PhasePreparation:
		return "准备"
	case PhaseNight:
		return "夜晚"
	case PhaseDayDiscussion:
		return "白天讨论"
	case PhaseVoting:
		return "投票"
	case PhaseLastWords:
		return "遗言"
	case PhaseGameOver:
		return "游戏结束"
	}
	return string(p)
}

// PlayerType 玩家类型
type PlayerType string

const (
	HumanPlayer PlayerType = "human" // 真人玩家
	AIPlayer    PlayerType = "ai"    // AI玩家
)

// Player 玩家信息
type Player struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        PlayerType   `json:"type"`
	Role        Role         `json:"role,omitempty"`
	Faction     Faction      `json:"faction,omitempty"`
	Alive       bool         `json:"alive"`
	Personality *Personality `json:"personality,omitempty"`
}

// IsAgent 是否由AI控制
func (p Player) IsAgent() bool {
	return p.Type == AIPlayer
}

// Vote 一张投票
type Vote struct {
	VoterID   string    `json:"voter_id"`
	TargetID  string    `json:"target_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NightActionType 夜晚行动类型
type NightActionType string

const (
	ActionKill    NightActionType = "kill"    // 狼人击杀
	ActionCheck   NightActionType = "check"   // 预言家查验
	ActionHeal    NightActionType = "heal"    // 女巫解药
	ActionProtect NightActionType = "protect" // 守卫守护
	ActionPoison  NightActionType = "poison"  // 女巫毒药
)

// ParseNightActionType 解析夜晚行动类型
func ParseNightActionType(s string) (NightActionType, bool) {
	switch NightActionType(s) {
	case ActionKill, ActionCheck, ActionHeal, ActionProtect, ActionPoison:
		return NightActionType(s), true
	case "save":
		return ActionHeal, true
	}
	return "", false
}

// NightAction 夜晚行动
type NightAction struct {
	Type     NightActionType `json:"type"`
	ActorID  string          `json:"actor_id"`
	TargetID string          `json:"target_id,omitempty"`
}

// CheckResult 预言家查验结果
type CheckResult struct {
	SeerID     string `json:"seer_id"`
	TargetID   string `json:"target_id"`
	IsWerewolf bool   `json:"is_werewolf"`
}

// NightOutcome 一晚的结算结果
type NightOutcome struct {
	Day        int           `json:"day"`
	KillTarget string        `json:"kill_target,omitempty"`
	Protected  []string      `json:"protected,omitempty"`
	Healed     []string      `json:"healed,omitempty"`
	Poisoned   []string      `json:"poisoned,omitempty"`
	Deaths     []string      `json:"deaths,omitempty"`
	Checks     []CheckResult `json:"checks,omitempty"`
}

// DeathCause 出局原因
type DeathCause string

const (
	CauseKilled   DeathCause = "killed"   // 被狼人杀死
	CausePoisoned DeathCause = "poisoned" // 被毒死
	CauseVoted    DeathCause = "voted"    // 被投票出局
	CauseShot     DeathCause = "shot"     // 被猎人带走
)

// MinPlayers 一局游戏的最少人数
const MinPlayers = 3

// GameConfig 游戏配置
type GameConfig struct {
	TotalPlayers     int          `json:"total_players" mapstructure:"total_players"`
	RoleDistribution map[Role]int `json:"role_distribution,omitempty" mapstructure:"role_distribution"`
	DiscussionTime   int          `json:"discussion_time" mapstructure:"discussion_time"` // 秒
	VotingTime       int          `json:"voting_time" mapstructure:"voting_time"`
	NightTime        int          `json:"night_time" mapstructure:"night_time"`
	LastWordsTime    int          `json:"last_words_time" mapstructure:"last_words_time"` // 0 表示关闭遗言
}

// PhaseDuration 阶段时长（秒）
func (c GameConfig) PhaseDuration(p Phase) int {
	switch p {
	case PhaseNight:
		return c.NightTime
	case PhaseDayDiscussion:
		return c.DiscussionTime
	case PhaseVoting:
		return c.VotingTime
	case PhaseLastWords:
		return c.LastWordsTime
	}
	return 0
}

// DefaultGameConfig 默认8人局配置
func DefaultGameConfig() GameConfig {
	return GameConfig{
		TotalPlayers:   8,
		DiscussionTime: 300,
		VotingTime:     60,
		NightTime:      60,
	}
}

// Speech 一次发言
type Speech struct {
	PlayerID  string    `json:"player_id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Day       int       `json:"day"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// GameAction 玩家提交的动作
type GameAction struct {
	Type      string `json:"type" binding:"required"`
	PlayerID  string `json:"player_id"`
	TargetID  string `json:"target_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
	GameID    string `json:"game_id"`           // 游戏ID
	Content   string `json:"content,omitempty"` // 发言内容
}

// GameStatus 某个玩家视角下的游戏状态
type GameStatus struct {
	GameID      string        `json:"game_id"`
	Phase       Phase         `json:"phase"`
	Day         int           `json:"day"`
	Players     []Player      `json:"players"`
	DeadPlayers []Player      `json:"dead_players"`
	Votes       []Vote        `json:"votes,omitempty"`
	Actions     []string      `json:"actions"`   // 可执行的动作
	TimeLeft    int           `json:"time_left"` // 剩余时间
	Winner      Faction       `json:"winner,omitempty"`
	Speeches    []Speech      `json:"speeches,omitempty"`
	LastNight   *NightOutcome `json:"last_night,omitempty"`
}

// Room 游戏房间，一个真人玩家加若干AI
type Room struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	HumanID     string     `json:"human_id"`
	HumanName   string     `json:"human_name"`
	Config      GameConfig `json:"config"`
	GameStarted bool       `json:"game_started"`
	CreatedAt   int64      `json:"created_at"`
}
