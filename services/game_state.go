package services

import (
	"github.com/qianlnk/mindwolf/models"
)

// GameState 游戏状态，只能通过 StateMachine 修改
type GameState struct {
	ID             string                  `json:"id"`
	Phase          models.Phase            `json:"phase"`
	Day            int                     `json:"day"`
	Players        []models.Player         `json:"players"`      // 存活玩家
	DeadPlayers    []models.Player         `json:"dead_players"` // 出局玩家
	Votes          []models.Vote           `json:"votes"`        // 本轮待结算的投票
	Winner         models.Faction          `json:"winner,omitempty"`
	TimeLeft       int                     `json:"time_left"`
	NightActions   []models.NightAction    `json:"night_actions"` // 本晚已提交的行动
	LastNight      *models.NightOutcome    `json:"last_night,omitempty"`
	LastEliminated string                  `json:"last_eliminated,omitempty"`
	PendingShooter string                  `json:"pending_shooter,omitempty"` // 等待开枪的真人猎人
	Potions        map[string]WitchPotions `json:"potions"`        // 女巫药水状态
	LastProtected  map[string]string       `json:"last_protected"` // 守卫上一晚守护的目标
	Speeches       []models.Speech         `json:"speeches"`
	Distribution   map[models.Role]int     `json:"distribution"`

	index map[string]int // 存活玩家ID -> Players 下标
}

func newGameState(id string) *GameState {
	return &GameState{
		ID:            id,
		Phase:         models.PhasePreparation,
		Players:       make([]models.Player, 0),
		DeadPlayers:   make([]models.Player, 0),
		Votes:         make([]models.Vote, 0),
		Potions:       make(map[string]WitchPotions),
		LastProtected: make(map[string]string),
		Distribution:  make(map[models.Role]int),
		index:         make(map[string]int),
	}
}

// reindex 重建ID到下标的映射
func (gs *GameState) reindex() {
	gs.index = make(map[string]int, len(gs.Players))
	for i, p := range gs.Players {
		gs.index[p.ID] = i
	}
}

// LivePlayer 获取存活玩家
func (gs GameState) LivePlayer(id string) (models.Player, bool) {
	if gs.index != nil {
		if i, ok := gs.index[id]; ok && i < len(gs.Players) && gs.Players[i].ID == id {
			return gs.Players[i], true
		}
		return models.Player{}, false
	}
	for _, p := range gs.Players {
		if p.ID == id {
			return p, true
		}
	}
	return models.Player{}, false
}

// FindPlayer 在存活和出局玩家中查找
func (gs GameState) FindPlayer(id string) (models.Player, bool) {
	if p, ok := gs.LivePlayer(id); ok {
		return p, true
	}
	for _, p := range gs.DeadPlayers {
		if p.ID == id {
			return p, true
		}
	}
	return models.Player{}, false
}

// IsAlive 玩家是否存活
func (gs GameState) IsAlive(id string) bool {
	_, ok := gs.LivePlayer(id)
	return ok
}

// AliveIDs 存活玩家ID，按座位顺序
func (gs GameState) AliveIDs() []string {
	ids := make([]string, 0, len(gs.Players))
	for _, p := range gs.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

// CountFactions 统计双方存活人数
func (gs GameState) CountFactions() (werewolves, villagers int) {
	for _, p := range gs.Players {
		if p.Faction == models.FactionWerewolf {
			werewolves++
		} else {
			villagers++
		}
	}
	return werewolves, villagers
}

// AllPlayers 全部玩家，存活在前
func (gs GameState) AllPlayers() []models.Player {
	out := make([]models.Player, 0, len(gs.Players)+len(gs.DeadPlayers))
	out = append(out, gs.Players...)
	return append(out, gs.DeadPlayers...)
}

// Clone 深拷贝，供其他组件只读使用
func (gs *GameState) Clone() GameState {
	out := *gs
	out.Players = clonePlayers(gs.Players)
	out.DeadPlayers = clonePlayers(gs.DeadPlayers)
	out.Votes = append([]models.Vote(nil), gs.Votes...)
	out.NightActions = append([]models.NightAction(nil), gs.NightActions...)
	out.Speeches = append([]models.Speech(nil), gs.Speeches...)
	if gs.LastNight != nil {
		night := *gs.LastNight
		night.Protected = append([]string(nil), gs.LastNight.Protected...)
		night.Healed = append([]string(nil), gs.LastNight.Healed...)
		night.Poisoned = append([]string(nil), gs.LastNight.Poisoned...)
		night.Deaths = append([]string(nil), gs.LastNight.Deaths...)
		night.Checks = append([]models.CheckResult(nil), gs.LastNight.Checks...)
		out.LastNight = &night
	}
	out.Potions = make(map[string]WitchPotions, len(gs.Potions))
	for k, v := range gs.Potions {
		out.Potions[k] = v
	}
	out.LastProtected = make(map[string]string, len(gs.LastProtected))
	for k, v := range gs.LastProtected {
		out.LastProtected[k] = v
	}
	out.Distribution = make(map[models.Role]int, len(gs.Distribution))
	for k, v := range gs.Distribution {
		out.Distribution[k] = v
	}
	out.index = nil
	out.reindex()
	return out
}

func clonePlayers(players []models.Player) []models.Player {
	out := make([]models.Player, len(players))
	for i, p := range players {
		if p.Personality != nil {
			personality := *p.Personality
			p.Personality = &personality
		}
		out[i] = p
	}
	return out
}
