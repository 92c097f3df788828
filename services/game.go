package services

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/qianlnk/mindwolf/models"
)

// 真人玩家的固定ID
const HumanPlayerID = "human_player"

var (
	ErrGameNotStarted    = errors.New("游戏尚未开始")
	ErrGameInProgress    = errors.New("游戏正在进行中")
	ErrGameOver          = errors.New("游戏已经结束")
	ErrInvalidAction     = errors.New("无效的游戏动作")
	ErrInvalidPhase      = errors.New("当前阶段无法执行该动作")
	ErrInvalidConfig     = errors.New("游戏配置无效")
	ErrNoPlayers         = errors.New("没有玩家")
	ErrPlayerNotFound    = errors.New("玩家不存在")
	ErrNotVotingPhase    = errors.New("当前不是投票阶段")
	ErrVoterUnavailable  = errors.New("投票者不存在或已死亡")
	ErrTargetUnavailable = errors.New("目标不存在或已死亡")
	ErrPotionUsed        = errors.New("药水已经使用过")
	ErrRepeatProtect     = errors.New("不能连续两晚守护同一名玩家")
)

// IsGameLogicError 是否为可恢复的游戏逻辑错误
func IsGameLogicError(err error) bool {
	for _, target := range []error{
		ErrGameNotStarted, ErrGameInProgress, ErrGameOver, ErrInvalidAction, ErrInvalidPhase,
		ErrNoPlayers, ErrNotVotingPhase, ErrVoterUnavailable, ErrTargetUnavailable,
		ErrPotionUsed, ErrRepeatProtect, ErrInvalidConfig,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RoleDistribution 根据总人数返回角色配置
func RoleDistribution(totalPlayers int) map[models.Role]int {
	switch totalPlayers {
	case 6:
		return map[models.Role]int{models.Werewolf: 2, models.Villager: 2, models.Seer: 1, models.Witch: 1}
	case 8:
		return map[models.Role]int{models.Werewolf: 3, models.Villager: 3, models.Seer: 1, models.Witch: 1}
	case 10:
		return map[models.Role]int{models.Werewolf: 3, models.Villager: 4, models.Seer: 1, models.Witch: 1, models.Hunter: 1}
	case 12:
		return map[models.Role]int{
			models.Werewolf: 4, models.Villager: 4, models.Seer: 1,
			models.Witch: 1, models.Hunter: 1, models.Guard: 1,
		}
	}
	villagers := totalPlayers - 2
	if villagers < 0 {
		villagers = 0
	}
	return map[models.Role]int{models.Werewolf: 2, models.Villager: villagers}
}

// distributionFor 配置里指定了角色分布则优先使用
func distributionFor(cfg models.GameConfig) (map[models.Role]int, error) {
	if cfg.TotalPlayers < models.MinPlayers {
		return nil, fmt.Errorf("%w: 玩家总数至少为%d，当前 %d", ErrInvalidConfig, models.MinPlayers, cfg.TotalPlayers)
	}
	if len(cfg.RoleDistribution) == 0 {
		return RoleDistribution(cfg.TotalPlayers), nil
	}
	sum := 0
	for role, n := range cfg.RoleDistribution {
		if !role.Valid() || n < 0 {
			return nil, fmt.Errorf("%w: 未知角色 %s", ErrInvalidConfig, role)
		}
		sum += n
	}
	if sum != cfg.TotalPlayers {
		return nil, fmt.Errorf("%w: 角色数量 %d 与玩家总数 %d 不一致", ErrInvalidConfig, sum, cfg.TotalPlayers)
	}
	out := make(map[models.Role]int, len(cfg.RoleDistribution))
	for role, n := range cfg.RoleDistribution {
		out[role] = n
	}
	return out, nil
}

// buildRoleDeck 生成角色牌堆并用 Fisher-Yates 洗牌
func buildRoleDeck(distribution map[models.Role]int, rng *rand.Rand) []models.Role {
	deck := make([]models.Role, 0)
	for _, role := range models.AllRoles {
		for i := 0; i < distribution[role]; i++ {
			deck = append(deck, role)
		}
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

var (
	nameAdjectives = []string{"聪明的", "机智的", "冷静的", "狡猾的", "勇敢的", "沉稳的", "敏锐的", "谨慎的", "果断的", "睿智的"}
	nameNouns      = []string{"狼", "鹰", "狐", "豹", "虎", "狮", "熊", "鹿", "鸟", "蛇"}
)

// generateAIPlayerName 生成不重复的AI昵称
func generateAIPlayerName(rng *rand.Rand, used map[string]bool) string {
	name := nameAdjectives[rng.Intn(len(nameAdjectives))] + nameNouns[rng.Intn(len(nameNouns))]
	if !used[name] {
		used[name] = true
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%d", name, i)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

// generateAIPlayerID AI玩家ID，从1开始
func generateAIPlayerID(index int) string {
	return fmt.Sprintf("ai_%d", index)
}

// 获取玩家在当前阶段可用的动作
func getAvailableActions(state *GameState, playerID string) []string {
	actions := make([]string, 0)
	if state.PendingShooter == playerID {
		actions = append(actions, "shoot")
	}
	player, ok := state.LivePlayer(playerID)
	if !ok {
		if state.Phase == models.PhaseLastWords && state.LastEliminated == playerID {
			actions = append(actions, "speak", "advance")
		}
		return actions
	}

	switch state.Phase {
	case models.PhaseNight:
		switch player.Role {
		case models.Werewolf:
			actions = append(actions, string(models.ActionKill))
		case models.Seer:
			actions = append(actions, string(models.ActionCheck))
		case models.Witch:
			potions := state.Potions[playerID]
			if !potions.HealUsed {
				actions = append(actions, string(models.ActionHeal))
			}
			if !potions.PoisonUsed {
				actions = append(actions, string(models.ActionPoison))
			}
		case models.Guard:
			actions = append(actions, string(models.ActionProtect))
		}

	case models.PhaseDayDiscussion:
		actions = append(actions, "speak", "advance")

	case models.PhaseVoting:
		if player.Role.CanVote() {
			actions = append(actions, "vote")
		}

	case models.PhaseLastWords:
		actions = append(actions, "advance")
	}

	return actions
}

// 验证夜晚行动与角色是否匹配
func isValidNightAction(role models.Role, action models.NightActionType) bool {
	switch action {
	case models.ActionKill:
		return role == models.Werewolf
	case models.ActionCheck:
		return role == models.Seer
	case models.ActionHeal, models.ActionPoison:
		return role == models.Witch
	case models.ActionProtect:
		return role == models.Guard
	default:
		return false
	}
}

// sortedIDs 按座位号排序，用于确定性的平票处理，ai_2 排在 ai_10 前面
func sortedIDs(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return seatLess(out[i], out[j]) })
	return out
}

// seatLess 先比前缀，再比末尾的数字，最后比整个字符串
func seatLess(a, b string) bool {
	pa, na, oka := splitSeat(a)
	pb, nb, okb := splitSeat(b)
	if pa != pb {
		return pa < pb
	}
	if oka && okb && na != nb {
		return na < nb
	}
	if oka != okb {
		return !oka
	}
	return a < b
}

func splitSeat(id string) (string, int, bool) {
	prefix := strings.TrimRight(id, "0123456789")
	if prefix == id {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[len(prefix):])
	if err != nil {
		return id, 0, false
	}
	return prefix, n, true
}
