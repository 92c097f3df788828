package services

import (
	"fmt"

	"github.com/qianlnk/mindwolf/models"
)

// WitchPotions 女巫药水使用情况，整局各一瓶
type WitchPotions struct {
	HealUsed   bool `json:"heal_used"`
	PoisonUsed bool `json:"poison_used"`
}

// SkillManager 技能校验与夜晚结算
type SkillManager struct {
	game *GameState
}

// NewSkillManager 创建技能管理器实例
func NewSkillManager(game *GameState) *SkillManager {
	return &SkillManager{game: game}
}

// nightDeath 夜晚结算出的死亡
type nightDeath struct {
	playerID string
	cause    models.DeathCause
}

// Validate 检查技能是否还能使用
func (sm *SkillManager) Validate(actor models.Player, action models.NightAction) error {
	if !isValidNightAction(actor.Role, action.Type) {
		return fmt.Errorf("%w: %s 不能执行 %s", ErrInvalidAction, actor.Role.DisplayName(), action.Type)
	}
	if _, ok := sm.game.LivePlayer(action.TargetID); !ok {
		return ErrTargetUnavailable
	}

	switch action.Type {
	case models.ActionKill:
		// 狼人不能刀同伴
		target, _ := sm.game.LivePlayer(action.TargetID)
		if target.Faction == models.FactionWerewolf {
			return fmt.Errorf("%w: 不能击杀狼人同伴", ErrInvalidAction)
		}
	case models.ActionHeal:
		if sm.game.Potions[actor.ID].HealUsed {
			return ErrPotionUsed
		}
	case models.ActionPoison:
		if sm.game.Potions[actor.ID].PoisonUsed {
			return ErrPotionUsed
		}
	case models.ActionProtect:
		if sm.game.LastProtected[actor.ID] == action.TargetID {
			return ErrRepeatProtect
		}
	}
	return nil
}

// KillTarget 狼人的击杀目标，多数票决定，平票取ID最小者
func (sm *SkillManager) KillTarget() string {
	counts := make(map[string]int)
	for _, action := range sm.liveActions() {
		if action.Type == models.ActionKill {
			counts[action.TargetID]++
		}
	}
	return pluralityTarget(counts)
}

// liveActions 行动者和目标都还存活的行动，夜里出局的玩家行动作废
func (sm *SkillManager) liveActions() []models.NightAction {
	actions := make([]models.NightAction, 0, len(sm.game.NightActions))
	for _, action := range sm.game.NightActions {
		if sm.game.IsAlive(action.ActorID) && sm.game.IsAlive(action.TargetID) {
			actions = append(actions, action)
		}
	}
	return actions
}

// Resolve 统一结算本晚全部行动：守护 > 击杀 > 毒药，解药抵消击杀
func (sm *SkillManager) Resolve() (models.NightOutcome, []nightDeath) {
	outcome := models.NightOutcome{Day: sm.game.Day}
	protected := make(map[string]bool)
	healed := make(map[string]bool)
	poisoned := make([]string, 0)
	guardsActed := make(map[string]bool)

	for _, action := range sm.liveActions() {
		switch action.Type {
		case models.ActionProtect:
			protected[action.TargetID] = true
			outcome.Protected = append(outcome.Protected, action.TargetID)
			sm.game.LastProtected[action.ActorID] = action.TargetID
			guardsActed[action.ActorID] = true
		case models.ActionHeal:
			healed[action.TargetID] = true
			outcome.Healed = append(outcome.Healed, action.TargetID)
			potions := sm.game.Potions[action.ActorID]
			potions.HealUsed = true
			sm.game.Potions[action.ActorID] = potions
		case models.ActionPoison:
			poisoned = append(poisoned, action.TargetID)
			potions := sm.game.Potions[action.ActorID]
			potions.PoisonUsed = true
			sm.game.Potions[action.ActorID] = potions
		case models.ActionCheck:
			if target, ok := sm.game.LivePlayer(action.TargetID); ok {
				outcome.Checks = append(outcome.Checks, models.CheckResult{
					SeerID:     action.ActorID,
					TargetID:   action.TargetID,
					IsWerewolf: target.Faction == models.FactionWerewolf,
				})
			}
		}
	}

	// 没有守护的守卫下一晚可以守护任何人
	for guardID := range sm.game.LastProtected {
		if !guardsActed[guardID] {
			delete(sm.game.LastProtected, guardID)
		}
	}

	deaths := make([]nightDeath, 0)
	seen := make(map[string]bool)
	outcome.KillTarget = sm.KillTarget()
	if outcome.KillTarget != "" && !protected[outcome.KillTarget] && !healed[outcome.KillTarget] {
		deaths = append(deaths, nightDeath{playerID: outcome.KillTarget, cause: models.CauseKilled})
		seen[outcome.KillTarget] = true
	}
	for _, id := range poisoned {
		outcome.Poisoned = append(outcome.Poisoned, id)
		if !seen[id] {
			deaths = append(deaths, nightDeath{playerID: id, cause: models.CausePoisoned})
			seen[id] = true
		}
	}
	for _, d := range deaths {
		outcome.Deaths = append(outcome.Deaths, d.playerID)
	}

	return outcome, deaths
}

// pluralityTarget 票数最多者，平票时取ID最小者
func pluralityTarget(counts map[string]int) string {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	best := ""
	bestCount := 0
	for _, id := range sortedIDs(ids) {
		if counts[id] > bestCount {
			best = id
			bestCount = counts[id]
		}
	}
	return best
}
