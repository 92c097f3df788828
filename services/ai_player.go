package services

import (
	"math/rand"
	"sync"

	"github.com/qianlnk/mindwolf/models"
	"github.com/sirupsen/logrus"
)

// AIPlayer AI玩家，持有私有的推理模型、策略和发言记忆
type AIPlayer struct {
	ID   string
	Name string
	Role models.Role

	belief   *BeliefModel
	strategy *StrategySelector
	memory   *SpeechMemory
	roster   []models.Player
	accused  bool // 今天是否被人点名怀疑
	checks   int
	log      logrus.FieldLogger
	mutex    sync.Mutex
}

// NewAIPlayer 创建AI玩家实例，狼人在开局时就知道同伴
func NewAIPlayer(player models.Player, state GameState, rng *rand.Rand, log logrus.FieldLogger) *AIPlayer {
	var personality models.Personality
	if player.Personality != nil {
		personality = *player.Personality
	} else {
		personality = GeneratePersonality(rng, player.Role)
	}

	belief := NewBeliefModel(player.ID)
	belief.Initialize(state)
	if player.Role == models.Werewolf {
		for _, p := range state.AllPlayers() {
			if p.ID != player.ID && p.Role == models.Werewolf {
				belief.MarkAlly(p.ID)
			}
		}
	}

	return &AIPlayer{
		ID:       player.ID,
		Name:     player.Name,
		Role:     player.Role,
		belief:   belief,
		strategy: NewStrategySelector(player.ID, player.Role, personality, rng),
		memory:   NewSpeechMemory(0),
		roster:   state.AllPlayers(),
		log:      log.WithField("player_id", player.ID),
	}
}

// HandleEvent 根据公开事件更新推理
func (ai *AIPlayer) HandleEvent(e Event) {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()

	switch ev := e.(type) {
	case VoteCastEvent:
		if ev.Vote.VoterID != ai.ID {
			ai.belief.AnalyzeVote(ev.Vote.VoterID, ev.Vote.TargetID)
		}

	case SpeechEvent:
		ai.memory.Add(ev.Speech)
		if ev.Speech.PlayerID == ai.ID {
			return
		}
		ai.belief.AnalyzeSpeech(ev.Speech.PlayerID, ev.Speech.Content)
		analysis := AnalyzeSpeech(ev.Speech.Content, ai.roster)
		if analysis.Intent == IntentAccusation {
			for _, id := range analysis.TargetsMentioned {
				if id == ai.ID {
					ai.accused = true
				}
			}
		}

	case NightResolvedEvent:
		for _, check := range ev.Outcome.Checks {
			if check.SeerID == ai.ID {
				ai.belief.RecordCheck(check)
				ai.checks++
				ai.log.Debugf("[查验结果] %s 是否狼人: %v", check.TargetID, check.IsWerewolf)
			}
		}

	case PlayerEliminatedEvent:
		ai.belief.MarkDead(ev.Player.ID)

	case PhaseChangedEvent:
		ai.belief.SetDay(ev.Day)
		if ev.To == models.PhaseDayDiscussion {
			ai.accused = false
		}
	}
}

// Refresh 阶段开始时刷新策略
func (ai *AIPlayer) Refresh(state GameState) {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	ai.belief.SetDay(state.Day)
	ai.strategy.UpdateStrategy(state, ai.belief)
}

// DecideNightAction 决定夜晚行动
func (ai *AIPlayer) DecideNightAction(state GameState) (models.NightAction, bool) {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	return ai.strategy.DecideNightAction(state, ai.belief)
}

// DecideVote 决定投票目标
func (ai *AIPlayer) DecideVote(state GameState) (string, bool) {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	return ai.strategy.DecideVoteTarget(state, ai.belief)
}

// DecideHunterShot 猎人出局时选择带走的目标
func (ai *AIPlayer) DecideHunterShot(state GameState) string {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	target, _ := ai.strategy.DecideHunterShot(state, ai.belief)
	return target
}

// PlanSpeech 决定发言类型并生成要点
func (ai *AIPlayer) PlanSpeech() SpeechStrategy {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	return ai.strategy.GenerateSpeechStrategy(ai.speechType(), ai.belief)
}

func (ai *AIPlayer) speechType() SpeechType {
	switch {
	case ai.accused:
		return SpeechDefense
	case ai.Role == models.Seer && ai.checks > 0:
		return SpeechInformation
	case ai.strategy.Personality().Aggressiveness > 0.5:
		return SpeechAccusation
	default:
		return SpeechGeneral
	}
}

// RecentSpeeches 最近听到的发言
func (ai *AIPlayer) RecentSpeeches(n int) []models.Speech {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	return ai.memory.Recent(n)
}

// NameOf 根据ID查玩家名字
func (ai *AIPlayer) NameOf(id string) string {
	for _, p := range ai.roster {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

// Analysis 推理报告
func (ai *AIPlayer) Analysis() []AnalysisEntry {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	return ai.belief.AnalysisReport()
}

// Strategy 当前策略
func (ai *AIPlayer) Strategy() Strategy {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	return ai.strategy.Strategy()
}

// Personality 当前性格
func (ai *AIPlayer) Personality() models.Personality {
	ai.mutex.Lock()
	defer ai.mutex.Unlock()
	return ai.strategy.Personality()
}
