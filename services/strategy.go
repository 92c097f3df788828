package services

import (
	"math/rand"

	"github.com/qianlnk/mindwolf/models"
)

// StrategyType 策略类型
type StrategyType string

const (
	StrategyAggressive StrategyType = "aggressive" // 激进
	StrategyDefensive  StrategyType = "defensive"  // 防守
	StrategyNeutral    StrategyType = "neutral"    // 中立
	StrategyDeceptive  StrategyType = "deceptive"  // 欺骗
	StrategyLogical    StrategyType = "logical"    // 逻辑
	StrategyChaotic    StrategyType = "chaotic"    // 混乱
)

// VotingStrategy 投票策略
type VotingStrategy string

const (
	VoteAggressive     VotingStrategy = "aggressive"
	VoteProtective     VotingStrategy = "protective"
	VoteIndependent    VotingStrategy = "independent"
	VoteFollowMajority VotingStrategy = "follow_majority"
	VoteRandom         VotingStrategy = "random"
)

// SpeechStyle 发言风格
type SpeechStyle string

const (
	StyleAnalytical SpeechStyle = "analytical"
	StyleEmotional  SpeechStyle = "emotional"
	StyleConcise    SpeechStyle = "concise"
	StyleCasual     SpeechStyle = "casual"
)

// SpeechType 需要生成的发言类型
type SpeechType string

const (
	SpeechAccusation  SpeechType = "accusation"
	SpeechDefense     SpeechType = "defense"
	SpeechInformation SpeechType = "information"
	SpeechGeneral     SpeechType = "general"
)

// SpeechTone 发言语气
type SpeechTone string

const (
	ToneAnalytical SpeechTone = "analytical"
	ToneAggressive SpeechTone = "aggressive"
	ToneNeutral    SpeechTone = "neutral"
	ToneConfident  SpeechTone = "confident"
	ToneDefensive  SpeechTone = "defensive"
)

// Strategy AI当前策略
type Strategy struct {
	Type            StrategyType   `json:"type"`
	Voting          VotingStrategy `json:"voting"`
	Style           SpeechStyle    `json:"style"`
	DeceptionLevel  float64        `json:"deception_level"`
	PriorityTargets []string       `json:"priority_targets"`
	AvoidTargets    []string       `json:"avoid_targets"`
}

// SpeechStrategy 一次发言的要点
type SpeechStrategy struct {
	Type              SpeechType `json:"type"`
	Target            string     `json:"target,omitempty"`
	Tone              SpeechTone `json:"tone"`
	Points            []string   `json:"points"`
	Confidence        float64    `json:"confidence"`
	DeceptionElements []string   `json:"deception_elements,omitempty"`
}

// 狼人眼中各角色的威胁程度
var threatLevels = map[models.Role]float64{
	models.Seer:     0.9,
	models.Witch:    0.8,
	models.Hunter:   0.7,
	models.Guard:    0.6,
	models.Villager: 0.3,
	models.Werewolf: 0.0,
}

// StrategySelector 根据性格、判断和局势选择具体行动
type StrategySelector struct {
	selfID      string
	role        models.Role
	personality models.Personality
	strategy    Strategy
	checked     map[string]bool
	rng         *rand.Rand
}

// NewStrategySelector 按性格和阵营生成初始策略
func NewStrategySelector(selfID string, role models.Role, personality models.Personality, rng *rand.Rand) *StrategySelector {
	return &StrategySelector{
		selfID:      selfID,
		role:        role,
		personality: personality,
		strategy:    initialStrategy(role.Faction(), personality),
		checked:     make(map[string]bool),
		rng:         rng,
	}
}

func initialStrategy(faction models.Faction, p models.Personality) Strategy {
	var kind StrategyType
	switch {
	case p.Impulsiveness >= 0.8 && p.Logic <= 0.3:
		kind = StrategyChaotic
	case faction == models.FactionWerewolf && p.Deception > 0.7:
		kind = StrategyDeceptive
	case faction == models.FactionWerewolf && p.Aggressiveness > 0.6:
		kind = StrategyAggressive
	case faction == models.FactionWerewolf:
		kind = StrategyDefensive
	case p.Logic > 0.7:
		kind = StrategyLogical
	case p.Aggressiveness > 0.6:
		kind = StrategyAggressive
	default:
		kind = StrategyNeutral
	}

	style := StyleConcise
	switch {
	case kind == StrategyChaotic:
		style = StyleCasual
	case p.Logic > 0.7:
		style = StyleAnalytical
	case p.Aggressiveness > 0.6:
		style = StyleEmotional
	}

	return Strategy{
		Type:            kind,
		Voting:          votingFor(kind),
		Style:           style,
		DeceptionLevel:  p.Deception,
		PriorityTargets: make([]string, 0),
		AvoidTargets:    make([]string, 0),
	}
}

func votingFor(kind StrategyType) VotingStrategy {
	switch kind {
	case StrategyAggressive:
		return VoteAggressive
	case StrategyDefensive:
		return VoteProtective
	case StrategyLogical:
		return VoteIndependent
	case StrategyDeceptive:
		return VoteFollowMajority
	case StrategyChaotic:
		return VoteRandom
	default:
		return VoteIndependent
	}
}

// Strategy 当前策略副本
func (s *StrategySelector) Strategy() Strategy {
	out := s.strategy
	out.PriorityTargets = append([]string(nil), s.strategy.PriorityTargets...)
	out.AvoidTargets = append([]string(nil), s.strategy.AvoidTargets...)
	return out
}

// Personality 当前性格
func (s *StrategySelector) Personality() models.Personality {
	return s.personality
}

// UpdateStrategy 第3天以后提高欺骗程度，防守型转为激进型
func (s *StrategySelector) UpdateStrategy(state GameState, belief *BeliefModel) {
	if state.Day > 3 {
		s.personality.Deception = models.Clamp01(s.personality.Deception + 0.1)
		s.strategy.DeceptionLevel = s.personality.Deception
		if s.strategy.Type == StrategyDefensive {
			s.strategy.Type = StrategyAggressive
			s.strategy.Voting = votingFor(StrategyAggressive)
		}
	}

	s.strategy.PriorityTargets = make([]string, 0, 1)
	if id, ok := belief.MostSuspicious(); ok {
		s.strategy.PriorityTargets = append(s.strategy.PriorityTargets, id)
	}
	s.strategy.AvoidTargets = make([]string, 0, 1)
	if id, ok := belief.MostTrusted(); ok {
		s.strategy.AvoidTargets = append(s.strategy.AvoidTargets, id)
	}
}

// DecideNightAction 按角色决定夜晚行动，没有合法目标时返回 false。
// 女巫的解药目标留空，由调用方对照当晚的击杀目标补上。
func (s *StrategySelector) DecideNightAction(state GameState, belief *BeliefModel) (models.NightAction, bool) {
	action := models.NightAction{ActorID: s.selfID}

	switch s.role {
	case models.Werewolf:
		target, ok := s.selectKillTarget(state, belief)
		if !ok {
			return action, false
		}
		action.Type = models.ActionKill
		action.TargetID = target

	case models.Seer:
		candidates := make([]string, 0)
		for _, id := range s.livingOthers(state) {
			if !s.checked[id] {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			candidates = s.livingOthers(state)
		}
		target, ok := belief.MostSuspiciousAmong(candidates)
		if !ok {
			target, ok = s.randomOf(candidates)
		}
		if !ok {
			return action, false
		}
		s.checked[target] = true
		action.Type = models.ActionCheck
		action.TargetID = target

	case models.Witch:
		potions := state.Potions[s.selfID]
		if s.rng.Float64() < 0.7 {
			if potions.HealUsed {
				return action, false
			}
			action.Type = models.ActionHeal
			return action, true
		}
		if potions.PoisonUsed {
			return action, false
		}
		target, ok := belief.MostSuspiciousAmong(s.livingOthers(state))
		if !ok {
			return action, false
		}
		action.Type = models.ActionPoison
		action.TargetID = target

	case models.Guard:
		candidates := make([]string, 0)
		for _, id := range s.livingOthers(state) {
			if state.LastProtected[s.selfID] != id {
				candidates = append(candidates, id)
			}
		}
		target, ok := belief.MostTrustedAmong(candidates)
		if !ok {
			target, ok = s.randomOf(candidates)
		}
		if !ok {
			return action, false
		}
		action.Type = models.ActionProtect
		action.TargetID = target

	default:
		return action, false
	}

	return action, true
}

// selectKillTarget 狼人选刀
func (s *StrategySelector) selectKillTarget(state GameState, belief *BeliefModel) (string, bool) {
	candidates := make([]string, 0)
	for _, p := range state.Players {
		if p.ID != s.selfID && p.Faction != models.FactionWerewolf {
			candidates = append(candidates, p.ID)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	switch s.strategy.Type {
	case StrategyAggressive:
		if id, ok := belief.MostTrustedAmong(candidates); ok {
			return id, true
		}
		return s.randomOf(candidates)

	case StrategyDeceptive:
		medium := make([]string, 0)
		for _, id := range candidates {
			if p := belief.FactionProbability(id); p >= 0.3 && p <= 0.7 {
				medium = append(medium, id)
			}
		}
		if len(medium) > 0 {
			return s.randomOf(medium)
		}
		return s.randomOf(candidates)

	default:
		best := make([]string, 0)
		bestScore := -1.0
		for _, id := range sortedIDs(candidates) {
			score := s.killScore(id, belief)
			switch {
			case score > bestScore:
				best = append(best[:0], id)
				bestScore = score
			case score == bestScore:
				best = append(best, id)
			}
		}
		return s.randomOf(best)
	}
}

// killScore (1 - 怀疑度) * 预期威胁
func (s *StrategySelector) killScore(id string, belief *BeliefModel) float64 {
	node, ok := belief.Node(id)
	if !ok {
		return 0
	}
	threat := 0.0
	for role, p := range node.RoleProbabilities {
		threat += p * threatLevels[role]
	}
	return (1 - node.Suspicion) * threat
}

// DecideVoteTarget 按投票策略决定投票对象
func (s *StrategySelector) DecideVoteTarget(state GameState, belief *BeliefModel) (string, bool) {
	candidates := make([]string, 0, len(state.Players))
	for _, p := range state.Players {
		if p.ID == s.selfID || (s.role == models.Werewolf && p.Faction == models.FactionWerewolf) {
			continue
		}
		candidates = append(candidates, p.ID)
	}
	if len(candidates) == 0 {
		return "", false
	}

	switch s.strategy.Voting {
	case VoteAggressive, VoteIndependent:
		if id, ok := belief.MostSuspiciousAmong(candidates); ok {
			return id, true
		}
		return s.randomOf(candidates)

	case VoteProtective:
		suspect, ok := belief.MostSuspiciousAmong(candidates)
		trusted, _ := belief.MostTrustedAmong(candidates)
		if !ok || suspect == trusted {
			return s.randomOf(candidates)
		}
		return suspect, true

	default:
		return s.randomOf(candidates)
	}
}

// DecideHunterShot 猎人出局时带走最可疑的人
func (s *StrategySelector) DecideHunterShot(state GameState, belief *BeliefModel) (string, bool) {
	candidates := s.livingOthers(state)
	if id, ok := belief.MostSuspiciousAmong(candidates); ok {
		return id, true
	}
	return s.randomOf(candidates)
}

// GenerateSpeechStrategy 生成发言要点
func (s *StrategySelector) GenerateSpeechStrategy(kind SpeechType, belief *BeliefModel) SpeechStrategy {
	out := SpeechStrategy{Type: kind}

	switch kind {
	case SpeechAccusation:
		out.Target, _ = belief.MostSuspicious()
		switch s.strategy.Style {
		case StyleAnalytical:
			out.Tone = ToneAnalytical
		case StyleEmotional:
			out.Tone = ToneAggressive
		case StyleCasual:
			out.Tone = ToneNeutral
		default:
			out.Tone = ToneConfident
		}
		out.Points = []string{"指出可疑行为", "分析投票模式", "提供逻辑推理"}
		out.Confidence = s.personality.Aggressiveness

	case SpeechDefense:
		out.Tone = ToneDefensive
		out.Points = []string{"澄清误解", "提供证据", "反驳指控"}
		out.Confidence = 0.8

	case SpeechInformation:
		out.Target, _ = belief.MostTrusted()
		out.Tone = ToneAnalytical
		out.Points = []string{"分享观察", "提供信息", "建议策略"}
		out.Confidence = s.personality.Logic

	default:
		out.Tone = ToneNeutral
		out.Points = []string{"一般发言"}
		out.Confidence = 0.5
	}

	if s.strategy.DeceptionLevel > 0.5 {
		out.DeceptionElements = []string{"混淆视听", "转移注意力"}
	}
	return out
}

func (s *StrategySelector) livingOthers(state GameState) []string {
	ids := make([]string, 0, len(state.Players))
	for _, p := range state.Players {
		if p.ID != s.selfID {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (s *StrategySelector) randomOf(ids []string) (string, bool) {
	if len(ids) == 0 {
		return "", false
	}
	return ids[s.rng.Intn(len(ids))], true
}
