package services

import (
	"sort"
	"time"

	"github.com/qianlnk/mindwolf/models"
)

// EvidenceType 证据类型
type EvidenceType string

const (
	EvidenceVotingPattern        EvidenceType = "voting_pattern"
	EvidenceSpeechAnalysis       EvidenceType = "speech_analysis"
	EvidenceNightResult          EvidenceType = "night_result"
	EvidenceRoleClaimConsistency EvidenceType = "role_claim_consistency"
	EvidenceDefensiveBehavior    EvidenceType = "defensive_behavior"
	EvidenceAggressiveBehavior   EvidenceType = "aggressive_behavior"
	EvidenceLogicalInconsistency EvidenceType = "logical_inconsistency"
	EvidenceTeamworkIndicator    EvidenceType = "teamwork_indicator"
)

// Evidence 一条观察证据，只追加不删除
type Evidence struct {
	Type       EvidenceType `json:"type"`
	Confidence float64      `json:"confidence"`
	Weight     float64      `json:"weight"`
	Source     string       `json:"source"`
	Day        int          `json:"day"`
	Timestamp  time.Time    `json:"timestamp"`
}

// evidenceEffect 每单位 weight*confidence 对各项分数的增量
type evidenceEffect struct {
	suspicion float64
	trust     float64
	faction   float64
}

var evidenceEffects = map[EvidenceType]evidenceEffect{
	EvidenceSpeechAnalysis:       {suspicion: 0.2, trust: -0.1},
	EvidenceVotingPattern:        {faction: 0.15},
	EvidenceDefensiveBehavior:    {suspicion: 0.25},
	EvidenceLogicalInconsistency: {suspicion: 0.4, faction: 0.3},
	EvidenceAggressiveBehavior:   {suspicion: 0.1},
	EvidenceNightResult:          {suspicion: 0.5, trust: -0.5, faction: 0.5},
	EvidenceRoleClaimConsistency: {trust: 0.2},
	EvidenceTeamworkIndicator:    {suspicion: -0.2, trust: 0.3, faction: -0.3},
}

// BeliefNode 对某一名玩家的判断
type BeliefNode struct {
	PlayerID           string                  `json:"player_id"`
	RoleProbabilities  map[models.Role]float64 `json:"role_probabilities"`
	FactionProbability float64                 `json:"faction_probability"` // 属于狼人阵营的概率
	Trust              float64                 `json:"trust"`
	Suspicion          float64                 `json:"suspicion"`
	Evidence           []Evidence              `json:"evidence"`
	Alive              bool                    `json:"alive"`
}

// MostLikelyRole 概率最高的角色，平局按角色顺序
func (n *BeliefNode) MostLikelyRole() models.Role {
	best := models.Villager
	bestP := -1.0
	for _, role := range models.AllRoles {
		if p := n.RoleProbabilities[role]; p > bestP {
			best, bestP = role, p
		}
	}
	return best
}

// BeliefModel 单个AI的推理模型，不做跨玩家归一化
type BeliefModel struct {
	ownerID string
	nodes   map[string]*BeliefNode
	day     int
	now     func() time.Time
}

// NewBeliefModel 创建推理模型
func NewBeliefModel(ownerID string) *BeliefModel {
	return &BeliefModel{
		ownerID: ownerID,
		nodes:   make(map[string]*BeliefNode),
		now:     time.Now,
	}
}

// Initialize 用公开的角色分布初始化每个其他玩家的判断
func (b *BeliefModel) Initialize(state GameState) {
	total := 0
	for _, n := range state.Distribution {
		total += n
	}
	b.day = state.Day
	b.nodes = make(map[string]*BeliefNode)

	for _, p := range state.AllPlayers() {
		if p.ID == b.ownerID {
			continue
		}
		probs := make(map[models.Role]float64, len(models.AllRoles))
		for _, role := range models.AllRoles {
			if total > 0 {
				probs[role] = float64(state.Distribution[role]) / float64(total)
			}
		}
		b.nodes[p.ID] = &BeliefNode{
			PlayerID:           p.ID,
			RoleProbabilities:  probs,
			FactionProbability: probs[models.Werewolf],
			Trust:              0.5,
			Suspicion:          0.5,
			Evidence:           make([]Evidence, 0),
			Alive:              p.Alive,
		}
	}
}

// KnowRole 已确定身份，例如狼人同伴或查验结果
func (b *BeliefModel) KnowRole(playerID string, role models.Role) {
	node, ok := b.nodes[playerID]
	if !ok {
		return
	}
	for r := range node.RoleProbabilities {
		node.RoleProbabilities[r] = 0
	}
	node.RoleProbabilities[role] = 1
	if role.Faction() == models.FactionWerewolf {
		node.FactionProbability = 1
	} else {
		node.FactionProbability = 0
	}
}

// MarkAlly 狼人同伴：身份确定且完全信任
func (b *BeliefModel) MarkAlly(playerID string) {
	b.KnowRole(playerID, models.Werewolf)
	if node, ok := b.nodes[playerID]; ok {
		node.Trust = 1
		node.Suspicion = 0
	}
}

// SetDay 更新当前天数，记录证据时使用
func (b *BeliefModel) SetDay(day int) {
	b.day = day
}

// AddEvidence 追加证据并增量更新分数
func (b *BeliefModel) AddEvidence(playerID string, ev Evidence) {
	node, ok := b.nodes[playerID]
	if !ok {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}
	if ev.Day == 0 {
		ev.Day = b.day
	}
	ev.Weight = models.Clamp01(ev.Weight)
	ev.Confidence = models.Clamp01(ev.Confidence)
	node.Evidence = append(node.Evidence, ev)

	effect, ok := evidenceEffects[ev.Type]
	if !ok {
		effect = evidenceEffect{suspicion: 0.1}
	}
	strength := ev.Weight * ev.Confidence
	node.Suspicion = models.Clamp01(node.Suspicion + effect.suspicion*strength)
	node.Trust = models.Clamp01(node.Trust + effect.trust*strength)
	node.FactionProbability = models.Clamp01(node.FactionProbability + effect.faction*strength)
}

// AnalyzeVote 记录投票者的投票行为
func (b *BeliefModel) AnalyzeVote(voterID, targetID string) {
	b.AddEvidence(voterID, Evidence{
		Type:       EvidenceVotingPattern,
		Confidence: 0.8,
		Weight:     0.3,
		Source:     "voting_analysis: " + targetID,
	})
}

// AnalyzeSpeech 用关键词规则给发言打分并记为证据
func (b *BeliefModel) AnalyzeSpeech(playerID, text string) {
	weight, confidence := SuspicionScore(text)
	b.AddEvidence(playerID, Evidence{
		Type:       EvidenceSpeechAnalysis,
		Confidence: confidence,
		Weight:     weight,
		Source:     "speech_analysis",
	})
}

// RecordCheck 记录自己的查验结果
func (b *BeliefModel) RecordCheck(result models.CheckResult) {
	if result.IsWerewolf {
		b.KnowRole(result.TargetID, models.Werewolf)
		b.AddEvidence(result.TargetID, Evidence{Type: EvidenceNightResult, Confidence: 1, Weight: 1, Source: "seer_check"})
		return
	}
	b.AddEvidence(result.TargetID, Evidence{Type: EvidenceTeamworkIndicator, Confidence: 1, Weight: 1, Source: "seer_check"})
	if node, ok := b.nodes[result.TargetID]; ok {
		node.FactionProbability = 0
		node.RoleProbabilities[models.Werewolf] = 0
	}
}

// MarkDead 出局玩家不再参与查询
func (b *BeliefModel) MarkDead(playerID string) {
	if node, ok := b.nodes[playerID]; ok {
		node.Alive = false
	}
}

// MostSuspicious 怀疑度最高的存活玩家，平局取ID最小者
func (b *BeliefModel) MostSuspicious() (string, bool) {
	return b.MostSuspiciousAmong(nil)
}

// MostTrusted 信任度最高的存活玩家，平局取ID最小者
func (b *BeliefModel) MostTrusted() (string, bool) {
	return b.MostTrustedAmong(nil)
}

// MostSuspiciousAmong 在候选人中找怀疑度最高者，candidates 为空表示全部存活玩家
func (b *BeliefModel) MostSuspiciousAmong(candidates []string) (string, bool) {
	return b.argmax(candidates, func(n *BeliefNode) float64 { return n.Suspicion })
}

// MostTrustedAmong 在候选人中找信任度最高者
func (b *BeliefModel) MostTrustedAmong(candidates []string) (string, bool) {
	return b.argmax(candidates, func(n *BeliefNode) float64 { return n.Trust })
}

func (b *BeliefModel) argmax(candidates []string, score func(*BeliefNode) float64) (string, bool) {
	ids := candidates
	if ids == nil {
		ids = make([]string, 0, len(b.nodes))
		for id := range b.nodes {
			ids = append(ids, id)
		}
	}
	best := ""
	bestScore := -1.0
	for _, id := range sortedIDs(ids) {
		node, ok := b.nodes[id]
		if !ok || !node.Alive {
			continue
		}
		if s := score(node); s > bestScore {
			best, bestScore = id, s
		}
	}
	return best, best != ""
}

// FactionProbability 属于狼人阵营的概率，未知玩家为0.5
func (b *BeliefModel) FactionProbability(playerID string) float64 {
	if node, ok := b.nodes[playerID]; ok {
		return node.FactionProbability
	}
	return 0.5
}

// Node 读取某个玩家的判断副本
func (b *BeliefModel) Node(playerID string) (BeliefNode, bool) {
	node, ok := b.nodes[playerID]
	if !ok {
		return BeliefNode{}, false
	}
	out := *node
	out.RoleProbabilities = make(map[models.Role]float64, len(node.RoleProbabilities))
	for k, v := range node.RoleProbabilities {
		out.RoleProbabilities[k] = v
	}
	out.Evidence = append([]Evidence(nil), node.Evidence...)
	return out, true
}

// AnalysisEntry 分析报告中的一行
type AnalysisEntry struct {
	PlayerID           string      `json:"player_id"`
	Alive              bool        `json:"alive"`
	Suspicion          float64     `json:"suspicion"`
	Trust              float64     `json:"trust"`
	FactionProbability float64     `json:"faction_probability"`
	LikelyRole         models.Role `json:"likely_role"`
	EvidenceCount      int         `json:"evidence_count"`
}

// AnalysisReport 按怀疑度从高到低列出全部判断
func (b *BeliefModel) AnalysisReport() []AnalysisEntry {
	entries := make([]AnalysisEntry, 0, len(b.nodes))
	for _, node := range b.nodes {
		entries = append(entries, AnalysisEntry{
			PlayerID:           node.PlayerID,
			Alive:              node.Alive,
			Suspicion:          node.Suspicion,
			Trust:              node.Trust,
			FactionProbability: node.FactionProbability,
			LikelyRole:         node.MostLikelyRole(),
			EvidenceCount:      len(node.Evidence),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Suspicion != entries[j].Suspicion {
			return entries[i].Suspicion > entries[j].Suspicion
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	return entries
}
