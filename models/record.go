package models

// AnalysisRecord 游戏结束时某个AI对一名玩家的判断
type AnalysisRecord struct {
	AgentID            string  `json:"agent_id"`
	TargetID           string  `json:"target_id"`
	Day                int     `json:"day"`
	Strategy           string  `json:"strategy"`
	Suspicion          float64 `json:"suspicion"`
	Trust              float64 `json:"trust"`
	FactionProbability float64 `json:"faction_probability"`
	LikelyRole         Role    `json:"likely_role"`
	EvidenceCount      int     `json:"evidence_count"`
}
