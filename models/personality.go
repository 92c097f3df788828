package models

// Personality AI性格特征，所有取值在 [0,1]
type Personality struct {
	Template       string  `json:"template,omitempty"`
	Name           string  `json:"name,omitempty"`
	Aggressiveness float64 `json:"aggressiveness"` // 攻击性
	Logic          float64 `json:"logic"`          // 逻辑性
	Deception      float64 `json:"deception"`      // 欺骗能力
	Trustfulness   float64 `json:"trustfulness"`   // 信任度
	Patience       float64 `json:"patience"`       // 耐心
	Confidence     float64 `json:"confidence"`     // 自信
	Empathy        float64 `json:"empathy"`        // 同理心
	Impulsiveness  float64 `json:"impulsiveness"`  // 冲动性
}

// Clamp 把全部特征限制在 [0,1]
func (p Personality) Clamp() Personality {
	p.Aggressiveness = Clamp01(p.Aggressiveness)
	p.Logic = Clamp01(p.Logic)
	p.Deception = Clamp01(p.Deception)
	p.Trustfulness = Clamp01(p.Trustfulness)
	p.Patience = Clamp01(p.Patience)
	p.Confidence = Clamp01(p.Confidence)
	p.Empathy = Clamp01(p.Empathy)
	p.Impulsiveness = Clamp01(p.Impulsiveness)
	return p
}

// Clamp01 限制到 [0,1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PersonalityTemplates 预设性格模板
var PersonalityTemplates = []Personality{
	{
		Template: "analytical", Name: "逻辑分析师",
		Aggressiveness: 0.3, Logic: 0.9, Deception: 0.2, Trustfulness: 0.7,
		Patience: 0.8, Confidence: 0.7, Empathy: 0.4, Impulsiveness: 0.2,
	},
	{
		Template: "impulsive", Name: "情绪冲动者",
		Aggressiveness: 0.8, Logic: 0.4, Deception: 0.3, Trustfulness: 0.6,
		Patience: 0.2, Confidence: 0.6, Empathy: 0.8, Impulsiveness: 0.9,
	},
	{
		Template: "deceptive", Name: "狡猾欺骗者",
		Aggressiveness: 0.5, Logic: 0.7, Deception: 0.9, Trustfulness: 0.3,
		Patience: 0.8, Confidence: 0.8, Empathy: 0.3, Impulsiveness: 0.3,
	},
	{
		Template: "cautious", Name: "保守谨慎者",
		Aggressiveness: 0.2, Logic: 0.6, Deception: 0.4, Trustfulness: 0.8,
		Patience: 0.9, Confidence: 0.4, Empathy: 0.7, Impulsiveness: 0.1,
	},
	{
		Template: "leader", Name: "天生领袖",
		Aggressiveness: 0.7, Logic: 0.8, Deception: 0.4, Trustfulness: 0.5,
		Patience: 0.6, Confidence: 0.9, Empathy: 0.6, Impulsiveness: 0.4,
	},
	{
		Template: "chaotic", Name: "随性自由者",
		Aggressiveness: 0.6, Logic: 0.3, Deception: 0.5, Trustfulness: 0.4,
		Patience: 0.3, Confidence: 0.7, Empathy: 0.5, Impulsiveness: 0.8,
	},
}

// PersonalityTemplate 按模板ID查找
func PersonalityTemplate(id string) (Personality, bool) {
	for _, p := range PersonalityTemplates {
		if p.Template == id {
			return p, true
		}
	}
	return Personality{}, false
}
