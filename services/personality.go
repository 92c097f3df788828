package services

import (
	"math/rand"

	"github.com/qianlnk/mindwolf/models"
)

// GeneratePersonality 为AI生成性格：一半概率使用预设模板，否则随机生成，最后按角色调整
func GeneratePersonality(rng *rand.Rand, role models.Role) models.Personality {
	var p models.Personality
	if rng.Float64() < 0.5 {
		p = models.PersonalityTemplates[rng.Intn(len(models.PersonalityTemplates))]
	} else {
		p = RandomPersonality(rng)
	}
	return OptimizeForRole(p, role)
}

// RandomPersonality 在固定区间内随机生成性格
func RandomPersonality(rng *rand.Rand) models.Personality {
	between := func(lo, hi float64) float64 {
		return lo + rng.Float64()*(hi-lo)
	}
	return models.Personality{
		Template:       "random",
		Name:           "随机性格",
		Aggressiveness: between(0.3, 0.8),
		Logic:          between(0.5, 0.9),
		Deception:      between(0.4, 0.7),
		Trustfulness:   between(0.3, 0.7),
		Patience:       between(0.2, 0.8),
		Confidence:     between(0.2, 0.8),
		Empathy:        between(0.2, 0.8),
		Impulsiveness:  between(0.2, 0.8),
	}
}

// OptimizeForRole 按角色微调性格，结果限制在 [0,1]
func OptimizeForRole(p models.Personality, role models.Role) models.Personality {
	switch role {
	case models.Werewolf:
		p.Deception += 0.3
		p.Trustfulness -= 0.2
		if p.Trustfulness < 0.1 {
			p.Trustfulness = 0.1
		}
	case models.Seer:
		p.Logic += 0.2
		p.Trustfulness += 0.1
	case models.Witch:
		p.Logic += 0.15
		p.Aggressiveness -= 0.1
	case models.Hunter:
		p.Aggressiveness += 0.2
	case models.Guard:
		p.Trustfulness += 0.15
		p.Aggressiveness -= 0.1
	case models.Villager:
		p.Logic += 0.1
	}
	return p.Clamp()
}
