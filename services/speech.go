package services

import (
	"strings"
	"unicode/utf8"

	"github.com/qianlnk/mindwolf/models"
)

// SpeechIntent 发言意图
type SpeechIntent string

const (
	IntentVote        SpeechIntent = "vote"        // 投票意向
	IntentAccusation  SpeechIntent = "accusation"  // 指控
	IntentDefense     SpeechIntent = "defense"     // 辩解
	IntentInformation SpeechIntent = "information" // 报信息
	IntentStrategy    SpeechIntent = "strategy"    // 一般策略发言
)

// Emotion 发言情绪
type Emotion string

const (
	EmotionAnger     Emotion = "anger"
	EmotionNervous   Emotion = "nervous"
	EmotionConfident Emotion = "confident"
	EmotionCalm      Emotion = "calm"
)

// SpeechAnalysis 发言分析结果
type SpeechAnalysis struct {
	Intent           SpeechIntent `json:"intent"`
	Emotion          Emotion      `json:"emotion"`
	Credibility      float64      `json:"credibility"`
	KeyInformation   []string     `json:"key_information"`
	TargetsMentioned []string     `json:"targets_mentioned"`
}

const (
	baseCredibility = 0.7
	longSpeechRunes = 200
)

var (
	intentRules = []struct {
		keywords []string
		intent   SpeechIntent
	}{
		{[]string{"投票"}, IntentVote},
		{[]string{"怀疑"}, IntentAccusation},
		{[]string{"不是我"}, IntentDefense},
		{[]string{"验了"}, IntentInformation},
	}

	emotionRules = []struct {
		keywords []string
		emotion  Emotion
	}{
		{[]string{"气死", "愤怒"}, EmotionAnger},
		{[]string{"紧张", "不是我"}, EmotionNervous},
		{[]string{"一定", "肯定"}, EmotionConfident},
	}

	absoluteWords = []string{"绝对", "一定", "absolutely", "definitely"}

	suspiciousWords = []string{"一定是", "肯定是", "我觉得不是", "太明显了", "这么简单", "显而易见", "不可能", "绝对"}
	defensiveWords  = []string{"我不是", "相信我", "为什么怀疑我", "我是好人", "你们错了", "冤枉", "诬陷"}
	aggressiveWords = []string{"一定是狼", "明显的狼", "狼人", "出他", "投他", "他有问题"}
)

// AnalyzeSpeech 基于关键词的发言分析，roster 用于识别被点名的玩家
func AnalyzeSpeech(text string, roster []models.Player) SpeechAnalysis {
	lower := strings.ToLower(text)
	return SpeechAnalysis{
		Intent:           classifyIntent(lower),
		Emotion:          classifyEmotion(lower),
		Credibility:      credibility(lower),
		KeyInformation:   extractKeyInformation(lower),
		TargetsMentioned: mentionedTargets(text, roster),
	}
}

func classifyIntent(text string) SpeechIntent {
	for _, rule := range intentRules {
		if containsAny(text, rule.keywords) {
			return rule.intent
		}
	}
	return IntentStrategy
}

func classifyEmotion(text string) Emotion {
	for _, rule := range emotionRules {
		if containsAny(text, rule.keywords) {
			return rule.emotion
		}
	}
	return EmotionCalm
}

func credibility(text string) float64 {
	score := baseCredibility
	if containsAny(text, absoluteWords) {
		score -= 0.1
	}
	if strings.Contains(text, "为什么怀疑我") {
		score -= 0.2
	}
	if utf8.RuneCountInString(text) > longSpeechRunes {
		score -= 0.1
	}
	return models.Clamp01(score)
}

func extractKeyInformation(text string) []string {
	info := make([]string, 0)
	if strings.Contains(text, "我是") {
		info = append(info, "身份声明")
	}
	if strings.Contains(text, "验了") {
		info = append(info, "查验信息")
	}
	if strings.Contains(text, "投票") {
		info = append(info, "投票意向")
	}
	return info
}

// mentionedTargets 发言中出现名字的玩家，按名单顺序
func mentionedTargets(text string, roster []models.Player) []string {
	targets := make([]string, 0)
	seen := make(map[string]bool)
	for _, p := range roster {
		if p.Name == "" || seen[p.ID] {
			continue
		}
		if strings.Contains(text, p.Name) {
			targets = append(targets, p.ID)
			seen[p.ID] = true
		}
	}
	return targets
}

// SuspicionScore 发言可疑程度，返回证据权重和置信度
func SuspicionScore(text string) (weight, confidence float64) {
	confidence = 0.5
	for _, w := range suspiciousWords {
		if strings.Contains(text, w) {
			weight += 0.1
		}
	}
	for _, w := range defensiveWords {
		if strings.Contains(text, w) {
			weight += 0.2
			confidence += 0.1
		}
	}
	for _, w := range aggressiveWords {
		if strings.Contains(text, w) {
			weight += 0.05
		}
	}
	switch n := utf8.RuneCountInString(text); {
	case n > longSpeechRunes:
		weight += 0.05
	case n < 20:
		weight += 0.1
	}
	return models.Clamp01(weight), models.Clamp01(confidence)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

var fallbackSpeeches = map[models.Role][]string{
	models.Werewolf: {"我觉得某位玩家的发言有些可疑。", "我们需要仔细分析投票情况。", "我倾向于相信好人的判断。"},
	models.Seer:     {"我有一些信息要分享。", "根据我的观察，有人可能有问题。", "大家要相信我的判断。"},
}

var defaultFallbackSpeeches = []string{"我需要再观察一下。", "大家的分析都很有道理。", "我暂时保留意见。"}

// FallbackSpeech 生成失败时的兜底发言，按天数轮换
func FallbackSpeech(role models.Role, day int) string {
	pool, ok := fallbackSpeeches[role]
	if !ok {
		pool = defaultFallbackSpeeches
	}
	if day < 0 {
		day = -day
	}
	return pool[day%len(pool)]
}

// PostProcessSpeech 整理生成的发言：过长截断，过短替换
func PostProcessSpeech(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > longSpeechRunes {
		return string(runes[:longSpeechRunes-3]) + "..."
	}
	if len(runes) < 10 {
		return "我需要再思考一下。"
	}
	return text
}

// SpeechMemory 最近发言记录
type SpeechMemory struct {
	records []models.Speech
	limit   int
}

// NewSpeechMemory 创建发言记忆，limit<=0 时默认50条
func NewSpeechMemory(limit int) *SpeechMemory {
	if limit <= 0 {
		limit = 50
	}
	return &SpeechMemory{limit: limit}
}

// Add 追加发言，超出上限丢弃最早的
func (m *SpeechMemory) Add(s models.Speech) {
	m.records = append(m.records, s)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = append([]models.Speech(nil), m.records[over:]...)
	}
}

// Recent 最近 n 条，按时间顺序
func (m *SpeechMemory) Recent(n int) []models.Speech {
	if n > len(m.records) {
		n = len(m.records)
	}
	return append([]models.Speech(nil), m.records[len(m.records)-n:]...)
}

// Len 记录条数
func (m *SpeechMemory) Len() int {
	return len(m.records)
}
