package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/qianlnk/mindwolf/models"
)

func TestPostProcessSpeech(t *testing.T) {
	t.Run("long speech is cut", func(t *testing.T) {
		got := PostProcessSpeech(strings.Repeat("狼", 250))
		if n := utf8.RuneCountInString(got); n != 200 {
			t.Errorf("Expected 200 runes, but got %d", n)
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("Expected an ellipsis, but got %q", got[len(got)-6:])
		}
	})

	t.Run("short speech is replaced", func(t *testing.T) {
		if got := PostProcessSpeech("  好的 "); got != "我需要再思考一下。" {
			t.Errorf("Expected the placeholder speech, but got %q", got)
		}
	})

	t.Run("normal speech is trimmed", func(t *testing.T) {
		text := "我觉得昨晚的情况很奇怪，大家要注意。"
		if got := PostProcessSpeech("\n" + text + "  "); got != text {
			t.Errorf("Expected %q, but got %q", text, got)
		}
	})
}

func TestFallbackSpeech(t *testing.T) {
	if a, b := FallbackSpeech(models.Seer, 1), FallbackSpeech(models.Seer, 2); a == b {
		t.Errorf("Expected rotation across days, but got %q twice", a)
	}
	if FallbackSpeech(models.Seer, 1) != FallbackSpeech(models.Seer, 4) {
		t.Errorf("Expected a three day cycle")
	}
	if got := FallbackSpeech(models.Hunter, 0); got != defaultFallbackSpeeches[0] {
		t.Errorf("Expected the default pool for hunters, but got %q", got)
	}
	if got := FallbackSpeech(models.Villager, -1); got == "" {
		t.Errorf("Expected a speech for negative days")
	}
}

func TestAnalyzeSpeech(t *testing.T) {
	roster := []models.Player{{ID: "ai_1", Name: "冷静的狼"}, {ID: "ai_2", Name: "勇敢的鹰"}}

	tests := []struct {
		name    string
		text    string
		intent  SpeechIntent
		emotion Emotion
	}{
		{"vote", "我建议投票给勇敢的鹰", IntentVote, EmotionCalm},
		{"accusation", "我怀疑冷静的狼，他肯定有问题", IntentAccusation, EmotionConfident},
		{"defense", "不是我，大家不要乱投", IntentDefense, EmotionNervous},
		{"information", "我昨晚验了勇敢的鹰", IntentInformation, EmotionCalm},
		{"strategy", "大家好好分析一下", IntentStrategy, EmotionCalm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeSpeech(tt.text, roster)
			if got.Intent != tt.intent {
				t.Errorf("Expected intent %s, but got %s", tt.intent, got.Intent)
			}
			if got.Emotion != tt.emotion {
				t.Errorf("Expected emotion %s, but got %s", tt.emotion, got.Emotion)
			}
		})
	}

	t.Run("targets", func(t *testing.T) {
		got := AnalyzeSpeech("勇敢的鹰和冷静的狼都很可疑", roster)
		if len(got.TargetsMentioned) != 2 || got.TargetsMentioned[0] != "ai_1" {
			t.Errorf("Expected both players in roster order, but got %v", got.TargetsMentioned)
		}
	})

	t.Run("credibility", func(t *testing.T) {
		plain := AnalyzeSpeech("大家好好分析一下", roster).Credibility
		doubtful := AnalyzeSpeech("我绝对是好人，为什么怀疑我", roster).Credibility
		if plain != baseCredibility {
			t.Errorf("Expected base credibility, but got %f", plain)
		}
		if doubtful >= plain {
			t.Errorf("Expected lower credibility for absolute defensive words, but got %f", doubtful)
		}
	})
}

func TestSuspicionScore(t *testing.T) {
	calmW, calmC := SuspicionScore("我觉得今天的讨论还算比较顺利，大家可以继续分析一下昨晚的情况。")
	defW, defC := SuspicionScore("我不是狼，相信我，我是好人，你们错了，冤枉啊")
	if defW <= calmW || defC <= calmC {
		t.Errorf("Expected defensive speech to score higher, but got %f/%f vs %f/%f", defW, defC, calmW, calmC)
	}
	if defW > 1 || defC > 1 {
		t.Errorf("Expected scores within [0,1]")
	}
}

func TestSpeechMemory(t *testing.T) {
	m := NewSpeechMemory(3)
	for i := 0; i < 5; i++ {
		m.Add(models.Speech{Day: i})
	}
	if m.Len() != 3 {
		t.Fatalf("Expected 3 speeches, but got %d", m.Len())
	}
	recent := m.Recent(10)
	if len(recent) != 3 || recent[0].Day != 2 || recent[2].Day != 4 {
		t.Errorf("Expected the last three speeches in order, but got %+v", recent)
	}
	if got := m.Recent(1); len(got) != 1 || got[0].Day != 4 {
		t.Errorf("Expected the newest speech, but got %+v", got)
	}
	if NewSpeechMemory(0).limit != 50 {
		t.Errorf("Expected a default limit of 50")
	}
}
