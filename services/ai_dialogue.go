package services

import (
	"fmt"
	"strings"

	"github.com/qianlnk/mindwolf/models"
	"github.com/tidwall/gjson"
)

// 提示词中引用的最近发言条数
const promptSpeechCount = 3

// BuildSpeechPrompt 构造白天发言的提示词
func BuildSpeechPrompt(ai *AIPlayer, state GameState, plan SpeechStrategy) string {
	var context strings.Builder
	fmt.Fprintf(&context, "当前阶段: %s\n", state.Phase.DisplayName())
	if recent := ai.RecentSpeeches(promptSpeechCount); len(recent) > 0 {
		context.WriteString("最近发言:\n")
		for _, s := range recent {
			fmt.Fprintf(&context, "%s: %s\n", s.Name, s.Content)
		}
	}
	if len(plan.Points) > 0 {
		fmt.Fprintf(&context, "发言要点: %s\n", strings.Join(plan.Points, "、"))
	}
	if plan.Target != "" {
		fmt.Fprintf(&context, "重点关注: %s\n", ai.NameOf(plan.Target))
	}
	if len(plan.DeceptionElements) > 0 {
		fmt.Fprintf(&context, "可以适当%s。\n", strings.Join(plan.DeceptionElements, "、"))
	}

	return fmt.Sprintf("你是%s，%s当前是第%d天。存活玩家：%s。%s请生成50-150字的发言：",
		ai.Name, roleHint(ai.Role, state, ai.ID), state.Day, aliveNames(state), context.String())
}

// BuildLastWordsPrompt 构造遗言提示词
func BuildLastWordsPrompt(ai *AIPlayer, state GameState) string {
	return fmt.Sprintf("你是%s，%s你在第%d天被投票出局。存活玩家：%s。请留下30-100字的遗言：",
		ai.Name, roleHint(ai.Role, state, ai.ID), state.Day, aliveNames(state))
}

// BuildNightActionPrompt 构造夜晚行动的提示词，要求只返回JSON
func BuildNightActionPrompt(ai *AIPlayer, state GameState) string {
	ids := make([]string, 0, len(state.Players))
	for _, p := range state.Players {
		if p.ID != ai.ID {
			ids = append(ids, fmt.Sprintf("%s(%s)", p.ID, p.Name))
		}
	}
	return fmt.Sprintf("你是%s，%s现在是第%d天夜晚。可选目标：%s。"+
		`请选择你的夜晚行动，只返回JSON：{"action":"kill|check|heal|protect|poison","target":"玩家ID"}`,
		ai.Name, roleHint(ai.Role, state, ai.ID), state.Day, strings.Join(ids, "、"))
}

// ParseNightActionReply 从回复中提取第一个JSON对象，缺少字段或动作未知时返回 false
func ParseNightActionReply(reply, actorID string) (models.NightAction, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return models.NightAction{}, false
	}
	body := reply[start : end+1]
	if !gjson.Valid(body) {
		return models.NightAction{}, false
	}

	fields := gjson.GetMany(body, "action", "target")
	if !fields[0].Exists() || !fields[1].Exists() {
		return models.NightAction{}, false
	}
	kind, ok := models.ParseNightActionType(fields[0].String())
	if !ok {
		return models.NightAction{}, false
	}
	return models.NightAction{Type: kind, ActorID: actorID, TargetID: strings.TrimSpace(fields[1].String())}, true
}

// roleHint 身份说明，狼人额外知道同伴
func roleHint(role models.Role, state GameState, selfID string) string {
	hint := fmt.Sprintf("你的身份是%s，属于%s阵营。%s。", role.DisplayName(), role.Faction().DisplayName(), role.Description())
	if role != models.Werewolf {
		return hint
	}
	mates := make([]string, 0)
	for _, p := range state.Players {
		if p.ID != selfID && p.Role == models.Werewolf {
			mates = append(mates, p.Name)
		}
	}
	if len(mates) > 0 {
		hint += fmt.Sprintf("你的狼人同伴是：%s。", strings.Join(mates, "、"))
	}
	return hint
}

func aliveNames(state GameState) string {
	names := make([]string, 0, len(state.Players))
	for _, p := range state.Players {
		names = append(names, p.Name)
	}
	return strings.Join(names, "、")
}
