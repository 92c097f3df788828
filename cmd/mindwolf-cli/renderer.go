package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/qianlnk/mindwolf/models"
	"github.com/qianlnk/mindwolf/services"
)

// C 终端输出用的颜色
var C = struct {
	Wolf, Good, Info, Warn, Header, Speech, Dim *color.Color
}{
	Wolf:   color.New(color.FgRed),
	Good:   color.New(color.FgGreen),
	Info:   color.New(color.FgCyan),
	Warn:   color.New(color.FgHiYellow),
	Header: color.New(color.FgWhite, color.Bold),
	Speech: color.New(color.FgHiWhite),
	Dim:    color.New(color.FgHiBlack),
}

var causeText = map[models.DeathCause]string{
	models.CauseKilled:   "被狼人杀死",
	models.CausePoisoned: "被毒死",
	models.CauseVoted:    "被投票出局",
	models.CauseShot:     "被猎人带走",
}

// ColorizeRole 狼人红色，好人绿色
func ColorizeRole(role models.Role) string {
	if role == "" {
		return C.Dim.Sprint("?")
	}
	if role.Faction() == models.FactionWerewolf {
		return C.Wolf.Sprint(role.DisplayName())
	}
	return C.Good.Sprint(role.DisplayName())
}

// Renderer 把游戏事件打印到终端。omniscient 为 true 时显示全部身份和夜晚细节
type Renderer struct {
	viewerID   string
	omniscient bool
	roster     []models.Player
	names      map[string]string
	reports    []services.AnalysisReportedEvent
	lastPhase  models.Phase
}

// NewRenderer 创建渲染器
func NewRenderer(viewerID string, omniscient bool) *Renderer {
	return &Renderer{
		viewerID:   viewerID,
		omniscient: omniscient,
		names:      make(map[string]string),
	}
}

// Roster 开局时的座位顺序
func (r *Renderer) Roster() []models.Player {
	return r.roster
}

// Reports 游戏结束时收集到的AI推理报告
func (r *Renderer) Reports() []services.AnalysisReportedEvent {
	return r.reports
}

// Name 玩家显示名
func (r *Renderer) Name(id string) string {
	if name, ok := r.names[id]; ok {
		return name
	}
	return id
}

// HandleEvent 实现 services.Listener
func (r *Renderer) HandleEvent(e services.Event) {
	switch event := e.(type) {
	case services.GameStartedEvent:
		r.roster = append([]models.Player(nil), event.Players...)
		for _, p := range event.Players {
			r.names[p.ID] = p.Name
		}
		C.Header.Println("--- 游戏开始 ---")
		RenderRoster(r.roster, r.visibleRole)
	case services.PhaseChangedEvent:
		if event.To == models.PhaseNight || r.lastPhase == "" {
			C.Header.Printf("\n=== 第%d天 %s ===\n", event.Day, event.To.DisplayName())
		} else {
			C.Header.Printf("\n--- %s ---\n", event.To.DisplayName())
		}
		r.lastPhase = event.To
	case services.NightActionEvent:
		if r.omniscient {
			a := event.Action
			C.Dim.Printf("  [夜晚] %s -> %s %s\n", r.Name(a.ActorID), a.Type, r.Name(a.TargetID))
		}
	case services.NightResolvedEvent:
		r.renderNight(event.Outcome)
	case services.SpeechEvent:
		fmt.Printf("%s: %s\n", C.Info.Sprint(r.Name(event.Speech.PlayerID)), C.Speech.Sprint(event.Speech.Content))
	case services.VoteCastEvent:
		fmt.Printf("  %s 投票给 %s\n", r.Name(event.Vote.VoterID), r.Name(event.Vote.TargetID))
	case services.VoteResolvedEvent:
		r.renderTally(event)
	case services.PlayerEliminatedEvent:
		C.Warn.Printf("%s %s，身份是 %s\n", r.Name(event.Player.ID), causeText[event.Cause], ColorizeRole(event.Player.Role))
	case services.GameOverEvent:
		C.Header.Println("\n--- 游戏结束 ---")
		if event.Winner == models.FactionWerewolf {
			C.Wolf.Printf("%s阵营胜利！(第%d天)\n", event.Winner.DisplayName(), event.Day)
		} else {
			C.Good.Printf("%s阵营胜利！(第%d天)\n", event.Winner.DisplayName(), event.Day)
		}
		RenderRoster(event.Players, func(p models.Player) models.Role { return p.Role })
	case services.AnalysisReportedEvent:
		r.reports = append(r.reports, event)
	}
}

func (r *Renderer) visibleRole(p models.Player) models.Role {
	if r.omniscient || p.ID == r.viewerID {
		return p.Role
	}
	for _, v := range r.roster {
		if v.ID == r.viewerID && v.Role == models.Werewolf && p.Role == models.Werewolf {
			return p.Role
		}
	}
	return ""
}

func (r *Renderer) renderNight(outcome models.NightOutcome) {
	if len(outcome.Deaths) == 0 {
		C.Info.Println("昨晚是平安夜。")
	} else {
		names := make([]string, 0, len(outcome.Deaths))
		for _, id := range outcome.Deaths {
			names = append(names, r.Name(id))
		}
		C.Warn.Printf("昨晚死亡: %s\n", strings.Join(names, "、"))
	}
	for _, check := range outcome.Checks {
		if !r.omniscient && check.SeerID != r.viewerID {
			continue
		}
		result := C.Good.Sprint("好人")
		if check.IsWerewolf {
			result = C.Wolf.Sprint("狼人")
		}
		C.Info.Printf("  [查验] %s 查验 %s: %s\n", r.Name(check.SeerID), r.Name(check.TargetID), result)
	}
}

func (r *Renderer) renderTally(event services.VoteResolvedEvent) {
	ids := make([]string, 0, len(event.Tally))
	for id := range event.Tally {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if event.Tally[ids[i]] != event.Tally[ids[j]] {
			return event.Tally[ids[i]] > event.Tally[ids[j]]
		}
		return ids[i] < ids[j]
	})
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s %d票", r.Name(id), event.Tally[id]))
	}
	C.Info.Printf("票数: %s\n", strings.Join(parts, ", "))
	if event.EliminatedID == "" {
		C.Info.Println("无人出局。")
	}
}

// RenderRoster 玩家列表，role 决定每个玩家显示的身份
func RenderRoster(players []models.Player, role func(models.Player) models.Role) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "ID", "名字", "身份", "状态"})
	for i, p := range players {
		state := C.Good.Sprint("存活")
		if !p.Alive {
			state = C.Dim.Sprint("出局")
		}
		t.AppendRow(table.Row{i + 1, p.ID, p.Name, ColorizeRole(role(p)), state})
	}
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	t.Render()
}

// RenderAnalysis 一个AI的最终推理表
func RenderAnalysis(report services.AnalysisReportedEvent, name func(string) string, actual map[string]models.Role) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%s 的推理 (策略: %s)", name(report.AgentID), report.Strategy.Type))
	t.AppendHeader(table.Row{"玩家", "怀疑度", "信任度", "狼人概率", "推测身份", "实际身份", "证据"})
	for _, entry := range report.Entries {
		t.AppendRow(table.Row{
			name(entry.PlayerID),
			fmt.Sprintf("%.2f", entry.Suspicion),
			fmt.Sprintf("%.2f", entry.Trust),
			fmt.Sprintf("%.2f", entry.FactionProbability),
			ColorizeRole(entry.LikelyRole),
			ColorizeRole(actual[entry.PlayerID]),
			entry.EvidenceCount,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Style().Title.Align = text.AlignCenter
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
}
