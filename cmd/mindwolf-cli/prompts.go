package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/peterh/liner"
	"github.com/qianlnk/mindwolf/models"
	"github.com/qianlnk/mindwolf/services"
)

var errQuit = errors.New("quit")

// actionHelp 每个动作的说明
var actionHelp = map[string][2]string{
	"speak":   {"say <内容>", "发言"},
	"vote":    {"vote <玩家>", "投票"},
	"kill":    {"kill <玩家>", "狼人击杀"},
	"check":   {"check <玩家>", "预言家查验"},
	"heal":    {"heal [玩家]", "女巫使用解药，默认救今晚的刀口"},
	"poison":  {"poison <玩家>", "女巫使用毒药"},
	"protect": {"protect <玩家>", "守卫守护"},
	"shoot":   {"shoot <玩家>", "猎人开枪"},
	"advance": {"next", "结束当前阶段"},
}

var actionOrder = []string{"speak", "vote", "kill", "check", "heal", "poison", "protect", "shoot", "advance"}

// printHelp 当前可执行的命令
func printHelp(actions []string) {
	available := make(map[string]bool, len(actions))
	for _, a := range actions {
		available[a] = true
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"命令", "说明"})
	t.AppendSeparator()
	for _, a := range actionOrder {
		if available[a] {
			t.AppendRow(table.Row{actionHelp[a][0], actionHelp[a][1]})
		}
	}
	t.AppendRows([]table.Row{
		{"status", "查看玩家列表"},
		{"help", "显示帮助"},
		{"quit", "退出"},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}

// resolveTarget 按座位号、ID或名字查找玩家
func resolveTarget(input string, roster []models.Player) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(roster) {
		return roster[n-1].ID, true
	}
	for _, p := range roster {
		if p.ID == input || p.Name == input {
			return p.ID, true
		}
	}
	return "", false
}

// parseCommand 把一行输入转换成玩家动作
func parseCommand(input string, roster []models.Player) (models.GameAction, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(input), " ")
	arg = strings.TrimSpace(arg)

	action := models.GameAction{PlayerID: services.HumanPlayerID}
	switch strings.ToLower(cmd) {
	case "say", "speak":
		if arg == "" {
			return action, fmt.Errorf("发言内容不能为空")
		}
		action.Type = "speak"
		action.Content = arg
		return action, nil
	case "next", "advance", "n":
		action.Type = "advance"
		return action, nil
	case "vote", "v", "shoot", "kill", "check", "heal", "save", "poison", "protect":
		action.Type = strings.ToLower(cmd)
		if action.Type == "v" {
			action.Type = "vote"
		}
		if arg == "" {
			if action.Type == "heal" || action.Type == "save" {
				return action, nil
			}
			return action, fmt.Errorf("需要指定目标玩家")
		}
		id, ok := resolveTarget(arg, roster)
		if !ok {
			return action, fmt.Errorf("找不到玩家 %q", arg)
		}
		action.TargetID = id
		return action, nil
	case "quit", "q", "exit":
		return action, errQuit
	}
	return action, fmt.Errorf("未知命令 %q，输入 help 查看帮助", cmd)
}

// promptLoop 读取真人玩家的命令直到游戏结束
func promptLoop(line *liner.State, game *services.GameController, renderer *Renderer) error {
	lastKey := ""
	for {
		status := game.Status(services.HumanPlayerID)
		if status.Phase == models.PhaseGameOver {
			return nil
		}

		key := fmt.Sprintf("%d-%s", status.Day, status.Phase)
		if key != lastKey {
			lastKey = key
			if status.LastNight != nil && status.LastNight.KillTarget != "" && status.Phase == models.PhaseNight {
				C.Warn.Printf("今晚被刀的是 %s\n", renderer.Name(status.LastNight.KillTarget))
			}
			if len(status.Actions) > 0 {
				C.Info.Printf("可执行的动作: %s\n", strings.Join(status.Actions, ", "))
			}
		}

		input, err := line.Prompt(fmt.Sprintf("[第%d天 %s] > ", status.Day, status.Phase.DisplayName()))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return errQuit
			}
			return fmt.Errorf("error reading line: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		switch strings.ToLower(input) {
		case "help", "h":
			printHelp(status.Actions)
			continue
		case "status", "s":
			current := game.Snapshot()
			players := make([]models.Player, 0, len(renderer.Roster()))
			for _, p := range renderer.Roster() {
				p.Alive = current.IsAlive(p.ID)
				players = append(players, p)
			}
			RenderRoster(players, func(p models.Player) models.Role {
				if !p.Alive {
					return p.Role
				}
				return renderer.visibleRole(p)
			})
			continue
		}

		action, err := parseCommand(input, renderer.Roster())
		if err != nil {
			if errors.Is(err, errQuit) {
				return errQuit
			}
			C.Warn.Println(err)
			continue
		}
		if err := game.ProcessAction(action); err != nil {
			C.Warn.Printf("动作失败: %v\n", err)
		}
	}
}
