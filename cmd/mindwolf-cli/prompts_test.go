package main

import (
	"errors"
	"testing"

	"github.com/qianlnk/mindwolf/models"
	"github.com/qianlnk/mindwolf/services"
)

func testRoster() []models.Player {
	return []models.Player{
		{ID: services.HumanPlayerID, Name: "小明", Role: models.Werewolf},
		{ID: "ai_1", Name: "阿狼", Role: models.Werewolf},
		{ID: "ai_2", Name: "阿民", Role: models.Villager},
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input  string
		kind   string
		target string
		fails  bool
	}{
		{"vote 3", "vote", "ai_2", false},
		{"v ai_1", "vote", "ai_1", false},
		{"kill 阿民", "kill", "ai_2", false},
		{"heal", "heal", "", false},
		{"next", "advance", "", false},
		{"say 我是好人", "speak", "", false},
		{"say", "", "", true},
		{"check", "", "", true},
		{"poison 9", "", "", true},
		{"dance", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			action, err := parseCommand(tt.input, testRoster())
			if tt.fails {
				if err == nil {
					t.Errorf("Expected %q to be rejected", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected %q to parse, but got %v", tt.input, err)
			}
			if action.Type != tt.kind || action.TargetID != tt.target || action.PlayerID != services.HumanPlayerID {
				t.Errorf("Expected %s on %q, but got %+v", tt.kind, tt.target, action)
			}
		})
	}

	if _, err := parseCommand("quit", testRoster()); !errors.Is(err, errQuit) {
		t.Errorf("Expected errQuit, but got %v", err)
	}
}

func TestRendererVisibleRole(t *testing.T) {
	roster := testRoster()
	r := NewRenderer(services.HumanPlayerID, false)
	r.roster = roster

	if r.visibleRole(roster[1]) != models.Werewolf {
		t.Errorf("Expected a werewolf viewer to see teammates")
	}
	if r.visibleRole(roster[2]) != "" {
		t.Errorf("Expected other roles to be hidden")
	}
	if NewRenderer("ai_2", true).visibleRole(roster[1]) != models.Werewolf {
		t.Errorf("Expected an omniscient renderer to see every role")
	}
}
