package services

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/qianlnk/mindwolf/models"
)

// stubGenerator 固定回复，夜晚提示词返回无法解析的文本
type stubGenerator struct {
	speech string
	err    error
	mutex  sync.Mutex
	calls  int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mutex.Lock()
	g.calls++
	g.mutex.Unlock()
	if g.err != nil {
		return "", g.err
	}
	if strings.Contains(prompt, "只返回JSON") {
		return "我不知道该怎么选", nil
	}
	return g.speech, nil
}

func (g *stubGenerator) Calls() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.calls
}

// eventLog 记录收到的事件
type eventLog struct {
	events []Event
	mutex  sync.Mutex
}

func (l *eventLog) HandleEvent(e Event) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	n := 0
	for _, e := range l.events {
		if e.EventType() == kind {
			n++
		}
	}
	return n
}

func newTestController(t *testing.T, opts ControllerOptions, bus *EventBus) *GameController {
	t.Helper()
	if opts.Config.TotalPlayers == 0 {
		opts.Config = models.DefaultGameConfig()
	}
	if opts.Rng == nil {
		opts.Rng = rand.New(rand.NewSource(1))
	}
	opts.NoTimers = true
	gc, err := NewGameController("game-test", opts, bus, testLogger())
	if err != nil {
		t.Fatalf("Expected controller to be created, but got %v", err)
	}
	t.Cleanup(gc.Stop)
	return gc
}

func TestAutoGameRunsToCompletion(t *testing.T) {
	const speech = "我觉得大家需要冷静分析，不要被带节奏，先听听每个人的发言再说。"
	tests := []struct {
		name string
		gen  *stubGenerator
	}{
		{"rules only", nil},
		{"working generator", &stubGenerator{speech: speech}},
		{"failing generator", &stubGenerator{err: errors.New("service unavailable")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := int64(1); seed <= 5; seed++ {
				// GIVEN an 8 player game where every seat is played by AI
				bus := NewEventBus()
				log := &eventLog{}
				bus.Subscribe(log)
				opts := ControllerOptions{HumanName: "测试", AutoHuman: true, Rng: rand.New(rand.NewSource(seed))}
				if tt.gen != nil {
					opts.Generator = tt.gen
				}
				gc := newTestController(t, opts, bus)

				// WHEN the game starts
				if err := gc.StartGame(context.Background()); err != nil {
					t.Fatalf("Expected game to start, but got %v", err)
				}

				// THEN it finishes without human input
				state := gc.Snapshot()
				if state.Phase != models.PhaseGameOver {
					t.Fatalf("Expected game over, but got %s on day %d", state.Phase, state.Day)
				}
				if state.Winner == models.FactionNone {
					t.Errorf("Expected a winner")
				}
				if winner := winnerOf(&state); winner != state.Winner {
					t.Errorf("Expected the recorded winner %s to match the board, but got %s", state.Winner, winner)
				}
				if state.Day > 8 {
					t.Errorf("Expected the game to end within 8 days, but it reached day %d", state.Day)
				}
				if len(state.Players)+len(state.DeadPlayers) != 8 {
					t.Errorf("Expected 8 players in total, but got %d", len(state.Players)+len(state.DeadPlayers))
				}
				if n := log.count("analysis_reported"); n != 8 {
					t.Errorf("Expected 8 analysis reports, but got %d", n)
				}
				if n := log.count("game_over"); n != 1 {
					t.Errorf("Expected one game over event, but got %d", n)
				}
				if err := gc.ProcessAction(models.GameAction{Type: "advance"}); !errors.Is(err, ErrGameOver) {
					t.Errorf("Expected ErrGameOver after the game, but got %v", err)
				}
			}

			if tt.gen != nil && tt.gen.Calls() == 0 {
				t.Errorf("Expected the generator to be used")
			}
		})
	}
}

func TestGeneratedSpeechIsRecorded(t *testing.T) {
	const speech = "我觉得大家需要冷静分析，不要被带节奏，先听听每个人的发言再说。"
	gen := &stubGenerator{speech: speech}
	gc := newTestController(t, ControllerOptions{HumanName: "测试", AutoHuman: true, Generator: gen}, nil)
	if err := gc.StartGame(context.Background()); err != nil {
		t.Fatalf("Expected game to start, but got %v", err)
	}

	state := gc.Snapshot()
	if len(state.Speeches) == 0 {
		t.Fatalf("Expected speeches to be recorded")
	}
	for _, s := range state.Speeches {
		if s.Content != speech {
			t.Errorf("Expected generated speech, but got %q", s.Content)
		}
	}
}

func TestProcessActionValidation(t *testing.T) {
	gc := newTestController(t, ControllerOptions{HumanName: "测试"}, nil)

	t.Run("before start", func(t *testing.T) {
		if err := gc.ProcessAction(models.GameAction{Type: "advance"}); !errors.Is(err, ErrGameNotStarted) {
			t.Errorf("Expected ErrGameNotStarted, but got %v", err)
		}
	})

	if err := gc.StartGame(context.Background()); err != nil {
		t.Fatalf("Expected game to start, but got %v", err)
	}

	t.Run("other seat", func(t *testing.T) {
		err := gc.ProcessAction(models.GameAction{Type: "vote", PlayerID: "ai_1", TargetID: "ai_2"})
		if !errors.Is(err, ErrInvalidAction) {
			t.Errorf("Expected ErrInvalidAction, but got %v", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		if gc.Snapshot().Phase == models.PhaseGameOver {
			t.Skip("game ended without human input")
		}
		err := gc.ProcessAction(models.GameAction{Type: "dance", PlayerID: HumanPlayerID})
		if !errors.Is(err, ErrInvalidAction) {
			t.Errorf("Expected ErrInvalidAction, but got %v", err)
		}
		if !IsGameLogicError(err) {
			t.Errorf("Expected a game logic error")
		}
	})

	t.Run("analysis", func(t *testing.T) {
		if _, err := gc.Analysis(HumanPlayerID); !errors.Is(err, ErrPlayerNotFound) {
			t.Errorf("Expected no analysis for the human seat, but got %v", err)
		}
		entries, err := gc.Analysis("ai_1")
		if err != nil || len(entries) != 7 {
			t.Errorf("Expected 7 entries for ai_1, but got %d (%v)", len(entries), err)
		}
	})
}

func TestStatusHidesRoles(t *testing.T) {
	gc := newTestController(t, ControllerOptions{HumanName: "测试"}, nil)
	if err := gc.StartGame(context.Background()); err != nil {
		t.Fatalf("Expected game to start, but got %v", err)
	}

	status := gc.Status(HumanPlayerID)
	state := gc.Snapshot()
	if state.Phase == models.PhaseGameOver {
		t.Skip("game ended without human input")
	}
	viewer, _ := state.FindPlayer(HumanPlayerID)

	for _, p := range status.Players {
		if p.Personality != nil {
			t.Errorf("Expected personalities to be hidden for %s", p.ID)
		}
		actual, _ := state.FindPlayer(p.ID)
		switch {
		case p.ID == HumanPlayerID:
			if p.Role != viewer.Role {
				t.Errorf("Expected the viewer to see their own role")
			}
		case viewer.Role == models.Werewolf && actual.Role == models.Werewolf:
			if p.Role != models.Werewolf {
				t.Errorf("Expected werewolves to see teammates")
			}
		default:
			if p.Role != "" && p.Alive {
				t.Errorf("Expected %s's role to be hidden, but got %s", p.ID, p.Role)
			}
		}
	}
	for _, p := range status.DeadPlayers {
		if p.Role == "" {
			t.Errorf("Expected dead players' roles to be public")
		}
	}
}

// humanMove 为真人座位挑选一个合法动作
func humanMove(t *testing.T, gc *GameController, status models.GameStatus) bool {
	t.Helper()
	others := make([]string, 0)
	for _, p := range status.Players {
		if p.ID != HumanPlayerID && p.Role != models.Werewolf {
			others = append(others, p.ID)
		}
	}
	try := func(kind string, targets []string) bool {
		for _, target := range targets {
			if gc.ProcessAction(models.GameAction{Type: kind, TargetID: target}) == nil {
				return true
			}
		}
		return false
	}

	for _, action := range status.Actions {
		switch action {
		case "shoot", "vote", "kill", "check", "protect", "poison":
			if try(action, others) {
				return true
			}
		case "heal":
			if gc.ProcessAction(models.GameAction{Type: "heal"}) == nil {
				return true
			}
		case "speak":
			_ = gc.ProcessAction(models.GameAction{Type: "speak", Content: "我是好人，大家相信我。"})
		case "advance":
			return gc.ProcessAction(models.GameAction{Type: "advance"}) == nil
		}
	}
	return false
}

func TestHumanGameRunsToCompletion(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		// GIVEN an interactive game without timers
		gc := newTestController(t, ControllerOptions{HumanName: "测试", Rng: rand.New(rand.NewSource(seed))}, nil)
		if err := gc.StartGame(context.Background()); err != nil {
			t.Fatalf("Expected game to start, but got %v", err)
		}

		// WHEN the human always makes a legal move
		for i := 0; i < 200; i++ {
			status := gc.Status(HumanPlayerID)
			if status.Phase == models.PhaseGameOver {
				break
			}
			if !humanMove(t, gc, status) {
				t.Fatalf("seed %d: Expected a legal move in %s with actions %v", seed, status.Phase, status.Actions)
			}
		}

		// THEN the game reaches an end
		if phase := gc.Snapshot().Phase; phase != models.PhaseGameOver {
			t.Errorf("seed %d: Expected game over, but got %s", seed, phase)
		}
	}
}

func TestAdvanceOnlyWhenOffered(t *testing.T) {
	for seed := int64(1); seed <= 4; seed++ {
		// GIVEN an interactive game
		gc := newTestController(t, ControllerOptions{HumanName: "测试", Rng: rand.New(rand.NewSource(seed))}, nil)
		if err := gc.StartGame(context.Background()); err != nil {
			t.Fatalf("Expected game to start, but got %v", err)
		}

		for i := 0; i < 200; i++ {
			status := gc.Status(HumanPlayerID)
			if status.Phase == models.PhaseGameOver {
				break
			}
			// WHEN the human tries to skip a phase that does not offer it
			if !slices.Contains(status.Actions, "advance") {
				before := phaseKey(gc.Snapshot())
				err := gc.ProcessAction(models.GameAction{Type: "advance"})
				// THEN the request is refused and the phase stays put
				if !errors.Is(err, ErrInvalidPhase) {
					t.Errorf("seed %d: Expected ErrInvalidPhase in %s, but got %v", seed, status.Phase, err)
				}
				if after := phaseKey(gc.Snapshot()); after != before {
					t.Errorf("seed %d: Expected phase %s to stay, but got %s", seed, before, after)
				}
			}
			if !humanMove(t, gc, status) {
				t.Fatalf("seed %d: Expected a legal move in %s with actions %v", seed, status.Phase, status.Actions)
			}
		}
	}
}

func TestPhaseTimeoutAdvances(t *testing.T) {
	// GIVEN a game waiting for the human
	gc := newTestController(t, ControllerOptions{HumanName: "测试"}, nil)
	if err := gc.StartGame(context.Background()); err != nil {
		t.Fatalf("Expected game to start, but got %v", err)
	}
	before := gc.Snapshot()
	if before.Phase == models.PhaseGameOver {
		t.Skip("game ended without human input")
	}

	// WHEN a stale timer fires nothing changes
	gc.handlePhaseTimeout("99-" + string(models.PhaseVoting))
	if phaseKey(gc.Snapshot()) != phaseKey(before) {
		t.Fatalf("Expected a stale timeout to be ignored")
	}

	// WHEN the current phase times out
	gc.handlePhaseTimeout(phaseKey(before))

	// THEN the game has moved on
	if phaseKey(gc.Snapshot()) == phaseKey(before) {
		t.Errorf("Expected the phase to advance after a timeout")
	}
}

func TestHeuristicSpeech(t *testing.T) {
	state := strategyState()
	p, _ := state.LivePlayer("p6")
	ai := NewAIPlayer(p, state, rand.New(rand.NewSource(1)), testLogger())

	accuse := heuristicSpeech(ai, SpeechStrategy{Type: SpeechAccusation, Target: "p2"}, 1)
	if !strings.Contains(accuse, "我怀疑玩家p2") {
		t.Errorf("Expected an accusation naming p2, but got %q", accuse)
	}
	defend := heuristicSpeech(ai, SpeechStrategy{Type: SpeechDefense}, 1)
	if !strings.HasPrefix(defend, FallbackSpeech(models.Villager, 1)) || !strings.Contains(defend, "不是我") {
		t.Errorf("Expected a fallback line with a defense, but got %q", defend)
	}
}

func TestSummary(t *testing.T) {
	gc := newTestController(t, ControllerOptions{HumanName: "测试"}, nil)
	if got := gc.Summary(); !strings.Contains(got, "存活8人") {
		t.Errorf("Expected 8 living players in the summary, but got %q", got)
	}
}

func TestPublicStatusUsesHumanView(t *testing.T) {
	// GIVEN a game in progress
	gc := newTestController(t, ControllerOptions{HumanName: "测试"}, nil)
	if err := gc.StartGame(context.Background()); err != nil {
		t.Fatalf("Expected game to start, but got %v", err)
	}
	state := gc.Snapshot()
	if state.Phase == models.PhaseGameOver {
		t.Skip("game ended without human input")
	}
	human := gc.Status(HumanPlayerID)

	// WHEN an outside caller asks for an AI seat's view
	for _, p := range state.Players {
		if p.ID == HumanPlayerID {
			continue
		}
		got := gc.PublicStatus(p.ID)

		// THEN it sees exactly what the human sees
		for i, seen := range got.Players {
			if seen.Role != human.Players[i].Role {
				t.Errorf("Expected %s's role to match the human view through %s, but got %q", seen.ID, p.ID, seen.Role)
			}
		}
		if got.LastNight != nil && human.LastNight != nil && len(got.LastNight.Checks) != len(human.LastNight.Checks) {
			t.Errorf("Expected no extra check results through %s", p.ID)
		}
	}

	t.Run("analysis waits for game over", func(t *testing.T) {
		if _, err := gc.PublicAnalysis("ai_1"); !errors.Is(err, ErrGameInProgress) {
			t.Errorf("Expected ErrGameInProgress, but got %v", err)
		}
		if _, err := gc.PublicAnalysis(HumanPlayerID); !errors.Is(err, ErrPlayerNotFound) {
			t.Errorf("Expected ErrPlayerNotFound, but got %v", err)
		}
	})
}

func TestPublicStatusAfterGameOver(t *testing.T) {
	gc := newTestController(t, ControllerOptions{HumanName: "测试", AutoHuman: true}, nil)
	if err := gc.StartGame(context.Background()); err != nil {
		t.Fatalf("Expected game to start, but got %v", err)
	}

	status := gc.PublicStatus("ai_1")
	for _, p := range append(status.Players, status.DeadPlayers...) {
		if p.Role == "" {
			t.Errorf("Expected every role to be public after the game, but %s is hidden", p.ID)
		}
	}
	if entries, err := gc.PublicAnalysis("ai_1"); err != nil || len(entries) != 7 {
		t.Errorf("Expected 7 entries after the game, but got %d (%v)", len(entries), err)
	}
}
