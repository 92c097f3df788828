package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/qianlnk/mindwolf/models"
)

// fakeRecorder 记录每次调用
type fakeRecorder struct {
	calls    []string
	analyses []models.AnalysisRecord
	fail     error
	mutex    sync.Mutex
}

func (f *fakeRecorder) record(name string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, name)
	return f.fail
}

func (f *fakeRecorder) CreateGame(ctx context.Context, gameID string, players []models.Player) error {
	return f.record("create")
}

func (f *fakeRecorder) FinishGame(ctx context.Context, gameID string, winner models.Faction, days int, players []models.Player) error {
	return f.record("finish")
}

func (f *fakeRecorder) RecordElimination(ctx context.Context, gameID, playerID string, day int, cause models.DeathCause) error {
	return f.record("elimination")
}

func (f *fakeRecorder) RecordSpeech(ctx context.Context, gameID string, speech models.Speech) error {
	return f.record("speech")
}

func (f *fakeRecorder) RecordVote(ctx context.Context, gameID string, day int, vote models.Vote) error {
	return f.record("vote")
}

func (f *fakeRecorder) RecordNightAction(ctx context.Context, gameID string, day int, action models.NightAction) error {
	return f.record("night_action")
}

func (f *fakeRecorder) RecordAIAnalysis(ctx context.Context, gameID string, records []models.AnalysisRecord) error {
	f.mutex.Lock()
	f.analyses = append(f.analyses, records...)
	f.mutex.Unlock()
	return f.record("analysis")
}

func (f *fakeRecorder) count(name string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func TestRecorderMapsEvents(t *testing.T) {
	store := &fakeRecorder{}
	r := NewRecorder("g1", store, testLogger())

	r.HandleEvent(GameStartedEvent{GameID: "g1", Day: 1})
	r.HandleEvent(PhaseChangedEvent{GameID: "g1", To: models.PhaseNight})
	r.HandleEvent(NightActionEvent{GameID: "g1", Day: 1, Action: models.NightAction{Type: models.ActionKill}})
	r.HandleEvent(SpeechEvent{GameID: "g1", Speech: models.Speech{Content: "你好"}})
	r.HandleEvent(VoteCastEvent{GameID: "g1", Day: 1})
	r.HandleEvent(PlayerEliminatedEvent{GameID: "g1", Day: 1, Cause: models.CauseVoted})
	r.HandleEvent(GameOverEvent{GameID: "g1", Day: 2, Winner: models.FactionVillager})
	r.HandleEvent(AnalysisReportedEvent{
		GameID:   "g1",
		AgentID:  "ai_1",
		Day:      2,
		Strategy: Strategy{Type: StrategyLogical},
		Entries: []AnalysisEntry{
			{PlayerID: "ai_2", Suspicion: 0.8, LikelyRole: models.Werewolf, EvidenceCount: 3},
			{PlayerID: "ai_3", Suspicion: 0.2},
		},
	})

	for _, name := range []string{"create", "night_action", "speech", "vote", "elimination", "finish", "analysis"} {
		if store.count(name) != 1 {
			t.Errorf("Expected one %s call, but got %d", name, store.count(name))
		}
	}
	if len(store.calls) != 7 {
		t.Errorf("Expected phase changes to be ignored, but got calls %v", store.calls)
	}
	if len(store.analyses) != 2 {
		t.Fatalf("Expected 2 analysis records, but got %d", len(store.analyses))
	}
	first := store.analyses[0]
	if first.AgentID != "ai_1" || first.TargetID != "ai_2" || first.Strategy != "logical" || first.Day != 2 || first.EvidenceCount != 3 {
		t.Errorf("Expected the entry to be copied with agent context, but got %+v", first)
	}
}

func TestRecorderSwallowsErrors(t *testing.T) {
	store := &fakeRecorder{fail: errors.New("disk full")}
	r := NewRecorder("g1", store, testLogger())

	r.HandleEvent(SpeechEvent{GameID: "g1"})
	if store.count("speech") != 1 {
		t.Errorf("Expected the failed write to be attempted once")
	}
}

func TestRecorderFollowsGame(t *testing.T) {
	// GIVEN a recorder subscribed to an automatic game
	store := &fakeRecorder{}
	bus := NewEventBus()
	bus.Subscribe(NewRecorder("game-test", store, testLogger()))
	gc := newTestController(t, ControllerOptions{HumanName: "测试", AutoHuman: true}, bus)

	// WHEN the game is played out
	if err := gc.StartGame(context.Background()); err != nil {
		t.Fatalf("Expected game to start, but got %v", err)
	}

	// THEN the whole game is written
	if store.count("create") != 1 || store.count("finish") != 1 {
		t.Errorf("Expected one create and one finish, but got %v", store.calls)
	}
	if store.count("analysis") != 8 {
		t.Errorf("Expected 8 analysis writes, but got %d", store.count("analysis"))
	}
	state := gc.Snapshot()
	if store.count("elimination") != len(state.DeadPlayers) {
		t.Errorf("Expected %d eliminations, but got %d", len(state.DeadPlayers), store.count("elimination"))
	}
}
