package services

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/qianlnk/mindwolf/models"
)

// strategyState p1,p2 狼人，p3 预言家，p4 女巫，p5 守卫，p6,p7 村民
func strategyState() GameState {
	roles := []models.Role{models.Werewolf, models.Werewolf, models.Seer, models.Witch, models.Guard, models.Villager, models.Villager}
	gs := newGameState("strategy")
	gs.Day = 1
	for i, role := range roles {
		id := "p" + string(rune('1'+i))
		gs.Players = append(gs.Players, models.Player{ID: id, Name: "玩家" + id, Role: role, Faction: role.Faction(), Alive: true})
		gs.Distribution[role]++
		if role == models.Witch {
			gs.Potions[id] = WitchPotions{}
		}
	}
	gs.reindex()
	return gs.Clone()
}

var neutralPersonality = models.Personality{
	Aggressiveness: 0.5, Logic: 0.6, Deception: 0.5, Trustfulness: 0.5,
	Patience: 0.5, Confidence: 0.5, Empathy: 0.5, Impulsiveness: 0.5,
}

func newTestSelector(id string, role models.Role, p models.Personality, state GameState, seed int64) (*StrategySelector, *BeliefModel) {
	belief := NewBeliefModel(id)
	belief.Initialize(state)
	if role == models.Werewolf {
		for _, other := range state.Players {
			if other.ID != id && other.Role == models.Werewolf {
				belief.MarkAlly(other.ID)
			}
		}
	}
	return NewStrategySelector(id, role, p, rand.New(rand.NewSource(seed))), belief
}

func TestInitialStrategy(t *testing.T) {
	tests := []struct {
		name    string
		faction models.Faction
		p       models.Personality
		want    StrategyType
		voting  VotingStrategy
	}{
		{"chaotic", models.FactionVillager, models.Personality{Impulsiveness: 0.8, Logic: 0.3}, StrategyChaotic, VoteRandom},
		{"deceptive wolf", models.FactionWerewolf, models.Personality{Deception: 0.9, Logic: 0.7}, StrategyDeceptive, VoteFollowMajority},
		{"aggressive wolf", models.FactionWerewolf, models.Personality{Aggressiveness: 0.8, Deception: 0.5}, StrategyAggressive, VoteAggressive},
		{"defensive wolf", models.FactionWerewolf, models.Personality{Aggressiveness: 0.3, Deception: 0.5}, StrategyDefensive, VoteProtective},
		{"logical villager", models.FactionVillager, models.Personality{Logic: 0.9}, StrategyLogical, VoteIndependent},
		{"aggressive villager", models.FactionVillager, models.Personality{Logic: 0.5, Aggressiveness: 0.7}, StrategyAggressive, VoteAggressive},
		{"neutral villager", models.FactionVillager, neutralPersonality, StrategyNeutral, VoteIndependent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := initialStrategy(tt.faction, tt.p)
			if got.Type != tt.want || got.Voting != tt.voting {
				t.Errorf("Expected %s/%s, but got %s/%s", tt.want, tt.voting, got.Type, got.Voting)
			}
		})
	}
}

func TestUpdateStrategy(t *testing.T) {
	state := strategyState()
	wolf := neutralPersonality
	wolf.Aggressiveness = 0.3
	s, belief := newTestSelector("p1", models.Werewolf, wolf, state, 1)
	if s.Strategy().Type != StrategyDefensive {
		t.Fatalf("Expected a defensive werewolf, but got %s", s.Strategy().Type)
	}

	// 前三天策略不变
	state.Day = 3
	s.UpdateStrategy(state, belief)
	if s.Strategy().Type != StrategyDefensive || s.Personality().Deception != 0.5 {
		t.Errorf("Expected no change before day 4, but got %s", s.Strategy().Type)
	}

	state.Day = 4
	s.UpdateStrategy(state, belief)
	got := s.Strategy()
	if got.Type != StrategyAggressive || got.Voting != VoteAggressive {
		t.Errorf("Expected an aggressive strategy after day 3, but got %s/%s", got.Type, got.Voting)
	}
	if got.DeceptionLevel < 0.59 || got.DeceptionLevel > 0.61 {
		t.Errorf("Expected deception to grow by 0.1, but got %f", got.DeceptionLevel)
	}
	if len(got.PriorityTargets) != 1 || got.PriorityTargets[0] == "p2" {
		t.Errorf("Expected a non-ally priority target, but got %v", got.PriorityTargets)
	}
}

func TestWerewolfNeverTargetsTeammates(t *testing.T) {
	state := strategyState()
	personalities := map[string]models.Personality{
		"neutral":    {Aggressiveness: 0.3, Logic: 0.6, Deception: 0.5},
		"aggressive": {Aggressiveness: 0.9, Logic: 0.6, Deception: 0.5},
		"deceptive":  {Aggressiveness: 0.3, Logic: 0.6, Deception: 0.9},
		"chaotic":    {Aggressiveness: 0.3, Logic: 0.2, Deception: 0.5, Impulsiveness: 0.9},
	}
	for name, p := range personalities {
		t.Run(name, func(t *testing.T) {
			for seed := int64(1); seed <= 30; seed++ {
				s, belief := newTestSelector("p1", models.Werewolf, p, state, seed)

				action, ok := s.DecideNightAction(state, belief)
				if !ok || action.Type != models.ActionKill {
					t.Fatalf("Expected a kill, but got %+v", action)
				}
				if action.TargetID == "p1" || action.TargetID == "p2" {
					t.Fatalf("Expected a non-werewolf kill target, but got %s", action.TargetID)
				}

				target, ok := s.DecideVoteTarget(state, belief)
				if !ok || target == "p1" || target == "p2" {
					t.Fatalf("Expected a non-werewolf vote target, but got %q", target)
				}
			}
		})
	}
}

func TestKillScorePrefersThreats(t *testing.T) {
	// GIVEN a wolf that knows p3 is the seer
	state := strategyState()
	wolf := neutralPersonality
	wolf.Aggressiveness = 0.3
	s, belief := newTestSelector("p1", models.Werewolf, wolf, state, 1)
	belief.KnowRole("p3", models.Seer)

	// WHEN the default strategy picks a kill target
	action, ok := s.DecideNightAction(state, belief)

	// THEN the seer is chosen
	if !ok || action.TargetID != "p3" {
		t.Errorf("Expected the seer to be killed, but got %+v", action)
	}
}

func TestSeerSkipsCheckedPlayers(t *testing.T) {
	state := strategyState()
	s, belief := newTestSelector("p3", models.Seer, neutralPersonality, state, 1)

	seen := make(map[string]bool)
	for i := 0; i < 6; i++ {
		action, ok := s.DecideNightAction(state, belief)
		if !ok || action.Type != models.ActionCheck {
			t.Fatalf("Expected a check, but got %+v", action)
		}
		if action.TargetID == "p3" {
			t.Fatalf("Expected the seer not to check itself")
		}
		if seen[action.TargetID] {
			t.Fatalf("Expected a new target each night, but %s repeats", action.TargetID)
		}
		seen[action.TargetID] = true
	}

	// 全部查验过后可以重复
	if _, ok := s.DecideNightAction(state, belief); !ok {
		t.Errorf("Expected a check after everyone has been checked")
	}
}

func TestGuardExcludesLastTarget(t *testing.T) {
	state := strategyState()
	s, belief := newTestSelector("p5", models.Guard, neutralPersonality, state, 1)

	first, ok := s.DecideNightAction(state, belief)
	if !ok || first.Type != models.ActionProtect {
		t.Fatalf("Expected a protect action, but got %+v", first)
	}
	state.LastProtected["p5"] = first.TargetID

	for i := 0; i < 10; i++ {
		next, ok := s.DecideNightAction(state, belief)
		if !ok {
			t.Fatalf("Expected a protect action")
		}
		if next.TargetID == first.TargetID || next.TargetID == "p5" {
			t.Errorf("Expected a different target than %s, but got %s", first.TargetID, next.TargetID)
		}
	}
}

func TestWitchDecisions(t *testing.T) {
	state := strategyState()

	t.Run("heal leaves target empty", func(t *testing.T) {
		for seed := int64(1); seed <= 20; seed++ {
			s, belief := newTestSelector("p4", models.Witch, neutralPersonality, state, seed)
			action, ok := s.DecideNightAction(state, belief)
			if !ok {
				continue
			}
			switch action.Type {
			case models.ActionHeal:
				if action.TargetID != "" {
					t.Errorf("Expected an empty heal target, but got %s", action.TargetID)
				}
			case models.ActionPoison:
				if action.TargetID == "" || action.TargetID == "p4" {
					t.Errorf("Expected a poison target other than the witch, but got %q", action.TargetID)
				}
			default:
				t.Errorf("Expected heal or poison, but got %s", action.Type)
			}
		}
	})

	t.Run("no potions left", func(t *testing.T) {
		used := state.Clone()
		used.Potions["p4"] = WitchPotions{HealUsed: true, PoisonUsed: true}
		for seed := int64(1); seed <= 10; seed++ {
			s, belief := newTestSelector("p4", models.Witch, neutralPersonality, used, seed)
			if action, ok := s.DecideNightAction(used, belief); ok {
				t.Errorf("Expected no action without potions, but got %+v", action)
			}
		}
	})
}

func TestVillagerHasNoNightAction(t *testing.T) {
	state := strategyState()
	s, belief := newTestSelector("p6", models.Villager, neutralPersonality, state, 1)
	if _, ok := s.DecideNightAction(state, belief); ok {
		t.Errorf("Expected villagers to skip the night")
	}
}

func TestVoteTargets(t *testing.T) {
	state := strategyState()

	t.Run("independent voter picks most suspicious", func(t *testing.T) {
		s, belief := newTestSelector("p6", models.Villager, neutralPersonality, state, 1)
		belief.AddEvidence("p2", Evidence{Type: EvidenceLogicalInconsistency, Confidence: 1, Weight: 1})
		if target, ok := s.DecideVoteTarget(state, belief); !ok || target != "p2" {
			t.Errorf("Expected p2, but got %q", target)
		}
	})

	t.Run("never votes for self", func(t *testing.T) {
		chaotic := models.Personality{Impulsiveness: 0.9, Logic: 0.2}
		for seed := int64(1); seed <= 30; seed++ {
			s, belief := newTestSelector("p6", models.Villager, chaotic, state, seed)
			if s.Strategy().Voting != VoteRandom {
				t.Fatalf("Expected random voting, but got %s", s.Strategy().Voting)
			}
			if target, ok := s.DecideVoteTarget(state, belief); !ok || target == "p6" {
				t.Fatalf("Expected a vote for someone else, but got %q", target)
			}
		}
	})

	t.Run("protective voter avoids trusted suspect", func(t *testing.T) {
		wolf := neutralPersonality
		wolf.Aggressiveness = 0.3
		s, belief := newTestSelector("p1", models.Werewolf, wolf, state, 1)
		belief.AddEvidence("p6", Evidence{Type: EvidenceDefensiveBehavior, Confidence: 1, Weight: 1})
		if target, ok := s.DecideVoteTarget(state, belief); !ok || target != "p6" {
			t.Errorf("Expected the distinct most suspicious p6, but got %q", target)
		}
	})
}

func TestProtectiveVoteProperty(t *testing.T) {
	state := strategyState()
	wolf := neutralPersonality
	wolf.Aggressiveness = 0.3
	candidates := []string{"p3", "p4", "p5", "p6", "p7"}
	kinds := []EvidenceType{
		EvidenceSpeechAnalysis, EvidenceDefensiveBehavior, EvidenceLogicalInconsistency,
		EvidenceAggressiveBehavior, EvidenceNightResult, EvidenceRoleClaimConsistency, EvidenceTeamworkIndicator,
	}

	t.Run("random evidence", func(t *testing.T) {
		for seed := int64(1); seed <= 50; seed++ {
			// GIVEN a protective voter holding random evidence
			s, belief := newTestSelector("p1", models.Werewolf, wolf, state, seed)
			if s.Strategy().Voting != VoteProtective {
				t.Fatalf("Expected protective voting, but got %s", s.Strategy().Voting)
			}
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 6; i++ {
				belief.AddEvidence(candidates[rng.Intn(len(candidates))], Evidence{
					Type:       kinds[rng.Intn(len(kinds))],
					Confidence: rng.Float64(),
					Weight:     rng.Float64(),
				})
			}
			suspect, _ := belief.MostSuspiciousAmong(candidates)
			trusted, _ := belief.MostTrustedAmong(candidates)

			// WHEN it votes
			target, ok := s.DecideVoteTarget(state, belief)

			// THEN it never protects by voting out the most trusted unless that is also the top suspect
			if !ok || !slices.Contains(candidates, target) {
				t.Fatalf("seed %d: Expected a vote for a non-wolf, but got %q", seed, target)
			}
			if suspect != trusted && (target != suspect || target == trusted) {
				t.Errorf("seed %d: Expected the suspect %s over trusted %s, but got %s", seed, suspect, trusted, target)
			}
		}
	})

	t.Run("suspect is also most trusted", func(t *testing.T) {
		others := 0
		for seed := int64(1); seed <= 20; seed++ {
			// GIVEN p5 tops both suspicion and trust
			s, belief := newTestSelector("p1", models.Werewolf, wolf, state, seed)
			belief.AddEvidence("p5", Evidence{Type: EvidenceDefensiveBehavior, Confidence: 1, Weight: 1})
			belief.AddEvidence("p5", Evidence{Type: EvidenceRoleClaimConsistency, Confidence: 1, Weight: 1})
			suspect, _ := belief.MostSuspiciousAmong(candidates)
			trusted, _ := belief.MostTrustedAmong(candidates)
			if suspect != "p5" || trusted != "p5" {
				t.Fatalf("Expected p5 to be both suspect and trusted, but got %s and %s", suspect, trusted)
			}

			// WHEN it votes THEN the choice falls back to a random non-wolf
			target, ok := s.DecideVoteTarget(state, belief)
			if !ok || !slices.Contains(candidates, target) {
				t.Fatalf("seed %d: Expected a vote for a non-wolf, but got %q", seed, target)
			}
			if target != "p5" {
				others++
			}
		}
		if others == 0 {
			t.Errorf("Expected the fallback to spread votes beyond p5")
		}
	})
}

func TestGenerateSpeechStrategy(t *testing.T) {
	state := strategyState()
	s, belief := newTestSelector("p6", models.Villager, neutralPersonality, state, 1)
	belief.AddEvidence("p2", Evidence{Type: EvidenceDefensiveBehavior, Confidence: 1, Weight: 1})

	accuse := s.GenerateSpeechStrategy(SpeechAccusation, belief)
	if accuse.Target != "p2" || len(accuse.Points) == 0 {
		t.Errorf("Expected an accusation against p2, but got %+v", accuse)
	}
	if defend := s.GenerateSpeechStrategy(SpeechDefense, belief); defend.Tone != ToneDefensive {
		t.Errorf("Expected a defensive tone, but got %s", defend.Tone)
	}
	if general := s.GenerateSpeechStrategy(SpeechGeneral, belief); general.Tone != ToneNeutral || general.Confidence != 0.5 {
		t.Errorf("Expected a neutral general speech, but got %+v", general)
	}
}
