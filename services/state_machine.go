package services

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/qianlnk/mindwolf/models"
	"github.com/sirupsen/logrus"
)

// DeathHook 角色出局后的回调，返回需要一并带走的玩家ID。
// 回调在状态机锁内执行，只能读取传入的快照，不能再调用 StateMachine。
type DeathHook func(victim models.Player, cause models.DeathCause, state GameState) string

// StateMachine 游戏状态机，GameState 的唯一修改入口
type StateMachine struct {
	game    *GameState
	cfg     models.GameConfig
	skills  *SkillManager
	bus     *EventBus
	rng     *rand.Rand
	log     logrus.FieldLogger
	hooks   map[models.Role]DeathHook
	pending []Event
	now     func() time.Time
	mutex   sync.RWMutex
}

// NewStateMachine 创建状态机实例
func NewStateMachine(gameID string, bus *EventBus, rng *rand.Rand, log logrus.FieldLogger) *StateMachine {
	if bus == nil {
		bus = NewEventBus()
	}
	game := newGameState(gameID)
	return &StateMachine{
		game:   game,
		skills: NewSkillManager(game),
		bus:    bus,
		rng:    rng,
		log:    log.WithField("game_id", gameID),
		hooks:  make(map[models.Role]DeathHook),
		now:    time.Now,
	}
}

// RegisterDeathHook 注册角色出局回调，例如猎人开枪
func (sm *StateMachine) RegisterDeathHook(role models.Role, hook DeathHook) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.hooks[role] = hook
}

// mutate 在锁内修改状态，解锁后再分发事件
func (sm *StateMachine) mutate(fn func() error) error {
	sm.mutex.Lock()
	err := fn()
	events := sm.pending
	sm.pending = nil
	sm.mutex.Unlock()

	for _, e := range events {
		sm.bus.Publish(e)
	}
	return err
}

func (sm *StateMachine) emit(e Event) {
	sm.pending = append(sm.pending, e)
}

// Initialize 生成角色牌堆并分配给一名真人玩家和若干AI
func (sm *StateMachine) Initialize(cfg models.GameConfig, humanName string) error {
	return sm.mutate(func() error {
		if sm.game.Phase != models.PhasePreparation || len(sm.game.Players) > 0 {
			return ErrGameInProgress
		}
		distribution, err := distributionFor(cfg)
		if err != nil {
			return err
		}
		deck := buildRoleDeck(distribution, sm.rng)

		if strings.TrimSpace(humanName) == "" {
			humanName = "玩家"
		}
		used := map[string]bool{humanName: true}
		players := make([]models.Player, 0, len(deck))
		for i, role := range deck {
			player := models.Player{
				Role:    role,
				Faction: role.Faction(),
				Alive:   true,
			}
			if i == 0 {
				player.ID = HumanPlayerID
				player.Name = humanName
				player.Type = models.HumanPlayer
			} else {
				player.ID = generateAIPlayerID(i)
				player.Name = generateAIPlayerName(sm.rng, used)
				player.Type = models.AIPlayer
				personality := GeneratePersonality(sm.rng, role)
				player.Personality = &personality
			}
			if role == models.Witch {
				sm.game.Potions[player.ID] = WitchPotions{}
			}
			players = append(players, player)
		}

		sm.cfg = cfg
		sm.game.Players = players
		sm.game.Distribution = distribution
		sm.game.reindex()

		sm.log.Infof("[初始化] 玩家数量: %d, 角色分布: %v", len(players), distribution)
		return nil
	})
}

// Start 开始游戏，进入第一个夜晚
func (sm *StateMachine) Start() error {
	return sm.mutate(func() error {
		if len(sm.game.Players) == 0 {
			return ErrNoPlayers
		}
		if sm.game.Phase != models.PhasePreparation {
			return ErrGameInProgress
		}
		sm.game.Day = 1
		sm.emit(GameStartedEvent{GameID: sm.game.ID, Day: 1, Players: clonePlayers(sm.game.Players)})
		sm.setPhase(models.PhaseNight)
		return nil
	})
}

// AdvancePhase 唯一的阶段推进入口
func (sm *StateMachine) AdvancePhase() error {
	return sm.mutate(func() error {
		from := sm.game.Phase
		if from != models.PhaseGameOver {
			sm.game.PendingShooter = ""
		}

		switch from {
		case models.PhasePreparation:
			return ErrGameNotStarted

		case models.PhaseNight:
			sm.resolveNight()
			if sm.checkWin() {
				return nil
			}
			sm.setPhase(models.PhaseDayDiscussion)

		case models.PhaseDayDiscussion:
			sm.setPhase(models.PhaseVoting)

		case models.PhaseVoting:
			eliminated := sm.resolveVotes()
			if sm.checkWin() {
				return nil
			}
			if eliminated != "" && sm.cfg.LastWordsTime > 0 {
				sm.setPhase(models.PhaseLastWords)
				return nil
			}
			sm.game.Day++
			sm.setPhase(models.PhaseNight)

		case models.PhaseLastWords:
			sm.game.Day++
			sm.setPhase(models.PhaseNight)

		case models.PhaseGameOver:
			return nil

		default:
			return fmt.Errorf("%w: 未知阶段 %s", ErrInvalidPhase, from)
		}
		return nil
	})
}

// setPhase 切换阶段并重置计时
func (sm *StateMachine) setPhase(to models.Phase) {
	from := sm.game.Phase
	sm.game.Phase = to
	sm.game.TimeLeft = sm.cfg.PhaseDuration(to)
	if to == models.PhaseNight {
		sm.game.NightActions = make([]models.NightAction, 0)
		sm.game.LastEliminated = ""
	}

	sm.log.WithFields(logrus.Fields{"phase": to, "day": sm.game.Day}).
		Infof("[阶段切换] %s -> %s", from.DisplayName(), to.DisplayName())
	sm.emit(PhaseChangedEvent{GameID: sm.game.ID, From: from, To: to, Day: sm.game.Day, TimeLeft: sm.game.TimeLeft})
}

// Vote 投票，同一投票者的新票覆盖旧票
func (sm *StateMachine) Vote(voterID, targetID string) error {
	return sm.mutate(func() error {
		if sm.game.Phase != models.PhaseVoting {
			return ErrNotVotingPhase
		}
		voter, ok := sm.game.LivePlayer(voterID)
		if !ok || !voter.Role.CanVote() {
			return ErrVoterUnavailable
		}
		if _, ok := sm.game.LivePlayer(targetID); !ok {
			return ErrTargetUnavailable
		}

		vote := models.Vote{VoterID: voterID, TargetID: targetID, Timestamp: sm.now()}
		sm.removeVotesBy(voterID)
		sm.game.Votes = append(sm.game.Votes, vote)

		sm.log.WithField("player_id", voterID).Debugf("[投票] %s -> %s", voterID, targetID)
		sm.emit(VoteCastEvent{GameID: sm.game.ID, Day: sm.game.Day, Vote: vote})
		return nil
	})
}

func (sm *StateMachine) removeVotesBy(voterID string) {
	kept := sm.game.Votes[:0]
	for _, v := range sm.game.Votes {
		if v.VoterID != voterID {
			kept = append(kept, v)
		}
	}
	sm.game.Votes = kept
}

// resolveVotes 结算投票，返回出局玩家ID
func (sm *StateMachine) resolveVotes() string {
	tally := make(map[string]int)
	for _, v := range sm.game.Votes {
		tally[v.TargetID]++
	}
	top := pluralityTarget(tally)
	sm.emit(VoteResolvedEvent{GameID: sm.game.ID, Day: sm.game.Day, Tally: tally, EliminatedID: top})
	sm.game.Votes = make([]models.Vote, 0)

	if top == "" {
		sm.log.Infof("[投票] 第%d天无人投票，无人出局", sm.game.Day)
		return ""
	}
	sm.log.Infof("[投票] 第%d天 %s 以 %d 票出局", sm.game.Day, top, tally[top])
	if err := sm.eliminate(top, models.CauseVoted); err != nil {
		sm.log.Warnf("[投票] 淘汰 %s 失败: %v", top, err)
		return ""
	}
	sm.game.LastEliminated = top
	return top
}

// EliminatePlayer 淘汰玩家
func (sm *StateMachine) EliminatePlayer(id string, cause models.DeathCause) error {
	return sm.mutate(func() error {
		if err := sm.eliminate(id, cause); err != nil {
			return err
		}
		sm.checkWin()
		return nil
	})
}

// eliminate 从存活名单移到出局名单并触发角色回调
func (sm *StateMachine) eliminate(id string, cause models.DeathCause) error {
	i, ok := sm.game.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	victim := sm.game.Players[i]
	victim.Alive = false

	players := make([]models.Player, 0, len(sm.game.Players)-1)
	players = append(players, sm.game.Players[:i]...)
	players = append(players, sm.game.Players[i+1:]...)
	sm.game.Players = players
	sm.game.DeadPlayers = append(sm.game.DeadPlayers, victim)
	sm.game.reindex()
	sm.removeVotesBy(id)

	sm.log.WithField("player_id", id).Infof("[出局] %s(%s) 出局，原因: %s", victim.Name, victim.Role.DisplayName(), cause)
	sm.emit(PlayerEliminatedEvent{GameID: sm.game.ID, Day: sm.game.Day, Player: victim, Cause: cause})

	hook, ok := sm.hooks[victim.Role]
	if !ok || cause == models.CausePoisoned {
		return nil
	}
	target := hook(victim, cause, sm.game.Clone())
	if target == "" {
		if victim.Type == models.HumanPlayer {
			sm.game.PendingShooter = victim.ID
		}
		return nil
	}
	if _, alive := sm.game.LivePlayer(target); alive {
		return sm.eliminate(target, models.CauseShot)
	}
	return nil
}

// Shoot 真人猎人出局后补充开枪
func (sm *StateMachine) Shoot(hunterID, targetID string) error {
	return sm.mutate(func() error {
		if sm.game.PendingShooter == "" || sm.game.PendingShooter != hunterID {
			return fmt.Errorf("%w: 当前不能开枪", ErrInvalidAction)
		}
		if _, ok := sm.game.LivePlayer(targetID); !ok {
			return ErrTargetUnavailable
		}
		sm.game.PendingShooter = ""
		if err := sm.eliminate(targetID, models.CauseShot); err != nil {
			return err
		}
		sm.checkWin()
		return nil
	})
}

// CheckWinCondition 狼人数为0好人胜；狼人数不少于好人数狼人胜
func (sm *StateMachine) CheckWinCondition() models.Faction {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return winnerOf(sm.game)
}

func winnerOf(game *GameState) models.Faction {
	werewolves, villagers := game.CountFactions()
	if werewolves == 0 {
		return models.FactionVillager
	}
	if werewolves >= villagers {
		return models.FactionWerewolf
	}
	return models.FactionNone
}

// checkWin 有胜者时进入游戏结束
func (sm *StateMachine) checkWin() bool {
	if sm.game.Phase == models.PhaseGameOver {
		return true
	}
	winner := winnerOf(sm.game)
	if winner == models.FactionNone {
		return false
	}
	sm.game.Winner = winner
	sm.game.Votes = make([]models.Vote, 0)
	sm.setPhase(models.PhaseGameOver)
	sm.log.Infof("[游戏结束] %s阵营胜利", winner.DisplayName())
	sm.emit(GameOverEvent{GameID: sm.game.ID, Day: sm.game.Day, Winner: winner, Players: sm.game.AllPlayers()})
	return true
}

// ExecuteNightAction 提交夜晚行动，天亮时统一结算
func (sm *StateMachine) ExecuteNightAction(action models.NightAction) error {
	return sm.mutate(func() error {
		if sm.game.Phase != models.PhaseNight {
			return ErrInvalidPhase
		}
		actor, ok := sm.game.LivePlayer(action.ActorID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, action.ActorID)
		}
		if err := sm.skills.Validate(actor, action); err != nil {
			return err
		}

		kept := sm.game.NightActions[:0]
		for _, a := range sm.game.NightActions {
			if a.ActorID != action.ActorID {
				kept = append(kept, a)
			}
		}
		sm.game.NightActions = append(kept, action)

		sm.log.WithField("player_id", actor.ID).Debugf("[夜晚行动] %s %s -> %s", actor.Role.DisplayName(), action.Type, action.TargetID)
		sm.emit(NightActionEvent{GameID: sm.game.ID, Day: sm.game.Day, Action: action})
		return nil
	})
}

// resolveNight 结算夜晚，先统计再统一处理死亡
func (sm *StateMachine) resolveNight() {
	outcome, deaths := sm.skills.Resolve()
	sm.game.LastNight = &outcome
	sm.emit(NightResolvedEvent{GameID: sm.game.ID, Outcome: outcome})
	for _, d := range deaths {
		if !sm.game.IsAlive(d.playerID) {
			continue
		}
		if err := sm.eliminate(d.playerID, d.cause); err != nil {
			sm.log.Warnf("[夜晚结算] 淘汰 %s 失败: %v", d.playerID, err)
		}
	}
	sm.game.NightActions = make([]models.NightAction, 0)
	if len(outcome.Deaths) == 0 {
		sm.log.Infof("[夜晚结算] 第%d晚是平安夜", outcome.Day)
	}
}

// RecordSpeech 记录发言，讨论阶段存活玩家或遗言阶段的出局者可以发言
func (sm *StateMachine) RecordSpeech(playerID, content string) (models.Speech, error) {
	var speech models.Speech
	err := sm.mutate(func() error {
		content = strings.TrimSpace(content)
		if content == "" {
			return fmt.Errorf("%w: 发言内容为空", ErrInvalidAction)
		}
		var (
			player models.Player
			ok     bool
		)
		switch sm.game.Phase {
		case models.PhaseDayDiscussion:
			player, ok = sm.game.LivePlayer(playerID)
		case models.PhaseLastWords:
			if playerID == sm.game.LastEliminated {
				player, ok = sm.game.FindPlayer(playerID)
			}
		default:
			return ErrInvalidPhase
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}

		speech = models.Speech{
			PlayerID:  player.ID,
			Name:      player.Name,
			Content:   content,
			Day:       sm.game.Day,
			Phase:     sm.game.Phase,
			Timestamp: sm.now(),
		}
		sm.game.Speeches = append(sm.game.Speeches, speech)
		sm.emit(SpeechEvent{GameID: sm.game.ID, Speech: speech})
		return nil
	})
	return speech, err
}

// UpdateTimeLeft 更新剩余时间
func (sm *StateMachine) UpdateTimeLeft(seconds int) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.game.TimeLeft = seconds
}

// Snapshot 只读快照
func (sm *StateMachine) Snapshot() GameState {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.game.Clone()
}

// Phase 当前阶段
func (sm *StateMachine) Phase() models.Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.game.Phase
}

// Config 当前游戏配置
func (sm *StateMachine) Config() models.GameConfig {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.cfg
}

// PendingKillTarget 当前狼人击杀目标，供女巫决定是否用解药
func (sm *StateMachine) PendingKillTarget() string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	if sm.game.Phase != models.PhaseNight {
		return ""
	}
	return sm.skills.KillTarget()
}

// NightActionsComplete 存活的狼人、预言家、守卫都已行动；女巫可以不用药
func (sm *StateMachine) NightActionsComplete() bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	acted := make(map[string]bool, len(sm.game.NightActions))
	for _, a := range sm.game.NightActions {
		acted[a.ActorID] = true
	}
	for _, p := range sm.game.Players {
		switch p.Role {
		case models.Werewolf, models.Seer, models.Guard:
			if !acted[p.ID] {
				return false
			}
		}
	}
	return true
}

// AllVotesCast 所有可投票的存活玩家都已投票
func (sm *StateMachine) AllVotesCast() bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	voters := 0
	for _, p := range sm.game.Players {
		if p.Role.CanVote() {
			voters++
		}
	}
	return len(sm.game.Votes) >= voters
}
