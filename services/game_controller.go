package services

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qianlnk/mindwolf/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TextGenerator 外部文本生成服务
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ControllerOptions 游戏控制器参数
type ControllerOptions struct {
	Config    models.GameConfig
	HumanName string
	AutoHuman bool          // 真人座位由AI代打
	Generator TextGenerator // 为空时只使用规则发言
	Rng       *rand.Rand
	NoTimers  bool // 不启动阶段计时器
}

// GameController 游戏流程控制器，驱动AI在每个阶段行动
type GameController struct {
	id       string
	sm       *StateMachine
	bus      *EventBus
	agents   map[string]*AIPlayer
	seats    []string // AI座位顺序
	gen      TextGenerator
	noTimers bool
	handled  string // 已处理过的阶段
	timer    *time.Timer
	deadline atomic.Int64 // 本阶段截止时间，UnixNano
	ctx      context.Context
	cancel   context.CancelFunc
	log      logrus.FieldLogger
	mutex    sync.Mutex
}

// NewGameController 初始化游戏并为每个AI座位创建AI玩家
func NewGameController(gameID string, opts ControllerOptions, bus *EventBus, log logrus.FieldLogger) (*GameController, error) {
	if bus == nil {
		bus = NewEventBus()
	}
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	sm := NewStateMachine(gameID, bus, rng, log)
	if err := sm.Initialize(opts.Config, opts.HumanName); err != nil {
		return nil, err
	}

	gc := &GameController{
		id:       gameID,
		sm:       sm,
		bus:      bus,
		agents:   make(map[string]*AIPlayer),
		gen:      opts.Generator,
		noTimers: opts.NoTimers,
		log:      log.WithField("game_id", gameID),
	}

	state := sm.Snapshot()
	for _, p := range state.Players {
		if !p.IsAgent() && !opts.AutoHuman {
			continue
		}
		// 每个AI使用独立的随机源，可以并发决策
		agent := NewAIPlayer(p, state, rand.New(rand.NewSource(rng.Int63())), log)
		gc.agents[p.ID] = agent
		gc.seats = append(gc.seats, p.ID)
		bus.Subscribe(agent)
	}
	sm.RegisterDeathHook(models.Hunter, gc.hunterShot)

	return gc, nil
}

// ID 游戏ID
func (gc *GameController) ID() string {
	return gc.id
}

// Bus 事件总线
func (gc *GameController) Bus() *EventBus {
	return gc.bus
}

// Agent 获取AI玩家
func (gc *GameController) Agent(id string) (*AIPlayer, bool) {
	agent, ok := gc.agents[id]
	return agent, ok
}

// Snapshot 游戏状态快照
func (gc *GameController) Snapshot() GameState {
	return gc.sm.Snapshot()
}

// StartGame 开始游戏，AI行动直到需要等待真人或游戏结束
func (gc *GameController) StartGame(ctx context.Context) error {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	gc.ctx, gc.cancel = context.WithCancel(ctx)
	if err := gc.sm.Start(); err != nil {
		return err
	}
	gc.log.Infof("[游戏开始] AI玩家: %d", len(gc.agents))
	gc.drive()
	return nil
}

// Stop 停止计时器并取消进行中的生成请求
func (gc *GameController) Stop() {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()
	gc.stopTimer()
	if gc.cancel != nil {
		gc.cancel()
	}
}

// ProcessAction 处理真人玩家的动作
func (gc *GameController) ProcessAction(action models.GameAction) error {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.ctx == nil {
		return ErrGameNotStarted
	}
	if action.PlayerID == "" {
		action.PlayerID = HumanPlayerID
	}
	if action.PlayerID != HumanPlayerID {
		return fmt.Errorf("%w: 只能操作自己的座位", ErrInvalidAction)
	}
	if gc.sm.Phase() == models.PhaseGameOver {
		return ErrGameOver
	}

	var err error
	switch action.Type {
	case "speak", "chat":
		_, err = gc.sm.RecordSpeech(action.PlayerID, action.Content)
	case "vote":
		err = gc.sm.Vote(action.PlayerID, action.TargetID)
	case "shoot":
		err = gc.sm.Shoot(action.PlayerID, action.TargetID)
	case "advance":
		state := gc.sm.Snapshot()
		if !slices.Contains(getAvailableActions(&state, action.PlayerID), "advance") {
			return fmt.Errorf("%w: %s 阶段不能跳过", ErrInvalidPhase, state.Phase)
		}
		err = gc.sm.AdvancePhase()
	default:
		kind, ok := models.ParseNightActionType(action.Type)
		if !ok {
			return fmt.Errorf("%w: %s", ErrInvalidAction, action.Type)
		}
		if kind == models.ActionHeal && action.TargetID == "" {
			action.TargetID = gc.sm.PendingKillTarget()
		}
		err = gc.sm.ExecuteNightAction(models.NightAction{Type: kind, ActorID: action.PlayerID, TargetID: action.TargetID})
	}
	if err != nil {
		return err
	}

	gc.drive()
	return nil
}

// drive 让AI完成当前阶段，条件满足时推进阶段，直到需要等待真人
func (gc *GameController) drive() {
	for {
		state := gc.sm.Snapshot()
		if state.Phase == models.PhaseGameOver {
			gc.handleGameEnd(state)
			return
		}

		key := phaseKey(state)
		if gc.handled != key {
			gc.handled = key
			gc.runPhase(state)
			state = gc.sm.Snapshot()
			if phaseKey(state) != key {
				continue
			}
		}

		if !gc.phaseComplete(state) {
			gc.startPhaseTimer(state)
			return
		}
		if err := gc.sm.AdvancePhase(); err != nil {
			gc.log.Errorf("[阶段推进] 失败: %v", err)
			return
		}
	}
}

func phaseKey(state GameState) string {
	return fmt.Sprintf("%d-%s", state.Day, state.Phase)
}

// waitsForHuman 真人座位是否需要等待输入
func (gc *GameController) waitsForHuman() bool {
	_, agent := gc.agents[HumanPlayerID]
	return !agent
}

// phaseComplete 当前阶段是否可以立即结束
func (gc *GameController) phaseComplete(state GameState) bool {
	if !gc.waitsForHuman() {
		return state.Phase != models.PhaseVoting || gc.sm.AllVotesCast()
	}
	if state.PendingShooter == HumanPlayerID {
		return false
	}

	switch state.Phase {
	case models.PhaseNight:
		if human, ok := state.LivePlayer(HumanPlayerID); ok && human.Role == models.Witch && !hasActed(state, HumanPlayerID) {
			if potions := state.Potions[HumanPlayerID]; !potions.HealUsed || !potions.PoisonUsed {
				return false
			}
		}
		return gc.sm.NightActionsComplete()
	case models.PhaseDayDiscussion:
		return !state.IsAlive(HumanPlayerID)
	case models.PhaseVoting:
		return gc.sm.AllVotesCast()
	case models.PhaseLastWords:
		return state.LastEliminated != HumanPlayerID
	}
	return true
}

func hasActed(state GameState, playerID string) bool {
	for _, a := range state.NightActions {
		if a.ActorID == playerID {
			return true
		}
	}
	return false
}

// runPhase 进入新阶段时让AI行动
func (gc *GameController) runPhase(state GameState) {
	gc.stopTimer()
	for _, id := range gc.seats {
		if state.IsAlive(id) {
			gc.agents[id].Refresh(state)
		}
	}

	switch state.Phase {
	case models.PhaseNight:
		gc.processNightActions(state)
	case models.PhaseDayDiscussion:
		gc.processSpeeches(state)
	case models.PhaseVoting:
		gc.processVotes(state)
	case models.PhaseLastWords:
		gc.processLastWords(state)
	}
}

// processNightActions 并发决定夜晚行动，按座位顺序提交；女巫最后行动，需要知道刀口
func (gc *GameController) processNightActions(state GameState) {
	actors := make([]*AIPlayer, 0)
	var witch *AIPlayer
	for _, id := range gc.seats {
		agent := gc.agents[id]
		if !state.IsAlive(id) || !agent.Role.HasNightAction() {
			continue
		}
		if agent.Role == models.Witch {
			witch = agent
			continue
		}
		actors = append(actors, agent)
	}

	choices := make([][]models.NightAction, len(actors))
	g, ctx := errgroup.WithContext(gc.ctx)
	for i, agent := range actors {
		g.Go(func() error {
			choices[i] = gc.decideNight(ctx, agent, state)
			return nil
		})
	}
	_ = g.Wait()

	for i, agent := range actors {
		gc.applyNightAction(agent, choices[i])
	}

	if witch != nil {
		state = gc.sm.Snapshot()
		gc.applyNightAction(witch, gc.decideNight(gc.ctx, witch, state))
	}
}

// decideNight 先尝试文本生成，失败时使用策略选择，返回按优先级排列的候选
func (gc *GameController) decideNight(ctx context.Context, agent *AIPlayer, state GameState) []models.NightAction {
	choices := make([]models.NightAction, 0, 2)
	fallback, ok := agent.DecideNightAction(state)

	if gc.gen != nil {
		reply, err := gc.gen.Generate(ctx, BuildNightActionPrompt(agent, state))
		if err != nil {
			gc.log.WithField("player_id", agent.ID).Warnf("[LLM] 夜晚行动生成失败，改用规则: %v", err)
		} else if action, parsed := ParseNightActionReply(reply, agent.ID); parsed && isValidNightAction(agent.Role, action.Type) {
			choices = append(choices, action)
		} else {
			gc.log.WithField("player_id", agent.ID).Debugf("[LLM] 无法解析夜晚行动: %q", reply)
		}
	}
	if ok {
		choices = append(choices, fallback)
	}
	return choices
}

func (gc *GameController) applyNightAction(agent *AIPlayer, choices []models.NightAction) {
	for _, action := range choices {
		if action.Type == models.ActionHeal && action.TargetID == "" {
			action.TargetID = gc.sm.PendingKillTarget()
			if action.TargetID == "" {
				continue
			}
		}
		if err := gc.sm.ExecuteNightAction(action); err != nil {
			gc.log.WithField("player_id", agent.ID).Debugf("[AI行动] %s %s 无效: %v", action.Type, action.TargetID, err)
			continue
		}
		return
	}
}

// processSpeeches 并发生成发言，按座位顺序记录
func (gc *GameController) processSpeeches(state GameState) {
	speakers := gc.livingAgents(state)
	speeches := make([]string, len(speakers))

	g, ctx := errgroup.WithContext(gc.ctx)
	for i, agent := range speakers {
		g.Go(func() error {
			plan := agent.PlanSpeech()
			speeches[i] = gc.generateSpeech(ctx, agent, BuildSpeechPrompt(agent, state, plan), heuristicSpeech(agent, plan, state.Day))
			return nil
		})
	}
	_ = g.Wait()

	for i, agent := range speakers {
		if _, err := gc.sm.RecordSpeech(agent.ID, speeches[i]); err != nil {
			gc.log.WithField("player_id", agent.ID).Warnf("[AI发言] 记录失败: %v", err)
		}
	}
}

// generateSpeech 文本生成失败时使用兜底发言
func (gc *GameController) generateSpeech(ctx context.Context, agent *AIPlayer, prompt, fallback string) string {
	if gc.gen == nil {
		return fallback
	}
	text, err := gc.gen.Generate(ctx, prompt)
	if err != nil {
		gc.log.WithField("player_id", agent.ID).Warnf("[LLM] 发言生成失败，使用兜底发言: %v", err)
		return fallback
	}
	return PostProcessSpeech(text)
}

// heuristicSpeech 规则发言：按天数轮换的固定台词，指控时点名
func heuristicSpeech(agent *AIPlayer, plan SpeechStrategy, day int) string {
	line := FallbackSpeech(agent.Role, day)
	switch {
	case plan.Type == SpeechAccusation && plan.Target != "":
		line += fmt.Sprintf("我怀疑%s，建议大家投票给他。", agent.NameOf(plan.Target))
	case plan.Type == SpeechDefense:
		line += "不是我，大家不要被带节奏。"
	}
	return line
}

// processVotes AI投票
func (gc *GameController) processVotes(state GameState) {
	for _, agent := range gc.livingAgents(state) {
		target, ok := agent.DecideVote(state)
		if !ok {
			continue
		}
		if err := gc.sm.Vote(agent.ID, target); err != nil {
			gc.log.WithField("player_id", agent.ID).Warnf("[投票] AI投票失败: %v", err)
		}
	}
}

// processLastWords 被投出的AI留遗言
func (gc *GameController) processLastWords(state GameState) {
	agent, ok := gc.agents[state.LastEliminated]
	if !ok {
		return
	}
	text := gc.generateSpeech(gc.ctx, agent, BuildLastWordsPrompt(agent, state), FallbackSpeech(agent.Role, state.Day))
	if _, err := gc.sm.RecordSpeech(agent.ID, text); err != nil {
		gc.log.WithField("player_id", agent.ID).Warnf("[遗言] 记录失败: %v", err)
	}
}

// hunterShot 猎人出局回调，在状态机锁内执行
func (gc *GameController) hunterShot(victim models.Player, cause models.DeathCause, state GameState) string {
	agent, ok := gc.agents[victim.ID]
	if !ok {
		return ""
	}
	target := agent.DecideHunterShot(state)
	if target != "" {
		gc.log.WithField("player_id", victim.ID).Infof("[猎人开枪] %s 带走 %s", victim.Name, target)
	}
	return target
}

func (gc *GameController) livingAgents(state GameState) []*AIPlayer {
	out := make([]*AIPlayer, 0, len(gc.seats))
	for _, id := range gc.seats {
		if state.IsAlive(id) {
			out = append(out, gc.agents[id])
		}
	}
	return out
}

// startPhaseTimer 启动阶段计时器，超时后强制推进
func (gc *GameController) startPhaseTimer(state GameState) {
	if gc.noTimers || gc.timer != nil {
		return
	}
	seconds := gc.sm.Config().PhaseDuration(state.Phase)
	if seconds <= 0 {
		seconds = gc.sm.Config().DiscussionTime
	}
	key := phaseKey(state)
	gc.deadline.Store(time.Now().Add(time.Duration(seconds) * time.Second).UnixNano())
	gc.timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		gc.handlePhaseTimeout(key)
	})
}

func (gc *GameController) stopTimer() {
	if gc.timer != nil {
		gc.timer.Stop()
		gc.timer = nil
	}
	gc.deadline.Store(0)
}

// handlePhaseTimeout 处理阶段超时
func (gc *GameController) handlePhaseTimeout(key string) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	gc.timer = nil
	state := gc.sm.Snapshot()
	if phaseKey(state) != key || state.Phase == models.PhaseGameOver {
		return
	}
	gc.log.Infof("[阶段超时] %s 强制结束", state.Phase.DisplayName())
	if err := gc.sm.AdvancePhase(); err != nil {
		gc.log.Errorf("[阶段超时] 推进失败: %v", err)
		return
	}
	gc.drive()
}

// handleGameEnd 游戏结束，公开AI的推理报告
func (gc *GameController) handleGameEnd(state GameState) {
	if gc.handled == phaseKey(state) {
		return
	}
	gc.handled = phaseKey(state)
	gc.stopTimer()

	gc.log.Infof("[游戏结束] 第%d天 %s阵营胜利", state.Day, state.Winner.DisplayName())
	for _, id := range gc.seats {
		agent := gc.agents[id]
		gc.bus.Publish(AnalysisReportedEvent{
			GameID:   gc.id,
			AgentID:  id,
			Day:      state.Day,
			Strategy: agent.Strategy(),
			Entries:  agent.Analysis(),
		})
	}
}

// Status 从某个玩家视角看到的游戏状态
func (gc *GameController) Status(viewerID string) models.GameStatus {
	state := gc.sm.Snapshot()
	viewer, _ := state.FindPlayer(viewerID)
	reveal := func(p models.Player) models.Player {
		visible := state.Phase == models.PhaseGameOver || !p.Alive || p.ID == viewerID ||
			(viewer.Role == models.Werewolf && p.Role == models.Werewolf)
		if !visible {
			p.Role = ""
			p.Faction = models.FactionNone
		}
		p.Personality = nil
		return p
	}

	status := models.GameStatus{
		GameID:      state.ID,
		Phase:       state.Phase,
		Day:         state.Day,
		Players:     make([]models.Player, 0, len(state.Players)),
		DeadPlayers: make([]models.Player, 0, len(state.DeadPlayers)),
		Votes:       state.Votes,
		Actions:     getAvailableActions(&state, viewerID),
		TimeLeft:    state.TimeLeft,
		Winner:      state.Winner,
		Speeches:    state.Speeches,
	}
	for _, p := range state.Players {
		status.Players = append(status.Players, reveal(p))
	}
	for _, p := range state.DeadPlayers {
		status.DeadPlayers = append(status.DeadPlayers, reveal(p))
	}
	if deadline := gc.deadline.Load(); deadline > 0 {
		status.TimeLeft = max(0, int(time.Until(time.Unix(0, deadline)).Seconds()))
	}
	if state.LastNight != nil {
		night := models.NightOutcome{Day: state.LastNight.Day, Deaths: state.LastNight.Deaths}
		for _, c := range state.LastNight.Checks {
			if c.SeerID == viewerID {
				night.Checks = append(night.Checks, c)
			}
		}
		status.LastNight = &night
	}
	// 夜晚女巫需要知道刀口
	if state.Phase == models.PhaseNight && viewer.Role == models.Witch && viewer.Alive && !state.Potions[viewerID].HealUsed {
		status.LastNight = &models.NightOutcome{Day: state.Day, KillTarget: gc.sm.PendingKillTarget()}
	}
	return status
}

// PublicStatus 对外接口的视角，游戏结束前只能以真人座位查看
func (gc *GameController) PublicStatus(viewerID string) models.GameStatus {
	if viewerID != HumanPlayerID && gc.sm.Phase() != models.PhaseGameOver {
		viewerID = HumanPlayerID
	}
	return gc.Status(viewerID)
}

// Analysis 某个AI的推理报告
func (gc *GameController) Analysis(agentID string) ([]AnalysisEntry, error) {
	agent, ok := gc.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, agentID)
	}
	return agent.Analysis(), nil
}

// PublicAnalysis 对外公开的推理报告，游戏结束后才可查看
func (gc *GameController) PublicAnalysis(agentID string) ([]AnalysisEntry, error) {
	entries, err := gc.Analysis(agentID)
	if err != nil {
		return nil, err
	}
	if gc.sm.Phase() != models.PhaseGameOver {
		return nil, fmt.Errorf("%w: 游戏结束后才能查看推理报告", ErrGameInProgress)
	}
	return entries, nil
}

// Summary 一行文字概括当前局面
func (gc *GameController) Summary() string {
	state := gc.sm.Snapshot()
	werewolves, villagers := state.CountFactions()
	return fmt.Sprintf("第%d天 %s 存活%d人(狼人%d 好人%d)",
		state.Day, state.Phase.DisplayName(), len(state.Players), werewolves, villagers)
}
