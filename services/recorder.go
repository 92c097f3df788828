package services

import (
	"context"
	"time"

	"github.com/qianlnk/mindwolf/models"
	"github.com/sirupsen/logrus"
)

// GameRecorder 对局记录存储，只写不读
type GameRecorder interface {
	CreateGame(ctx context.Context, gameID string, players []models.Player) error
	FinishGame(ctx context.Context, gameID string, winner models.Faction, days int, players []models.Player) error
	RecordElimination(ctx context.Context, gameID, playerID string, day int, cause models.DeathCause) error
	RecordSpeech(ctx context.Context, gameID string, speech models.Speech) error
	RecordVote(ctx context.Context, gameID string, day int, vote models.Vote) error
	RecordNightAction(ctx context.Context, gameID string, day int, action models.NightAction) error
	RecordAIAnalysis(ctx context.Context, gameID string, records []models.AnalysisRecord) error
}

// 单次写入的超时时间
const recordTimeout = 5 * time.Second

// Recorder 把游戏事件写入存储，写入失败只记录日志
type Recorder struct {
	gameID string
	store  GameRecorder
	log    logrus.FieldLogger
}

// NewRecorder 创建记录器
func NewRecorder(gameID string, store GameRecorder, log logrus.FieldLogger) *Recorder {
	return &Recorder{gameID: gameID, store: store, log: log.WithField("game_id", gameID)}
}

// HandleEvent 实现 Listener
func (r *Recorder) HandleEvent(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	var err error
	switch ev := e.(type) {
	case GameStartedEvent:
		err = r.store.CreateGame(ctx, r.gameID, ev.Players)
	case SpeechEvent:
		err = r.store.RecordSpeech(ctx, r.gameID, ev.Speech)
	case VoteCastEvent:
		err = r.store.RecordVote(ctx, r.gameID, ev.Day, ev.Vote)
	case NightActionEvent:
		err = r.store.RecordNightAction(ctx, r.gameID, ev.Day, ev.Action)
	case PlayerEliminatedEvent:
		err = r.store.RecordElimination(ctx, r.gameID, ev.Player.ID, ev.Day, ev.Cause)
	case GameOverEvent:
		err = r.store.FinishGame(ctx, r.gameID, ev.Winner, ev.Day, ev.Players)
	case AnalysisReportedEvent:
		err = r.store.RecordAIAnalysis(ctx, r.gameID, analysisRecords(ev))
	default:
		return
	}
	if err != nil {
		r.log.Warnf("[记录] 写入 %s 失败: %v", e.EventType(), err)
	}
}

func analysisRecords(ev AnalysisReportedEvent) []models.AnalysisRecord {
	records := make([]models.AnalysisRecord, 0, len(ev.Entries))
	for _, entry := range ev.Entries {
		records = append(records, models.AnalysisRecord{
			AgentID:            ev.AgentID,
			TargetID:           entry.PlayerID,
			Day:                ev.Day,
			Strategy:           string(ev.Strategy.Type),
			Suspicion:          entry.Suspicion,
			Trust:              entry.Trust,
			FactionProbability: entry.FactionProbability,
			LikelyRole:         entry.LikelyRole,
			EvidenceCount:      entry.EvidenceCount,
		})
	}
	return records
}
