// Package storage 对局记录的 SQLite 存储
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/qianlnk/mindwolf/models"
	"github.com/qianlnk/mindwolf/storage/migrations"
	_ "modernc.org/sqlite"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// GameRecord 一局游戏的概要
type GameRecord struct {
	ID           string         `json:"id"`
	TotalPlayers int            `json:"total_players"`
	Winner       models.Faction `json:"winner,omitempty"`
	Days         int            `json:"days"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// PlayerRecord 玩家记录
type PlayerRecord struct {
	PlayerID    string            `json:"player_id"`
	Name        string            `json:"name"`
	Role        models.Role       `json:"role"`
	Faction     models.Faction    `json:"faction"`
	IsAgent     bool              `json:"is_agent"`
	Personality string            `json:"personality,omitempty"`
	Alive       bool              `json:"alive"`
	DeathDay    int               `json:"death_day,omitempty"`
	DeathCause  models.DeathCause `json:"death_cause,omitempty"`
}

// SpeechRecord 发言记录
type SpeechRecord struct {
	PlayerID  string       `json:"player_id"`
	Day       int          `json:"day"`
	Phase     models.Phase `json:"phase"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
}

// VoteRecord 投票记录
type VoteRecord struct {
	Day       int       `json:"day"`
	VoterID   string    `json:"voter_id"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NightActionRecord 夜晚行动记录
type NightActionRecord struct {
	Day       int                    `json:"day"`
	ActorID   string                 `json:"actor_id"`
	Action    models.NightActionType `json:"action"`
	TargetID  string                 `json:"target_id,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// GameDetails 一局游戏的完整记录
type GameDetails struct {
	Game         GameRecord              `json:"game"`
	Players      []PlayerRecord          `json:"players"`
	Speeches     []SpeechRecord          `json:"speeches"`
	Votes        []VoteRecord            `json:"votes"`
	NightActions []NightActionRecord     `json:"night_actions"`
	Analyses     []models.AnalysisRecord `json:"analyses"`
}

// Store SQLite 存储
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open 打开数据库并执行迁移
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// CreateGame 记录新游戏和全部玩家
func (s *Store) CreateGame(ctx context.Context, gameID string, players []models.Player) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(gameID) == "" {
		return fmt.Errorf("game id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_records (id, total_players, started_at) VALUES (?, ?, ?)`,
		gameID, len(players), toMillis(s.now()),
	); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	for _, p := range players {
		personality := ""
		if p.Personality != nil {
			personality = p.Personality.Template
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO player_records (game_id, player_id, name, role, faction, is_agent, personality, alive)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			gameID, p.ID, p.Name, string(p.Role), string(p.Faction), p.IsAgent(), personality, p.Alive,
		); err != nil {
			return fmt.Errorf("insert player %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create game: %w", err)
	}
	return nil
}

// FinishGame 记录胜负和最终存活情况
func (s *Store) FinishGame(ctx context.Context, gameID string, winner models.Faction, days int, players []models.Player) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE game_records SET winner = ?, days = ?, finished_at = ? WHERE id = ?`,
		string(winner), days, toMillis(s.now()), gameID,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	for _, p := range players {
		if _, err := tx.ExecContext(ctx,
			`UPDATE player_records SET alive = ? WHERE game_id = ? AND player_id = ?`,
			p.Alive, gameID, p.ID,
		); err != nil {
			return fmt.Errorf("update player %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish game: %w", err)
	}
	return nil
}

// RecordElimination 记录玩家出局
func (s *Store) RecordElimination(ctx context.Context, gameID, playerID string, day int, cause models.DeathCause) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE player_records SET alive = 0, death_day = ?, death_cause = ? WHERE game_id = ? AND player_id = ?`,
		day, string(cause), gameID, playerID,
	)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSpeech 记录发言
func (s *Store) RecordSpeech(ctx context.Context, gameID string, speech models.Speech) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	createdAt := speech.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO speech_records (game_id, player_id, day, phase, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		gameID, speech.PlayerID, speech.Day, string(speech.Phase), speech.Content, toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("insert speech: %w", err)
	}
	return nil
}

// RecordVote 记录投票
func (s *Store) RecordVote(ctx context.Context, gameID string, day int, vote models.Vote) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	createdAt := vote.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO vote_records (game_id, day, voter_id, target_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		gameID, day, vote.VoterID, vote.TargetID, toMillis(createdAt),
	); err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// RecordNightAction 记录夜晚行动
func (s *Store) RecordNightAction(ctx context.Context, gameID string, day int, action models.NightAction) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO night_action_records (game_id, day, actor_id, action, target_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		gameID, day, action.ActorID, string(action.Type), action.TargetID, toMillis(s.now()),
	); err != nil {
		return fmt.Errorf("insert night action: %w", err)
	}
	return nil
}

// RecordAIAnalysis 记录AI的最终推理
func (s *Store) RecordAIAnalysis(ctx context.Context, gameID string, records []models.AnalysisRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record analysis: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ai_analysis_records
			   (game_id, agent_id, target_id, day, strategy, suspicion, trust, faction_probability, likely_role, evidence_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			gameID, r.AgentID, r.TargetID, r.Day, r.Strategy, r.Suspicion, r.Trust,
			r.FactionProbability, string(r.LikelyRole), r.EvidenceCount,
		); err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record analysis: %w", err)
	}
	return nil
}

// GetRecentGames 最近的对局，按开始时间倒序
func (s *Store) GetRecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, total_players, winner, days, started_at, finished_at
		 FROM game_records ORDER BY started_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	games := make([]GameRecord, 0)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return games, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (GameRecord, error) {
	var (
		game       GameRecord
		winner     string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&game.ID, &game.TotalPlayers, &winner, &game.Days, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GameRecord{}, ErrNotFound
		}
		return GameRecord{}, fmt.Errorf("scan game: %w", err)
	}
	game.Winner = models.Faction(winner)
	game.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		game.FinishedAt = &t
	}
	return game, nil
}

// GetGameDetails 读取一局游戏的完整记录
func (s *Store) GetGameDetails(ctx context.Context, gameID string) (GameDetails, error) {
	if err := s.ready(ctx); err != nil {
		return GameDetails{}, err
	}

	game, err := scanGame(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, total_players, winner, days, started_at, finished_at FROM game_records WHERE id = ?`, gameID))
	if err != nil {
		return GameDetails{}, err
	}
	details := GameDetails{Game: game}

	if details.Players, err = s.players(ctx, gameID); err != nil {
		return GameDetails{}, err
	}
	if details.Speeches, err = s.speeches(ctx, gameID); err != nil {
		return GameDetails{}, err
	}
	if details.Votes, err = s.votes(ctx, gameID); err != nil {
		return GameDetails{}, err
	}
	if details.NightActions, err = s.nightActions(ctx, gameID); err != nil {
		return GameDetails{}, err
	}
	if details.Analyses, err = s.analyses(ctx, gameID); err != nil {
		return GameDetails{}, err
	}
	return details, nil
}

func (s *Store) players(ctx context.Context, gameID string) ([]PlayerRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, name, role, faction, is_agent, personality, alive, death_day, death_cause
		 FROM player_records WHERE game_id = ? ORDER BY rowid`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	out := make([]PlayerRecord, 0)
	for rows.Next() {
		var (
			p                   PlayerRecord
			role, faction, dead string
		)
		if err := rows.Scan(&p.PlayerID, &p.Name, &role, &faction, &p.IsAgent, &p.Personality, &p.Alive, &p.DeathDay, &dead); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.Role = models.Role(role)
		p.Faction = models.Faction(faction)
		p.DeathCause = models.DeathCause(dead)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) speeches(ctx context.Context, gameID string) ([]SpeechRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, day, phase, content, created_at FROM speech_records WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query speeches: %w", err)
	}
	defer rows.Close()

	out := make([]SpeechRecord, 0)
	for rows.Next() {
		var (
			r         SpeechRecord
			phase     string
			createdAt int64
		)
		if err := rows.Scan(&r.PlayerID, &r.Day, &phase, &r.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan speech: %w", err)
		}
		r.Phase = models.Phase(phase)
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) votes(ctx context.Context, gameID string) ([]VoteRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT day, voter_id, target_id, created_at FROM vote_records WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query votes: %w", err)
	}
	defer rows.Close()

	out := make([]VoteRecord, 0)
	for rows.Next() {
		var (
			r         VoteRecord
			createdAt int64
		)
		if err := rows.Scan(&r.Day, &r.VoterID, &r.TargetID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) nightActions(ctx context.Context, gameID string) ([]NightActionRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT day, actor_id, action, target_id, created_at FROM night_action_records WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query night actions: %w", err)
	}
	defer rows.Close()

	out := make([]NightActionRecord, 0)
	for rows.Next() {
		var (
			r         NightActionRecord
			action    string
			createdAt int64
		)
		if err := rows.Scan(&r.Day, &r.ActorID, &action, &r.TargetID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan night action: %w", err)
		}
		r.Action = models.NightActionType(action)
		r.CreatedAt = fromMillis(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) analyses(ctx context.Context, gameID string) ([]models.AnalysisRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT agent_id, target_id, day, strategy, suspicion, trust, faction_probability, likely_role, evidence_count
		 FROM ai_analysis_records WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	out := make([]models.AnalysisRecord, 0)
	for rows.Next() {
		var (
			r    models.AnalysisRecord
			role string
		)
		if err := rows.Scan(&r.AgentID, &r.TargetID, &r.Day, &r.Strategy, &r.Suspicion, &r.Trust,
			&r.FactionProbability, &role, &r.EvidenceCount); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		r.LikelyRole = models.Role(role)
		out = append(out, r)
	}
	return out, rows.Err()
}

// childTables 依赖 game_records 的记录表
var childTables = []string{"ai_analysis_records", "night_action_records", "vote_records", "speech_records", "player_records"}

// DeleteGame 删除一局游戏及其全部记录
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE game_id = ?`, gameID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM game_records WHERE id = ?`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete game: %w", err)
	}
	return nil
}
