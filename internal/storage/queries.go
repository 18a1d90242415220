package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shooter-arena/internal/game"
)

// EnsureMatchExists creates the match row if it is not already there.
func (db *DB) EnsureMatchExists(ctx context.Context, matchID, gameType string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO matches(id, game_type) VALUES (?, ?)`,
		matchID, gameType)
	return err
}

// RecordAgentJoin registers a participant. Rejoining under the same agent
// name replaces the previous row's identity and cosmetics.
func (db *DB) RecordAgentJoin(ctx context.Context, matchID string, row game.AgentJoinRow) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO match_players(match_id, player_id, agent_name, color, skin_id, strategy_tag)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id, agent_name) DO UPDATE SET
			player_id    = excluded.player_id,
			color        = excluded.color,
			skin_id      = excluded.skin_id,
			strategy_tag = excluded.strategy_tag`,
		matchID, row.PlayerID, row.AgentName, row.Color, row.SkinID, row.StrategyTag)
	return err
}

// RecordMatchEnd stores the outcome and the final per-player stats in one
// transaction. An empty winner name records a draw as NULL.
func (db *DB) RecordMatchEnd(ctx context.Context, matchID, winnerName string, endedAt time.Time, rows []game.PlayerResultRow) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	winner := sql.NullString{String: winnerName, Valid: winnerName != ""}
	if _, err := tx.ExecContext(ctx,
		`UPDATE matches SET winner_name = ?, ended_at = ? WHERE id = ?`,
		winner, endedAt.UTC().Format(time.RFC3339Nano), matchID); err != nil {
		return fmt.Errorf("update match %s: %w", matchID, err)
	}

	// The stats upsert leaves join-time cosmetics in place.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_players(match_id, player_id, agent_name, score, kills, deaths)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id, agent_name) DO UPDATE SET
			player_id = excluded.player_id,
			score     = excluded.score,
			kills     = excluded.kills,
			deaths    = excluded.deaths`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, matchID, r.PlayerID, r.AgentName, r.Score, r.Kills, r.Deaths); err != nil {
			return fmt.Errorf("record result for %s: %w", r.AgentName, err)
		}
	}
	return tx.Commit()
}

// HighestMatchNumber scans stored match ids for the largest sequence
// number. Both id formats count, unparseable ids are skipped.
func (db *DB) HighestMatchNumber(ctx context.Context) (int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM matches`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	highest := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		if n, ok := game.ParseMatchNumber(id); ok && n > highest {
			highest = n
		}
	}
	return highest, rows.Err()
}

// MatchRecord is one stored match with its participants.
type MatchRecord struct {
	ID         string
	GameType   string
	WinnerName string
	EndedAt    string
	Players    []PlayerRecord
}

// PlayerRecord is one stored participant row.
type PlayerRecord struct {
	PlayerID    string
	AgentName   string
	Color       string
	SkinID      string
	StrategyTag string
	Score       int
	Kills       int
	Deaths      int
}

// LoadMatch reads a match and its players back, nil when the id is
// unknown.
func (db *DB) LoadMatch(ctx context.Context, matchID string) (*MatchRecord, error) {
	var rec MatchRecord
	var winner, ended sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, game_type, winner_name, ended_at FROM matches WHERE id = ?`, matchID).
		Scan(&rec.ID, &rec.GameType, &winner, &ended)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.WinnerName = winner.String
	rec.EndedAt = ended.String

	rows, err := db.conn.QueryContext(ctx, `
		SELECT player_id, agent_name, color, skin_id, strategy_tag, score, kills, deaths
		FROM match_players WHERE match_id = ?
		ORDER BY score DESC, kills DESC, agent_name`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p PlayerRecord
		if err := rows.Scan(&p.PlayerID, &p.AgentName, &p.Color, &p.SkinID,
			&p.StrategyTag, &p.Score, &p.Kills, &p.Deaths); err != nil {
			return nil, err
		}
		rec.Players = append(rec.Players, p)
	}
	return &rec, rows.Err()
}
