package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/repository"
)

var _ repository.VoteLedger = (*DB)(nil)

// Replace casts a single-choice vote: any existing vote by the user
// anywhere in the poll is deleted, then one new row inserted, in one
// transaction. At most one vote per (poll, user) exists afterwards, even
// under concurrent casts.
func (db *DB) Replace(ctx context.Context, pollID, optionID, userID string) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM votes WHERE poll_id = ? AND user_id = ?`,
			pollID, userID,
		); err != nil {
			return fmt.Errorf("deleting prior vote: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO votes (id, poll_id, option_id, user_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			xid.New().String(), pollID, optionID, userID, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting vote: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: replacing vote: %w", err)
	}
	return nil
}

// Toggle casts a multi-choice vote: if the user already holds a vote on
// this option it is removed, otherwise one is inserted. The read and the
// conditional write share a transaction so two concurrent casts by the
// same user cannot interleave into duplicate rows. Votes on the poll's
// other options are untouched.
func (db *DB) Toggle(ctx context.Context, pollID, optionID, userID string) (model.VoteOutcome, error) {
	var outcome model.VoteOutcome

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var existingID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM votes WHERE user_id = ? AND option_id = ?`,
			userID, optionID,
		).Scan(&existingID)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM votes WHERE id = ?`, existingID,
			); err != nil {
				return fmt.Errorf("removing vote: %w", err)
			}
			outcome = model.VoteRemoved
			return nil

		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO votes (id, poll_id, option_id, user_id, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				xid.New().String(), pollID, optionID, userID, time.Now().UTC(),
			); err != nil {
				return fmt.Errorf("inserting vote: %w", err)
			}
			outcome = model.VoteRecorded
			return nil

		default:
			return fmt.Errorf("checking existing vote: %w", err)
		}
	})
	if err != nil {
		return "", fmt.Errorf("sqlite: toggling vote: %w", err)
	}
	return outcome, nil
}

// UserVotes returns the option IDs the user currently holds votes on
// within the poll. A single-choice poll yields at most one element.
func (db *DB) UserVotes(ctx context.Context, pollID, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT option_id FROM votes WHERE poll_id = ? AND user_id = ? ORDER BY option_id`,
		pollID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user votes: %w", err)
	}
	defer rows.Close()

	var optionIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		optionIDs = append(optionIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating votes: %w", err)
	}

	return optionIDs, nil
}

// CountsByOption returns vote tallies grouped by option. Options without
// votes are simply absent; callers zero-fill.
func (db *DB) CountsByOption(ctx context.Context, pollID string) (map[string]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT option_id, COUNT(*)
		 FROM votes
		 WHERE poll_id = ?
		 GROUP BY option_id`,
		pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: counting votes for poll %s: %w", pollID, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			optionID string
			count    int64
		)
		if err := rows.Scan(&optionID, &count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning count row: %w", err)
		}
		counts[optionID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating counts: %w", err)
	}

	return counts, nil
}

// VotesForOption returns the votes on one option annotated with voter
// usernames, oldest vote first.
func (db *DB) VotesForOption(ctx context.Context, optionID string) ([]model.VoteWithUser, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT v.id, v.user_id, u.username, v.option_id, v.created_at
		 FROM votes v
		 JOIN users u ON v.user_id = u.id
		 WHERE v.option_id = ?
		 ORDER BY v.created_at ASC`,
		optionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting voters for option %s: %w", optionID, err)
	}
	defer rows.Close()

	var votes []model.VoteWithUser
	for rows.Next() {
		var v model.VoteWithUser
		if err := rows.Scan(&v.VoteID, &v.UserID, &v.Username, &v.OptionID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning voter row: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating voters: %w", err)
	}

	return votes, nil
}

// Stats reports store-wide counts for the metrics gauges.
func (db *DB) Stats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats

	queries := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM polls WHERE is_active = 1`, &stats.ActivePolls},
		{`SELECT COUNT(*) FROM polls`, &stats.TotalPolls},
		{`SELECT COUNT(*) FROM votes`, &stats.TotalVotes},
		{`SELECT COUNT(*) FROM users`, &stats.TotalUsers},
	}
	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return model.Stats{}, fmt.Errorf("sqlite: collecting stats: %w", err)
		}
	}

	return stats, nil
}
