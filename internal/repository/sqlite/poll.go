package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/acorvin/gamenight/internal/apperror"
	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/repository"
)

var _ repository.PollRepository = (*DB)(nil)

// CreatePoll inserts a poll and all of its options in one transaction. On any
// failure mid-insert the whole operation rolls back, so a poll never
// exists with a partial option set.
func (db *DB) CreatePoll(ctx context.Context, poll *model.Poll, options []*model.PollOption) error {
	poll.ID = xid.New().String()
	poll.CreatedAt = time.Now().UTC()
	poll.IsActive = true

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO polls (id, title, description, created_by, created_at, expires_at, is_active, voting_mode)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			poll.ID,
			poll.Title,
			poll.Description,
			poll.CreatedBy,
			poll.CreatedAt,
			nullableTime(poll.ExpiresAt),
			poll.IsActive,
			string(poll.VotingMode),
		)
		if err != nil {
			return fmt.Errorf("inserting poll: %w", err)
		}

		for _, opt := range options {
			opt.ID = xid.New().String()
			opt.PollID = poll.ID
			_, err := tx.ExecContext(ctx,
				`INSERT INTO options (id, poll_id, text, is_date, date_time)
				 VALUES (?, ?, ?, ?, ?)`,
				opt.ID, opt.PollID, opt.Text, opt.IsDate, nullableTime(opt.DateTime),
			)
			if err != nil {
				return fmt.Errorf("inserting option %q: %w", opt.Text, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: creating poll: %w", err)
	}
	return nil
}

// GetPollByID retrieves a single poll.
func (db *DB) GetPollByID(ctx context.Context, id string) (*model.Poll, error) {
	var (
		poll      model.Poll
		expiresAt sql.NullTime
		mode      string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, description, created_by, created_at, expires_at, is_active, voting_mode
		 FROM polls
		 WHERE id = ?`,
		id,
	).Scan(
		&poll.ID,
		&poll.Title,
		&poll.Description,
		&poll.CreatedBy,
		&poll.CreatedAt,
		&expiresAt,
		&poll.IsActive,
		&mode,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("poll", id)
		}
		return nil, fmt.Errorf("sqlite: getting poll %s: %w", id, err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		poll.ExpiresAt = &t
	}
	poll.VotingMode = model.VotingMode(mode)
	return &poll, nil
}

// ListPolls returns polls newest first; activeOnly restricts to is_active rows.
func (db *DB) ListPolls(ctx context.Context, activeOnly bool) ([]model.Poll, error) {
	query := `SELECT id, title, description, created_by, created_at, expires_at, is_active, voting_mode
	          FROM polls`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing polls: %w", err)
	}
	defer rows.Close()

	var polls []model.Poll
	for rows.Next() {
		var (
			p         model.Poll
			expiresAt sql.NullTime
			mode      string
		)
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.CreatedBy,
			&p.CreatedAt, &expiresAt, &p.IsActive, &mode,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning poll row: %w", err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			p.ExpiresAt = &t
		}
		p.VotingMode = model.VotingMode(mode)
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating polls: %w", err)
	}

	return polls, nil
}

// Options returns a poll's options in insertion order, each carrying its
// derived vote count (zero when nobody voted for it).
func (db *DB) Options(ctx context.Context, pollID string) ([]model.PollOption, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT o.id, o.poll_id, o.text, o.is_date, o.date_time,
		        (SELECT COUNT(*) FROM votes v WHERE v.option_id = o.id) AS vote_count
		 FROM options o
		 WHERE o.poll_id = ?
		 ORDER BY o.id`,
		pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing options for poll %s: %w", pollID, err)
	}
	defer rows.Close()

	var options []model.PollOption
	for rows.Next() {
		opt, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		options = append(options, *opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating options: %w", err)
	}

	return options, nil
}

// GetOption retrieves a single option with its vote count.
func (db *DB) GetOption(ctx context.Context, optionID string) (*model.PollOption, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT o.id, o.poll_id, o.text, o.is_date, o.date_time,
		        (SELECT COUNT(*) FROM votes v WHERE v.option_id = o.id) AS vote_count
		 FROM options o
		 WHERE o.id = ?`,
		optionID,
	)

	opt, err := scanOption(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("option", optionID)
		}
		return nil, fmt.Errorf("sqlite: getting option %s: %w", optionID, err)
	}
	return opt, nil
}

// AddOption appends a new option to an existing poll.
func (db *DB) AddOption(ctx context.Context, option *model.PollOption) error {
	option.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO options (id, poll_id, text, is_date, date_time)
		 VALUES (?, ?, ?, ?, ?)`,
		option.ID, option.PollID, option.Text, option.IsDate, nullableTime(option.DateTime),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding option to poll %s: %w", option.PollID, err)
	}
	return nil
}

// UpdatePoll rewrites a poll's mutable fields in a single statement.
func (db *DB) UpdatePoll(ctx context.Context, poll *model.Poll) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE polls
		 SET title = ?, description = ?, expires_at = ?, is_active = ?
		 WHERE id = ?`,
		poll.Title,
		poll.Description,
		nullableTime(poll.ExpiresAt),
		poll.IsActive,
		poll.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating poll %s: %w", poll.ID, err)
	}
	return requireRow(result, "poll", poll.ID)
}

// DeletePoll removes a poll with explicit ordered deletes (votes, then
// options, then the poll) inside one transaction. The ordering respects
// the foreign keys without relying on DB-level cascade configuration.
func (db *DB) DeletePoll(ctx context.Context, pollID string) error {
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM votes
			 WHERE option_id IN (SELECT id FROM options WHERE poll_id = ?)`,
			pollID,
		); err != nil {
			return fmt.Errorf("deleting votes: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM options WHERE poll_id = ?`, pollID,
		); err != nil {
			return fmt.Errorf("deleting options: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM polls WHERE id = ?`, pollID,
		)
		if err != nil {
			return fmt.Errorf("deleting poll: %w", err)
		}
		return requireRow(result, "poll", pollID)
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("sqlite: deleting poll %s: %w", pollID, err)
	}
	return nil
}

// SweepExpired deactivates every poll whose expiry has passed. One-way:
// nothing is ever flipped back to active here.
func (db *DB) SweepExpired(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE polls
		 SET is_active = 0
		 WHERE expires_at IS NOT NULL AND expires_at < ? AND is_active = 1`,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: sweeping expired polls: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOption(s scanner) (*model.PollOption, error) {
	var (
		opt      model.PollOption
		dateTime sql.NullTime
	)
	if err := s.Scan(&opt.ID, &opt.PollID, &opt.Text, &opt.IsDate, &dateTime, &opt.VoteCount); err != nil {
		return nil, err
	}
	if dateTime.Valid {
		t := dateTime.Time
		opt.DateTime = &t
	}
	return &opt, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
