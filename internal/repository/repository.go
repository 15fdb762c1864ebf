// Package repository declares the persistence interfaces the service layer
// depends on. The sqlite subpackage provides the real implementation;
// tests substitute in-memory mocks.
package repository

import (
	"context"

	"github.com/acorvin/gamenight/internal/model"
)

// UserRepository persists accounts and credentials.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	CountUsers(ctx context.Context) (int64, error)
}

// PollRepository persists polls and their options.
type PollRepository interface {
	// Create inserts the poll and all its options in one transaction;
	// on any failure nothing is persisted.
	CreatePoll(ctx context.Context, poll *model.Poll, options []*model.PollOption) error
	GetPollByID(ctx context.Context, id string) (*model.Poll, error)
	ListPolls(ctx context.Context, activeOnly bool) ([]model.Poll, error)
	// Options returns a poll's options with their derived vote counts,
	// zero for options nobody voted for.
	Options(ctx context.Context, pollID string) ([]model.PollOption, error)
	GetOption(ctx context.Context, optionID string) (*model.PollOption, error)
	AddOption(ctx context.Context, option *model.PollOption) error
	UpdatePoll(ctx context.Context, poll *model.Poll) error
	// Delete removes the poll's votes, then its options, then the poll,
	// in that order, inside one transaction.
	DeletePoll(ctx context.Context, pollID string) error
	// SweepExpired flips is_active off for every poll whose expiry has
	// passed. Called lazily before list/detail reads; never reactivates.
	SweepExpired(ctx context.Context) error
}

// VoteLedger persists individual votes and enforces the per-mode
// uniqueness invariants inside a single transaction per cast.
type VoteLedger interface {
	// Replace implements single-choice casting: any prior vote by the
	// user anywhere in the poll is deleted and one new vote inserted,
	// atomically.
	Replace(ctx context.Context, pollID, optionID, userID string) error
	// Toggle implements multi-choice casting: an existing vote on the
	// option is removed, otherwise one is inserted, atomically.
	Toggle(ctx context.Context, pollID, optionID, userID string) (model.VoteOutcome, error)
	// UserVotes returns the option IDs the user currently holds votes on
	// within the poll.
	UserVotes(ctx context.Context, pollID, userID string) ([]string, error)
	// CountsByOption returns vote tallies grouped by option; options with
	// no votes are absent from the map.
	CountsByOption(ctx context.Context, pollID string) (map[string]int64, error)
	// VotesForOption returns the votes on one option with voter
	// usernames, oldest first.
	VotesForOption(ctx context.Context, optionID string) ([]model.VoteWithUser, error)
}

// StatsSource reports store-wide counts for metrics gauges.
type StatsSource interface {
	Stats(ctx context.Context) (model.Stats, error)
}
