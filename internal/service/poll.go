// Package service contains the business logic layer: the poll engine,
// account management, and the access policy. Services accept plain Go
// values plus the caller's Identity, return domain errors from the
// apperror package, and know nothing about HTTP.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/acorvin/gamenight/internal/apperror"
	"github.com/acorvin/gamenight/internal/metrics"
	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/repository"
)

const (
	// MaxTitleLength bounds poll titles.
	MaxTitleLength = 200
	// MinPollOptions is the minimum number of options a poll needs.
	// Enforced for every poll regardless of how the caller supplied the
	// options.
	MinPollOptions = 2
)

// dateOptionMinLen is the shortest option text that can be a calendar
// choice ("2006-01-02T15:04" is 16 characters).
const dateOptionMinLen = 16

// PollService is the poll lifecycle and voting engine.
type PollService struct {
	polls   repository.PollRepository
	votes   repository.VoteLedger
	metrics metrics.Sink
	logger  *slog.Logger
}

// NewPollService creates a PollService. Pass metrics.Noop{} when no
// registry is wired.
func NewPollService(
	polls repository.PollRepository,
	votes repository.VoteLedger,
	sink metrics.Sink,
	logger *slog.Logger,
) *PollService {
	return &PollService{
		polls:   polls,
		votes:   votes,
		metrics: sink,
		logger:  logger,
	}
}

// CreatePollInput is the structured poll-creation request. Options arrive
// as a list, never as an unparsed comma-separated blob; the engine is the
// single place the minimum-count rule is enforced.
type CreatePollInput struct {
	Title       string
	Description string
	ExpiresAt   *time.Time
	VotingMode  model.VotingMode // defaults to single-choice when empty
	Options     []string
}

// Create validates the input, parses date options, and persists the poll
// with all its options in one transaction.
func (s *PollService) Create(ctx context.Context, identity model.Identity, in CreatePollInput) (*model.PollResponse, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "poll title cannot be empty")
	}
	if len(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("poll title must be %d characters or less", MaxTitleLength))
	}

	mode := in.VotingMode
	if mode == "" {
		mode = model.VotingSingle
	}
	if !mode.Valid() {
		return nil, apperror.ValidationFailed("votingMode",
			fmt.Sprintf("unknown voting mode %q", in.VotingMode))
	}

	// Expiries are stored in UTC so timestamp comparisons in the store
	// are consistent regardless of the client's offset.
	var expiresAt *time.Time
	if in.ExpiresAt != nil {
		if in.ExpiresAt.Before(time.Now()) {
			return nil, apperror.ValidationFailed("expiresAt", "expiry must be in the future")
		}
		utc := in.ExpiresAt.UTC()
		expiresAt = &utc
	}

	// Drop empty specs, then enforce the minimum on what remains.
	var options []*model.PollOption
	for _, text := range in.Options {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		options = append(options, buildOption(text))
	}
	if len(options) < MinPollOptions {
		return nil, apperror.ValidationFailed("options",
			fmt.Sprintf("poll must have at least %d options", MinPollOptions))
	}

	poll := &model.Poll{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   identity.ID,
		ExpiresAt:   expiresAt,
		VotingMode:  mode,
	}

	if err := s.polls.CreatePoll(ctx, poll, options); err != nil {
		s.logger.Error("failed to create poll",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating poll: %w", err)
	}

	s.metrics.Inc(metrics.PollsCreated)
	s.logger.Info("poll created",
		slog.String("id", poll.ID),
		slog.String("createdBy", identity.ID),
		slog.String("votingMode", string(mode)),
	)

	persisted := make([]model.PollOption, len(options))
	for i, opt := range options {
		persisted[i] = *opt
	}

	// New poll: the creator has no votes yet.
	return &model.PollResponse{Poll: *poll, Options: persisted, UserVotes: []string{}}, nil
}

// buildOption detects calendar options with a heuristic: the text looks
// like a timestamp ("T" separator, at least 16 characters) and actually
// parses. A near-miss stays a plain text option; option intake never
// rejects a request over an unparseable date.
func buildOption(text string) *model.PollOption {
	opt := &model.PollOption{Text: text}

	if !strings.Contains(text, "T") || len(text) < dateOptionMinLen {
		return opt
	}

	if ts, ok := parseTimestamp(text); ok {
		opt.IsDate = true
		opt.DateTime = &ts
	}
	return opt
}

// parseTimestamp accepts RFC 3339 or the HTML datetime-local form
// ("2006-01-02T15:04", seconds optional), the latter read as UTC.
func parseTimestamp(text string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// Get returns a poll with its options and the viewer's current votes.
// A lazy expiry sweep runs first so the returned active flag is current.
func (s *PollService) Get(ctx context.Context, identity model.Identity, pollID string) (*model.PollResponse, error) {
	if err := s.polls.SweepExpired(ctx); err != nil {
		return nil, fmt.Errorf("sweeping expired polls: %w", err)
	}

	poll, err := s.polls.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	options, err := s.polls.Options(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("loading options for poll %s: %w", pollID, err)
	}

	return &model.PollResponse{
		Poll:      *poll,
		Options:   options,
		UserVotes: s.userVotes(ctx, pollID, identity.ID),
	}, nil
}

// List returns polls newest first, after the expiry sweep. With
// activeOnly, expired and deactivated polls are excluded.
func (s *PollService) List(ctx context.Context, activeOnly bool) ([]model.Poll, error) {
	if err := s.polls.SweepExpired(ctx); err != nil {
		return nil, fmt.Errorf("sweeping expired polls: %w", err)
	}

	polls, err := s.polls.ListPolls(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing polls: %w", err)
	}
	return polls, nil
}

// CastVote records a vote according to the poll's voting mode.
//
// Single-choice: any prior vote by the caller in the poll is replaced,
// atomically; at most one vote per (poll, user) ever exists. Always
// returns VoteRecorded.
//
// Multi-choice: a vote on the same option toggles off (VoteRemoved);
// otherwise a vote is added (VoteRecorded). Votes on other options are
// untouched.
func (s *PollService) CastVote(ctx context.Context, identity model.Identity, pollID, optionID string) (model.VoteOutcome, error) {
	poll, err := s.polls.GetPollByID(ctx, pollID)
	if err != nil {
		return "", err
	}

	// The explicit flag and the expiry are independent checks: a poll
	// whose flag is still set but whose expiry has passed is closed.
	now := time.Now()
	if !poll.IsActive || poll.Expired(now) {
		return "", apperror.PollClosed(pollID)
	}

	option, err := s.polls.GetOption(ctx, optionID)
	if err != nil {
		return "", err
	}
	if option.PollID != pollID {
		return "", apperror.NotFound("option", optionID)
	}

	var outcome model.VoteOutcome
	switch poll.VotingMode {
	case model.VotingMulti:
		outcome, err = s.votes.Toggle(ctx, pollID, optionID, identity.ID)
	default:
		err = s.votes.Replace(ctx, pollID, optionID, identity.ID)
		outcome = model.VoteRecorded
	}
	if err != nil {
		s.logger.Error("failed to cast vote",
			slog.String("pollId", pollID),
			slog.String("optionId", optionID),
			slog.String("userId", identity.ID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("casting vote: %w", err)
	}

	s.metrics.Inc(metrics.VotesCast)
	s.logger.Info("vote cast",
		slog.String("pollId", pollID),
		slog.String("optionId", optionID),
		slog.String("userId", identity.ID),
		slog.String("outcome", string(outcome)),
	)

	return outcome, nil
}

// Results aggregates vote counts and percentages for a poll. It works on
// closed polls too: historical results stay readable after expiry.
func (s *PollService) Results(ctx context.Context, identity model.Identity, pollID string) (*model.PollResult, error) {
	poll, err := s.polls.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	options, err := s.polls.Options(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("loading options for poll %s: %w", pollID, err)
	}

	counts, err := s.votes.CountsByOption(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("counting votes for poll %s: %w", pollID, err)
	}

	var total int64
	for _, count := range counts {
		total += count
	}

	results := make([]model.OptionResult, len(options))
	for i, opt := range options {
		opt.VoteCount = counts[opt.ID] // zero-fill for unvoted options
		var percentage float64
		if total > 0 {
			percentage = float64(opt.VoteCount) / float64(total) * 100.0
		}
		results[i] = model.OptionResult{PollOption: opt, Percentage: percentage}
	}

	return &model.PollResult{
		Poll:       *poll,
		Options:    results,
		TotalVotes: total,
		UserVotes:  s.userVotes(ctx, pollID, identity.ID),
	}, nil
}

// UpdatePollInput is a field-level patch; nil fields are left unchanged.
type UpdatePollInput struct {
	Title       *string
	Description *string
	ExpiresAt   *time.Time
	IsActive    *bool
}

// Update applies a patch to a poll. Only the creator or an admin may
// update; everyone else gets ErrForbidden.
func (s *PollService) Update(ctx context.Context, identity model.Identity, pollID string, in UpdatePollInput) (*model.Poll, error) {
	poll, err := s.polls.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if !canMutate(identity, poll) {
		return nil, apperror.Forbidden("you don't have permission to update this poll")
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperror.ValidationFailed("title", "poll title cannot be empty")
		}
		if len(title) > MaxTitleLength {
			return nil, apperror.ValidationFailed("title",
				fmt.Sprintf("poll title must be %d characters or less", MaxTitleLength))
		}
		poll.Title = title
	}
	if in.Description != nil {
		poll.Description = strings.TrimSpace(*in.Description)
	}
	if in.ExpiresAt != nil {
		utc := in.ExpiresAt.UTC()
		poll.ExpiresAt = &utc
	}
	if in.IsActive != nil {
		poll.IsActive = *in.IsActive
	}

	if err := s.polls.UpdatePoll(ctx, poll); err != nil {
		s.logger.Error("failed to update poll",
			slog.String("id", pollID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating poll: %w", err)
	}

	s.logger.Info("poll updated",
		slog.String("id", pollID),
		slog.String("by", identity.ID),
	)
	return poll, nil
}

// Delete removes a poll with all its options and votes. Same permission
// rule as Update. The repository performs the ordered cascade in one
// transaction; a forbidden request leaves everything untouched.
func (s *PollService) Delete(ctx context.Context, identity model.Identity, pollID string) error {
	poll, err := s.polls.GetPollByID(ctx, pollID)
	if err != nil {
		return err
	}

	if !canMutate(identity, poll) {
		return apperror.Forbidden("you don't have permission to delete this poll")
	}

	if err := s.polls.DeletePoll(ctx, pollID); err != nil {
		s.logger.Error("failed to delete poll",
			slog.String("id", pollID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("deleting poll: %w", err)
	}

	s.logger.Info("poll deleted",
		slog.String("id", pollID),
		slog.String("by", identity.ID),
	)
	return nil
}

// AddOption appends an option to an open poll. Restricted to the creator
// and admins; the same date heuristic as Create applies.
func (s *PollService) AddOption(ctx context.Context, identity model.Identity, pollID, text string) (*model.PollOption, error) {
	poll, err := s.polls.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if !canMutate(identity, poll) {
		return nil, apperror.Forbidden("you don't have permission to add options to this poll")
	}
	if !poll.Open(time.Now()) {
		return nil, apperror.PollClosed(pollID)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "option text cannot be empty")
	}

	option := buildOption(text)
	option.PollID = pollID
	if err := s.polls.AddOption(ctx, option); err != nil {
		return nil, fmt.Errorf("adding option: %w", err)
	}

	s.logger.Info("option added",
		slog.String("pollId", pollID),
		slog.String("optionId", option.ID),
	)
	return option, nil
}

// Voters returns the per-option voter breakdown. Voter lists are private:
// only the creator and admins may see them.
func (s *PollService) Voters(ctx context.Context, identity model.Identity, pollID string) (*model.VotingDetails, error) {
	poll, err := s.polls.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if !canViewVoters(identity, poll) {
		return nil, apperror.Forbidden("you don't have permission to view this poll's voters")
	}

	options, err := s.polls.Options(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("loading options for poll %s: %w", pollID, err)
	}

	details := &model.VotingDetails{Poll: *poll}
	uniqueVoters := make(map[string]struct{})

	for _, opt := range options {
		votes, err := s.votes.VotesForOption(ctx, opt.ID)
		if err != nil {
			return nil, fmt.Errorf("loading voters for option %s: %w", opt.ID, err)
		}

		opt.VoteCount = int64(len(votes))
		details.TotalVotes += opt.VoteCount
		for _, v := range votes {
			uniqueVoters[v.UserID] = struct{}{}
		}

		details.Options = append(details.Options, model.OptionVoters{
			PollOption: opt,
			Voters:     votes,
		})
	}

	details.TotalVoters = int64(len(uniqueVoters))
	return details, nil
}

// userVotes is the best-effort "viewer's own votes" lookup: on error it
// degrades to no votes rather than failing the whole read.
func (s *PollService) userVotes(ctx context.Context, pollID, userID string) []string {
	votes, err := s.votes.UserVotes(ctx, pollID, userID)
	if err != nil {
		s.logger.Warn("failed to load user votes",
			slog.String("pollId", pollID),
			slog.String("userId", userID),
			slog.String("error", err.Error()),
		)
		return []string{}
	}
	if votes == nil {
		votes = []string{}
	}
	return votes
}
