package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/acorvin/gamenight/internal/apperror"
	"github.com/acorvin/gamenight/internal/model"
	"github.com/acorvin/gamenight/internal/repository"
)

// mockStore is an in-memory stand-in for the sqlite layer, implementing
// all the repository interfaces the services depend on. Error fields let
// tests force failures the real database would rarely produce.
type mockStore struct {
	users   map[string]*model.User
	polls   map[string]*model.Poll
	options map[string]*model.PollOption
	votes   map[string]*model.Vote
	nextID  int

	sweepErr error
	voteErr  error
}

var (
	_ repository.UserRepository = (*mockStore)(nil)
	_ repository.PollRepository = (*mockStore)(nil)
	_ repository.VoteLedger     = (*mockStore)(nil)
	_ repository.StatsSource    = (*mockStore)(nil)
)

func newMockStore() *mockStore {
	return &mockStore{
		users:   make(map[string]*model.User),
		polls:   make(map[string]*model.Poll),
		options: make(map[string]*model.PollOption),
		votes:   make(map[string]*model.Vote),
	}
}

func (m *mockStore) id() string {
	m.nextID++
	return fmt.Sprintf("mock-%d", m.nextID)
}

// --- UserRepository ---

func (m *mockStore) CreateUser(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.Username == user.Username {
			return apperror.Conflict(fmt.Sprintf("username %q is already taken", user.Username))
		}
	}
	user.ID = m.id()
	user.CreatedAt = time.Now().UTC()
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *mockStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *user
	return &result, nil
}

func (m *mockStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (m *mockStore) ListUsers(_ context.Context) ([]model.User, error) {
	result := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (m *mockStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *mockStore) SetAdmin(_ context.Context, id string, isAdmin bool) error {
	user, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	user.IsAdmin = isAdmin
	return nil
}

func (m *mockStore) CountUsers(_ context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

// --- PollRepository ---

func (m *mockStore) CreatePoll(_ context.Context, poll *model.Poll, options []*model.PollOption) error {
	poll.ID = m.id()
	poll.CreatedAt = time.Now().UTC()
	poll.IsActive = true
	stored := *poll
	m.polls[poll.ID] = &stored
	for _, opt := range options {
		opt.ID = m.id()
		opt.PollID = poll.ID
		storedOpt := *opt
		m.options[opt.ID] = &storedOpt
	}
	return nil
}

func (m *mockStore) GetPollByID(_ context.Context, id string) (*model.Poll, error) {
	poll, ok := m.polls[id]
	if !ok {
		return nil, apperror.NotFound("poll", id)
	}
	result := *poll
	return &result, nil
}

func (m *mockStore) ListPolls(_ context.Context, activeOnly bool) ([]model.Poll, error) {
	result := make([]model.Poll, 0, len(m.polls))
	for _, p := range m.polls {
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *mockStore) Options(_ context.Context, pollID string) ([]model.PollOption, error) {
	var result []model.PollOption
	for _, opt := range m.options {
		if opt.PollID == pollID {
			result = append(result, *opt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockStore) GetOption(_ context.Context, optionID string) (*model.PollOption, error) {
	opt, ok := m.options[optionID]
	if !ok {
		return nil, apperror.NotFound("option", optionID)
	}
	result := *opt
	return &result, nil
}

func (m *mockStore) AddOption(_ context.Context, option *model.PollOption) error {
	option.ID = m.id()
	stored := *option
	m.options[option.ID] = &stored
	return nil
}

func (m *mockStore) UpdatePoll(_ context.Context, poll *model.Poll) error {
	if _, ok := m.polls[poll.ID]; !ok {
		return apperror.NotFound("poll", poll.ID)
	}
	stored := *poll
	m.polls[poll.ID] = &stored
	return nil
}

func (m *mockStore) DeletePoll(_ context.Context, pollID string) error {
	if _, ok := m.polls[pollID]; !ok {
		return apperror.NotFound("poll", pollID)
	}
	for id, opt := range m.options {
		if opt.PollID == pollID {
			delete(m.options, id)
		}
	}
	for id, v := range m.votes {
		if v.PollID == pollID {
			delete(m.votes, id)
		}
	}
	delete(m.polls, pollID)
	return nil
}

func (m *mockStore) SweepExpired(_ context.Context) error {
	if m.sweepErr != nil {
		return m.sweepErr
	}
	now := time.Now()
	for _, p := range m.polls {
		if p.ExpiresAt != nil && p.ExpiresAt.Before(now) {
			p.IsActive = false
		}
	}
	return nil
}

// --- VoteLedger ---

func (m *mockStore) Replace(_ context.Context, pollID, optionID, userID string) error {
	if m.voteErr != nil {
		return m.voteErr
	}
	for id, v := range m.votes {
		if v.PollID == pollID && v.UserID == userID {
			delete(m.votes, id)
		}
	}
	id := m.id()
	m.votes[id] = &model.Vote{
		ID: id, PollID: pollID, OptionID: optionID, UserID: userID,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *mockStore) Toggle(_ context.Context, pollID, optionID, userID string) (model.VoteOutcome, error) {
	if m.voteErr != nil {
		return "", m.voteErr
	}
	for id, v := range m.votes {
		if v.OptionID == optionID && v.UserID == userID {
			delete(m.votes, id)
			return model.VoteRemoved, nil
		}
	}
	id := m.id()
	m.votes[id] = &model.Vote{
		ID: id, PollID: pollID, OptionID: optionID, UserID: userID,
		CreatedAt: time.Now().UTC(),
	}
	return model.VoteRecorded, nil
}

func (m *mockStore) UserVotes(_ context.Context, pollID, userID string) ([]string, error) {
	var result []string
	for _, v := range m.votes {
		if v.PollID == pollID && v.UserID == userID {
			result = append(result, v.OptionID)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *mockStore) CountsByOption(_ context.Context, pollID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, v := range m.votes {
		if v.PollID == pollID {
			counts[v.OptionID]++
		}
	}
	return counts, nil
}

func (m *mockStore) VotesForOption(_ context.Context, optionID string) ([]model.VoteWithUser, error) {
	var result []model.VoteWithUser
	for _, v := range m.votes {
		if v.OptionID == optionID {
			username := ""
			if u, ok := m.users[v.UserID]; ok {
				username = u.Username
			}
			result = append(result, model.VoteWithUser{
				VoteID:    v.ID,
				UserID:    v.UserID,
				Username:  username,
				OptionID:  v.OptionID,
				CreatedAt: v.CreatedAt,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VoteID < result[j].VoteID })
	return result, nil
}

// --- StatsSource ---

func (m *mockStore) Stats(_ context.Context) (model.Stats, error) {
	stats := model.Stats{
		TotalUsers: int64(len(m.users)),
		TotalPolls: int64(len(m.polls)),
		TotalVotes: int64(len(m.votes)),
	}
	for _, p := range m.polls {
		if p.IsActive {
			stats.ActivePolls++
		}
	}
	return stats, nil
}

// countingSink records metric increments for assertions.
type countingSink struct {
	counts map[string]int
	gauges map[string]float64
}

func newCountingSink() *countingSink {
	return &countingSink{counts: make(map[string]int), gauges: make(map[string]float64)}
}

func (s *countingSink) Inc(name string) { s.counts[name]++ }

func (s *countingSink) Set(name string, value float64) { s.gauges[name] = value }
