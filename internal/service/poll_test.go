package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/acorvin/gamenight/internal/apperror"
	"github.com/acorvin/gamenight/internal/metrics"
	"github.com/acorvin/gamenight/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPollService(store *mockStore) *PollService {
	return NewPollService(store, store, metrics.Noop{}, testLogger())
}

func seedUser(t *testing.T, store *mockStore, username string, isAdmin bool) model.Identity {
	t.Helper()
	user := &model.User{Username: username, PasswordHash: "x", IsAdmin: isAdmin}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user.Identity()
}

func seedPoll(t *testing.T, svc *PollService, creator model.Identity, mode model.VotingMode, options ...string) *model.PollResponse {
	t.Helper()
	poll, err := svc.Create(context.Background(), creator, CreatePollInput{
		Title:      "Board Game Night",
		VotingMode: mode,
		Options:    options,
	})
	if err != nil {
		t.Fatalf("failed to seed poll: %v", err)
	}
	return poll
}

func TestPollCreate(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)

	resp, err := svc.Create(context.Background(), alice, CreatePollInput{
		Title:       "  Board Game Night  ",
		Description: "pick one",
		Options:     []string{"Catan", "Wingspan", ""},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if resp.Poll.Title != "Board Game Night" {
		t.Errorf("Title = %q, want trimmed title", resp.Poll.Title)
	}
	if resp.Poll.VotingMode != model.VotingSingle {
		t.Errorf("VotingMode = %q, want default %q", resp.Poll.VotingMode, model.VotingSingle)
	}
	if resp.Poll.CreatedBy != alice.ID {
		t.Errorf("CreatedBy = %q, want %q", resp.Poll.CreatedBy, alice.ID)
	}
	// The empty option text is dropped.
	if len(resp.Options) != 2 {
		t.Errorf("len(Options) = %d, want 2", len(resp.Options))
	}
	if len(resp.UserVotes) != 0 {
		t.Errorf("UserVotes = %v, want empty", resp.UserVotes)
	}
}

func TestPollCreate_Validation(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)

	past := time.Now().Add(-time.Hour)
	tests := []struct {
		name  string
		input CreatePollInput
	}{
		{"empty title", CreatePollInput{Title: "  ", Options: []string{"a", "b"}}},
		{"one option", CreatePollInput{Title: "x", Options: []string{"a"}}},
		{"only empty options", CreatePollInput{Title: "x", Options: []string{" ", ""}}},
		{"bad voting mode", CreatePollInput{Title: "x", VotingMode: "ranked", Options: []string{"a", "b"}}},
		{"past expiry", CreatePollInput{Title: "x", ExpiresAt: &past, Options: []string{"a", "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), alice, tt.input)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestPollCreate_DateOptionHeuristic(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)

	resp := seedPoll(t, svc, alice, model.VotingSingle,
		"2026-10-03T19:00",        // datetime-local form, becomes a date option
		"2026-10-04T20:00:00Z",    // RFC 3339, becomes a date option
		"Txxxxxxxxxxxxxxxxxxxxxx", // has a T and the length but does not parse
		"Friday maybe?",           // plain text
	)

	byText := map[string]model.PollOption{}
	for _, opt := range resp.Options {
		byText[opt.Text] = opt
	}

	local := byText["2026-10-03T19:00"]
	if !local.IsDate || local.DateTime == nil {
		t.Fatal("datetime-local option not detected as date")
	}
	want := time.Date(2026, 10, 3, 19, 0, 0, 0, time.UTC)
	if !local.DateTime.Equal(want) {
		t.Errorf("DateTime = %v, want %v", local.DateTime, want)
	}

	if !byText["2026-10-04T20:00:00Z"].IsDate {
		t.Error("RFC 3339 option not detected as date")
	}
	if byText["Txxxxxxxxxxxxxxxxxxxxxx"].IsDate {
		t.Error("unparseable text wrongly detected as date")
	}
	if byText["Friday maybe?"].IsDate {
		t.Error("plain text wrongly detected as date")
	}
}

func TestCastVote_SingleReplaces(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "Catan", "Wingspan")

	ctx := context.Background()
	for _, opt := range poll.Options {
		outcome, err := svc.CastVote(ctx, alice, poll.Poll.ID, opt.ID)
		if err != nil {
			t.Fatalf("CastVote() error = %v", err)
		}
		if outcome != model.VoteRecorded {
			t.Errorf("outcome = %q, want %q", outcome, model.VoteRecorded)
		}
	}

	votes, _ := store.UserVotes(ctx, poll.Poll.ID, alice.ID)
	if len(votes) != 1 {
		t.Fatalf("len(votes) = %d, want 1", len(votes))
	}
	if votes[0] != poll.Options[1].ID {
		t.Errorf("vote on %q, want %q", votes[0], poll.Options[1].ID)
	}
}

func TestCastVote_MultiToggles(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingMulti, "Fri", "Sat")

	ctx := context.Background()
	first := poll.Options[0].ID

	outcome, err := svc.CastVote(ctx, alice, poll.Poll.ID, first)
	if err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	if outcome != model.VoteRecorded {
		t.Errorf("first outcome = %q, want %q", outcome, model.VoteRecorded)
	}

	outcome, err = svc.CastVote(ctx, alice, poll.Poll.ID, first)
	if err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	if outcome != model.VoteRemoved {
		t.Errorf("second outcome = %q, want %q", outcome, model.VoteRemoved)
	}

	votes, _ := store.UserVotes(ctx, poll.Poll.ID, alice.ID)
	if len(votes) != 0 {
		t.Errorf("votes after even toggles = %v, want none", votes)
	}
}

func TestCastVote_ClosedPoll(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	ctx := context.Background()

	t.Run("deactivated", func(t *testing.T) {
		poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")
		inactive := false
		if _, err := svc.Update(ctx, alice, poll.Poll.ID, UpdatePollInput{IsActive: &inactive}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		_, err := svc.CastVote(ctx, alice, poll.Poll.ID, poll.Options[0].ID)
		if !errors.Is(err, apperror.ErrPollClosed) {
			t.Errorf("CastVote() error = %v, want ErrPollClosed", err)
		}
	})

	t.Run("expired but flag still set", func(t *testing.T) {
		poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")
		expired := store.polls[poll.Poll.ID]
		past := time.Now().Add(-time.Minute)
		expired.ExpiresAt = &past

		_, err := svc.CastVote(ctx, alice, poll.Poll.ID, poll.Options[0].ID)
		if !errors.Is(err, apperror.ErrPollClosed) {
			t.Errorf("CastVote() error = %v, want ErrPollClosed", err)
		}
	})
}

func TestCastVote_OptionFromAnotherPoll(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	pollA := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")
	pollB := seedPoll(t, svc, alice, model.VotingSingle, "x", "y")

	_, err := svc.CastVote(context.Background(), alice, pollA.Poll.ID, pollB.Options[0].ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("CastVote() error = %v, want ErrNotFound", err)
	}
}

func TestCastVote_CountsMetric(t *testing.T) {
	store := newMockStore()
	sink := newCountingSink()
	svc := NewPollService(store, store, sink, testLogger())
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	if _, err := svc.CastVote(context.Background(), alice, poll.Poll.ID, poll.Options[0].ID); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	if sink.counts[metrics.VotesCast] != 1 {
		t.Errorf("votes_cast = %d, want 1", sink.counts[metrics.VotesCast])
	}
	if sink.counts[metrics.PollsCreated] != 1 {
		t.Errorf("polls_created = %d, want 1", sink.counts[metrics.PollsCreated])
	}
}

func TestResults(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	bob := seedUser(t, store, "bob", false)
	carol := seedUser(t, store, "carol", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "Catan", "Wingspan", "Azul")

	ctx := context.Background()
	mustVote := func(who model.Identity, optionID string) {
		t.Helper()
		if _, err := svc.CastVote(ctx, who, poll.Poll.ID, optionID); err != nil {
			t.Fatalf("CastVote() error = %v", err)
		}
	}
	mustVote(alice, poll.Options[0].ID)
	mustVote(bob, poll.Options[0].ID)
	mustVote(carol, poll.Options[1].ID)

	result, err := svc.Results(ctx, alice, poll.Poll.ID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}

	if result.TotalVotes != 3 {
		t.Errorf("TotalVotes = %d, want 3", result.TotalVotes)
	}

	var sum int64
	byText := map[string]model.OptionResult{}
	for _, opt := range result.Options {
		byText[opt.Text] = opt
		sum += opt.VoteCount
	}
	if sum != result.TotalVotes {
		t.Errorf("sum of counts = %d, want %d", sum, result.TotalVotes)
	}
	if got := byText["Catan"].Percentage; got < 66.6 || got > 66.7 {
		t.Errorf("Catan percentage = %v, want ~66.67", got)
	}
	if got := byText["Azul"].VoteCount; got != 0 {
		t.Errorf("Azul count = %d, want 0", got)
	}
	if got := byText["Azul"].Percentage; got != 0 {
		t.Errorf("Azul percentage = %v, want 0", got)
	}
	if len(result.UserVotes) != 1 || result.UserVotes[0] != poll.Options[0].ID {
		t.Errorf("UserVotes = %v, want [%s]", result.UserVotes, poll.Options[0].ID)
	}
}

func TestResults_NoVotes(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	result, err := svc.Results(context.Background(), alice, poll.Poll.ID)
	if err != nil {
		t.Fatalf("Results() error = %v", err)
	}
	if result.TotalVotes != 0 {
		t.Errorf("TotalVotes = %d, want 0", result.TotalVotes)
	}
	for _, opt := range result.Options {
		if opt.Percentage != 0.0 {
			t.Errorf("%s percentage = %v, want exactly 0", opt.Text, opt.Percentage)
		}
	}
}

func TestResults_WorksOnClosedPoll(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	ctx := context.Background()
	if _, err := svc.CastVote(ctx, alice, poll.Poll.ID, poll.Options[0].ID); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	past := time.Now().Add(-time.Minute)
	store.polls[poll.Poll.ID].ExpiresAt = &past
	store.polls[poll.Poll.ID].IsActive = false

	result, err := svc.Results(ctx, alice, poll.Poll.ID)
	if err != nil {
		t.Fatalf("Results() on closed poll error = %v", err)
	}
	if result.TotalVotes != 1 {
		t.Errorf("TotalVotes = %d, want 1", result.TotalVotes)
	}
}

func TestUpdate_Permissions(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	bob := seedUser(t, store, "bob", false)
	admin := seedUser(t, store, "root", true)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	ctx := context.Background()
	title := "renamed"

	if _, err := svc.Update(ctx, bob, poll.Poll.ID, UpdatePollInput{Title: &title}); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("stranger Update() error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Update(ctx, alice, poll.Poll.ID, UpdatePollInput{Title: &title}); err != nil {
		t.Errorf("creator Update() error = %v", err)
	}
	title2 := "renamed again"
	if _, err := svc.Update(ctx, admin, poll.Poll.ID, UpdatePollInput{Title: &title2}); err != nil {
		t.Errorf("admin Update() error = %v", err)
	}

	got, _ := store.GetPollByID(ctx, poll.Poll.ID)
	if got.Title != "renamed again" {
		t.Errorf("Title = %q, want %q", got.Title, "renamed again")
	}
}

func TestUpdate_PartialPatch(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	desc := "only the description changes"
	updated, err := svc.Update(context.Background(), alice, poll.Poll.ID, UpdatePollInput{Description: &desc})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != poll.Poll.Title {
		t.Errorf("Title changed: %q", updated.Title)
	}
	if updated.Description != desc {
		t.Errorf("Description = %q, want %q", updated.Description, desc)
	}
}

func TestDelete_Permissions(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	bob := seedUser(t, store, "bob", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	ctx := context.Background()
	if _, err := svc.CastVote(ctx, bob, poll.Poll.ID, poll.Options[0].ID); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	// A forbidden delete leaves the poll and its votes untouched.
	if err := svc.Delete(ctx, bob, poll.Poll.ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("stranger Delete() error = %v, want ErrForbidden", err)
	}
	if _, err := store.GetPollByID(ctx, poll.Poll.ID); err != nil {
		t.Fatalf("poll gone after forbidden delete: %v", err)
	}
	votes, _ := store.UserVotes(ctx, poll.Poll.ID, bob.ID)
	if len(votes) != 1 {
		t.Errorf("votes after forbidden delete = %v, want 1", votes)
	}

	if err := svc.Delete(ctx, alice, poll.Poll.ID); err != nil {
		t.Fatalf("creator Delete() error = %v", err)
	}
	if _, err := svc.Results(ctx, alice, poll.Poll.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Results() after delete error = %v, want ErrNotFound", err)
	}
}

func TestAddOption(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	bob := seedUser(t, store, "bob", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	ctx := context.Background()

	if _, err := svc.AddOption(ctx, bob, poll.Poll.ID, "c"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("stranger AddOption() error = %v, want ErrForbidden", err)
	}

	opt, err := svc.AddOption(ctx, alice, poll.Poll.ID, "2026-11-07T18:30")
	if err != nil {
		t.Fatalf("AddOption() error = %v", err)
	}
	if !opt.IsDate {
		t.Error("date-shaped option text not detected as date")
	}

	inactive := false
	if _, err := svc.Update(ctx, alice, poll.Poll.ID, UpdatePollInput{IsActive: &inactive}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := svc.AddOption(ctx, alice, poll.Poll.ID, "d"); !errors.Is(err, apperror.ErrPollClosed) {
		t.Errorf("AddOption() on closed poll error = %v, want ErrPollClosed", err)
	}
}

func TestVoters_Permissions(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	bob := seedUser(t, store, "bob", false)
	admin := seedUser(t, store, "root", true)
	poll := seedPoll(t, svc, alice, model.VotingMulti, "Fri", "Sat")

	ctx := context.Background()
	if _, err := svc.CastVote(ctx, bob, poll.Poll.ID, poll.Options[0].ID); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	if _, err := svc.CastVote(ctx, bob, poll.Poll.ID, poll.Options[1].ID); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	if _, err := svc.Voters(ctx, bob, poll.Poll.ID); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("voter Voters() error = %v, want ErrForbidden", err)
	}

	details, err := svc.Voters(ctx, admin, poll.Poll.ID)
	if err != nil {
		t.Fatalf("admin Voters() error = %v", err)
	}
	if details.TotalVotes != 2 {
		t.Errorf("TotalVotes = %d, want 2", details.TotalVotes)
	}
	// One person voted twice; unique voters stays 1.
	if details.TotalVoters != 1 {
		t.Errorf("TotalVoters = %d, want 1", details.TotalVoters)
	}
	for _, opt := range details.Options {
		if len(opt.Voters) != 1 || opt.Voters[0].Username != "bob" {
			t.Errorf("option %q voters = %v, want bob", opt.Text, opt.Voters)
		}
	}
}

func TestList_SweepsExpired(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	past := time.Now().Add(-time.Minute)
	store.polls[poll.Poll.ID].ExpiresAt = &past

	active, err := svc.List(context.Background(), true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expired poll still listed as active: %v", active)
	}
}

func TestGet(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)
	poll := seedPoll(t, svc, alice, model.VotingSingle, "a", "b")

	resp, err := svc.Get(context.Background(), alice, poll.Poll.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.Poll.ID != poll.Poll.ID {
		t.Errorf("Poll.ID = %q, want %q", resp.Poll.ID, poll.Poll.ID)
	}
	if len(resp.Options) != 2 {
		t.Errorf("len(Options) = %d, want 2", len(resp.Options))
	}
	if resp.UserVotes == nil {
		t.Error("UserVotes = nil, want empty slice")
	}
}

func TestGet_NotFound(t *testing.T) {
	store := newMockStore()
	svc := newTestPollService(store)
	alice := seedUser(t, store, "alice", false)

	_, err := svc.Get(context.Background(), alice, "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
