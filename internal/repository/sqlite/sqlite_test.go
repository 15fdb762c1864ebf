package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/acorvin/gamenight/internal/model"
)

// newTestDB opens a fresh in-memory database per test. t.Cleanup closes
// it when the test (or subtest) finishes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, PasswordHash: "x"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createTestPoll persists a poll with the given option texts and returns
// the poll plus its options.
func createTestPoll(t *testing.T, db *DB, creator *model.User, mode model.VotingMode, optionTexts ...string) (*model.Poll, []*model.PollOption) {
	t.Helper()
	poll := &model.Poll{
		Title:      "Game Night",
		CreatedBy:  creator.ID,
		VotingMode: mode,
	}
	options := make([]*model.PollOption, len(optionTexts))
	for i, text := range optionTexts {
		options[i] = &model.PollOption{Text: text}
	}
	if err := db.CreatePoll(context.Background(), poll, options); err != nil {
		t.Fatalf("failed to create test poll: %v", err)
	}
	return poll, options
}

func castVote(t *testing.T, db *DB, pollID, optionID, userID string) {
	t.Helper()
	if err := db.Replace(context.Background(), pollID, optionID, userID); err != nil {
		t.Fatalf("failed to cast vote: %v", err)
	}
}

func timePtr(ts time.Time) *time.Time { return &ts }
