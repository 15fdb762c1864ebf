package model

import "time"

// VotingMode selects how votes on a poll interact. It is fixed at poll
// creation.
type VotingMode string

const (
	// VotingSingle allows at most one vote per user per poll; a new vote
	// replaces the previous one.
	VotingSingle VotingMode = "single"
	// VotingMulti allows one vote per user per option; voting the same
	// option again removes it (toggle).
	VotingMulti VotingMode = "multi"
)

// Valid reports whether m is a known voting mode.
func (m VotingMode) Valid() bool {
	return m == VotingSingle || m == VotingMulti
}

// Poll is a question with a set of options, owned by its creator.
// ExpiresAt is optional; a nil expiry means the poll never expires on its
// own. IsActive is an explicit flag the creator or an admin can toggle;
// voting requires both IsActive and a non-past expiry.
type Poll struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	IsActive    bool       `json:"isActive"`
	VotingMode  VotingMode `json:"votingMode"`
}

// Expired reports whether the poll's expiry, if any, is in the past.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Open reports whether the poll currently accepts votes. Both the explicit
// flag and the expiry are checked independently.
func (p *Poll) Open(now time.Time) bool {
	return p.IsActive && !p.Expired(now)
}

// PollOption is one selectable choice within a poll. Options flagged
// IsDate carry a parsed calendar timestamp in DateTime; the text form is
// kept either way. VoteCount is derived, filled by the repository.
type PollOption struct {
	ID        string     `json:"id"`
	PollID    string     `json:"pollId"`
	Text      string     `json:"text"`
	IsDate    bool       `json:"isDate"`
	DateTime  *time.Time `json:"dateTime,omitempty"`
	VoteCount int64      `json:"voteCount"`
}

// Vote links a user to one option of one poll.
type Vote struct {
	ID        string    `json:"id"`
	PollID    string    `json:"pollId"`
	OptionID  string    `json:"optionId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// VoteOutcome reports what casting a vote did.
type VoteOutcome string

const (
	// VoteRecorded means a vote row now exists for the cast option.
	VoteRecorded VoteOutcome = "recorded"
	// VoteRemoved means a toggle cast removed an existing vote.
	VoteRemoved VoteOutcome = "removed"
)

// PollResponse bundles a poll with its options and the viewer's current
// votes so callers can render voting state in one round trip.
type PollResponse struct {
	Poll      Poll         `json:"poll"`
	Options   []PollOption `json:"options"`
	UserVotes []string     `json:"userVotes"` // option IDs the viewer voted for
}

// OptionResult is one option with its aggregated tally.
// Percentage is count/totalVotes*100.0, exactly 0.0 when the poll has no
// votes at all.
type OptionResult struct {
	PollOption
	Percentage float64 `json:"percentage"`
}

// PollResult is the aggregated outcome of a poll.
type PollResult struct {
	Poll       Poll           `json:"poll"`
	Options    []OptionResult `json:"options"`
	TotalVotes int64          `json:"totalVotes"`
	UserVotes  []string       `json:"userVotes"`
}

// VoteWithUser is a single vote annotated with the voter's username, for
// the creator-only voters view.
type VoteWithUser struct {
	VoteID    string    `json:"voteId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	OptionID  string    `json:"optionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// OptionVoters is one option together with everyone who voted for it.
type OptionVoters struct {
	PollOption
	Voters []VoteWithUser `json:"voters"`
}

// VotingDetails is the full voter breakdown of a poll, restricted to the
// poll creator and admins.
type VotingDetails struct {
	Poll        Poll           `json:"poll"`
	Options     []OptionVoters `json:"options"`
	TotalVotes  int64          `json:"totalVotes"`
	TotalVoters int64          `json:"totalVoters"`
}

// Stats holds store-wide counts surfaced as metrics gauges.
type Stats struct {
	ActivePolls int64
	TotalPolls  int64
	TotalVotes  int64
	TotalUsers  int64
}
