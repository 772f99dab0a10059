package domain

import (
	"time"
)

type Results struct {
	Ranking        []*Proposal
	Winner         *Proposal
	TotalBallots   int64
	IsPastDeadline bool
	Deadline       time.Time
}

// Tally pairs the stored counter of a proposal with the number of ballots
// that reference it, read at the same instant.
type Tally struct {
	ProposalID  string
	VoteCount   int64
	BallotCount int64
}

func (t Tally) Consistent() bool {
	return t.VoteCount == t.BallotCount
}

type AuditReport struct {
	Checked    int
	Mismatches []Tally
}
