package domain

import (
	"time"
)

type Ballot struct {
	VoterEmail string    `json:"-"`
	ProposalID string    `json:"proposalId"`
	CastAt     time.Time `json:"castAt"`
}
