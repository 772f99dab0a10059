package ports

import (
	"context"
	"time"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
)

type SubmitProposalInput struct {
	Email      string
	Name       string
	Title      string
	Body       string
	Attributes map[string]string
}

type CastVoteInput struct {
	Email      string
	ProposalID string
}

type Ledger interface {
	SubmitProposal(ctx context.Context, input SubmitProposalInput) (*domain.Proposal, error)
	ListProposals(ctx context.Context) ([]*domain.Proposal, error)
	GetProposal(ctx context.Context, id string) (*domain.Proposal, error)
	CastVote(ctx context.Context, input CastVoteInput) (int64, error)
	Results(ctx context.Context) (*domain.Results, error)
	Deadline() time.Time
	IsClosed() bool
}

type Clock interface {
	Now() time.Time
}
