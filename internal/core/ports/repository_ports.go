package ports

import (
	"context"
	"errors"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
)

// Storage error kinds. Backends wrap driver errors into these so the ledger
// can tell a rejected write from an unavailable store.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)

// LedgerRepository is the storage contract the ledger relies on. RecordBallot
// must insert the ballot and increment the proposal counter as one atomic
// unit: when two callers race with the same voter email exactly one of them
// succeeds and the other gets ErrRecordExists.
//
// Standings returns the ranked proposals and the total ballot count read from
// one snapshot, so the counters always sum to the total.
type LedgerRepository interface {
	CreateProposal(ctx context.Context, proposal *domain.Proposal) error
	FindProposalBySubmitter(ctx context.Context, email string) (*domain.Proposal, error)
	FindProposalByID(ctx context.Context, id string) (*domain.Proposal, error)
	RecordBallot(ctx context.Context, ballot domain.Ballot) (int64, error)
	FindBallotByVoter(ctx context.Context, email string) (*domain.Ballot, error)
	ListProposalsOrdered(ctx context.Context) ([]*domain.Proposal, error)
	CountBallots(ctx context.Context) (int64, error)
	Standings(ctx context.Context) ([]*domain.Proposal, int64, error)
	TallyProposal(ctx context.Context, id string) (domain.Tally, error)
	Close() error
}
