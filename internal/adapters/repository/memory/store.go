package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

// Store keeps the ledger in process memory. A single RWMutex makes every
// write, including the ballot+counter pair, one critical section.
type Store struct {
	mu sync.RWMutex

	proposals  map[string]*domain.Proposal
	submitters map[string]string
	ballots    map[string]domain.Ballot
}

func NewStore() *Store {
	return &Store{
		proposals:  make(map[string]*domain.Proposal),
		submitters: make(map[string]string),
		ballots:    make(map[string]domain.Ballot),
	}
}

func (s *Store) CreateProposal(ctx context.Context, proposal *domain.Proposal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.TrimSpace(proposal.SubmitterEmail)
	if _, ok := s.submitters[email]; ok {
		return ports.ErrRecordExists
	}
	if _, ok := s.proposals[proposal.ID]; ok {
		return ports.ErrRecordExists
	}
	s.proposals[proposal.ID] = proposal.Clone()
	s.submitters[email] = proposal.ID
	return nil
}

func (s *Store) FindProposalBySubmitter(ctx context.Context, email string) (*domain.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.submitters[strings.TrimSpace(email)]
	if !ok {
		return nil, ports.ErrRecordNotFound
	}
	return s.proposals[id].Clone(), nil
}

func (s *Store) FindProposalByID(ctx context.Context, id string) (*domain.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[strings.TrimSpace(id)]
	if !ok {
		return nil, ports.ErrRecordNotFound
	}
	return p.Clone(), nil
}

func (s *Store) RecordBallot(ctx context.Context, ballot domain.Ballot) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	voter := strings.TrimSpace(ballot.VoterEmail)
	if _, ok := s.ballots[voter]; ok {
		return 0, ports.ErrRecordExists
	}
	p, ok := s.proposals[ballot.ProposalID]
	if !ok {
		return 0, ports.ErrRecordNotFound
	}
	s.ballots[voter] = ballot
	p.VoteCount++
	return p.VoteCount, nil
}

func (s *Store) FindBallotByVoter(ctx context.Context, email string) (*domain.Ballot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.ballots[strings.TrimSpace(email)]
	if !ok {
		return nil, ports.ErrRecordNotFound
	}
	return &b, nil
}

func (s *Store) ListProposalsOrdered(ctx context.Context) ([]*domain.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := s.rankedLocked()
	s.mu.RUnlock()
	return out, nil
}

func (s *Store) CountBallots(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.ballots)), nil
}

func (s *Store) Standings(ctx context.Context) ([]*domain.Proposal, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rankedLocked(), int64(len(s.ballots)), nil
}

// rankedLocked copies and ranks the proposals. Callers hold mu.
func (s *Store) rankedLocked() []*domain.Proposal {
	out := make([]*domain.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p.Clone())
	}
	domain.RankProposals(out)
	return out
}

func (s *Store) TallyProposal(ctx context.Context, id string) (domain.Tally, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tally{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return domain.Tally{}, ports.ErrRecordNotFound
	}
	var ballots int64
	for _, b := range s.ballots {
		if b.ProposalID == id {
			ballots++
		}
	}
	return domain.Tally{ProposalID: id, VoteCount: p.VoteCount, BallotCount: ballots}, nil
}

func (s *Store) Close() error {
	return nil
}

var _ ports.LedgerRepository = (*Store)(nil)
