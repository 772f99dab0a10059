package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

const DefaultStorageTimeout = 5 * time.Second

type LedgerConfig struct {
	Deadline       time.Time
	StorageTimeout time.Duration
}

// ledgerService owns proposals and ballots. It keeps no mutable state of its
// own: uniqueness and the ballot/counter pairing are enforced by the
// repository contract, the pre-checks here only produce friendlier errors.
type ledgerService struct {
	repo     ports.LedgerRepository
	clock    ports.Clock
	deadline time.Time
	timeout  time.Duration
	logger   *slog.Logger
}

func NewLedgerService(repo ports.LedgerRepository, cfg LedgerConfig, clock ports.Clock, logger *slog.Logger) ports.Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	timeout := cfg.StorageTimeout
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	return &ledgerService{
		repo:     repo,
		clock:    clock,
		deadline: cfg.Deadline,
		timeout:  timeout,
		logger:   ResolveLogger(logger),
	}
}

func (s *ledgerService) Deadline() time.Time {
	return s.deadline
}

func (s *ledgerService) IsClosed() bool {
	return s.closedAt(s.clock.Now())
}

func (s *ledgerService) closedAt(now time.Time) bool {
	return !now.Before(s.deadline)
}

func (s *ledgerService) SubmitProposal(ctx context.Context, input ports.SubmitProposalInput) (*domain.Proposal, error) {
	now := s.clock.Now()
	if s.closedAt(now) {
		s.logger.Warn("proposal rejected after deadline",
			"event", "ledger_submit_deadline_passed",
			"module", "core/services",
			"layer", "application",
		)
		return nil, domain.ErrDeadlinePassed
	}

	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	name, err := optionalText("name", input.Name, maxNameLength)
	if err != nil {
		return nil, err
	}
	title, err := requiredText("title", input.Title, maxTitleLength)
	if err != nil {
		return nil, err
	}
	body, err := requiredText("body", input.Body, maxBodyLength)
	if err != nil {
		return nil, err
	}
	attrs, err := normalizeAttributes(input.Attributes)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.repo.FindProposalBySubmitter(ctx, email)
	switch {
	case err == nil:
		return nil, domain.ErrDuplicateSubmitter
	case !errors.Is(err, ports.ErrRecordNotFound):
		return nil, s.unavailable("find proposal by submitter", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate proposal id: %w", err)
	}

	proposal := &domain.Proposal{
		ID:             id.String(),
		SubmitterEmail: email,
		SubmitterName:  name,
		Title:          title,
		Body:           body,
		Attributes:     attrs,
		VoteCount:      0,
		CreatedAt:      now.UTC().Truncate(time.Microsecond),
	}

	if err := s.repo.CreateProposal(ctx, proposal); err != nil {
		if errors.Is(err, ports.ErrRecordExists) {
			return nil, domain.ErrDuplicateSubmitter
		}
		return nil, s.unavailable("create proposal", err)
	}

	s.logger.Info("proposal submitted",
		"event", "ledger_proposal_submitted",
		"module", "core/services",
		"layer", "application",
		"proposal_id", proposal.ID,
	)
	return proposal, nil
}

func (s *ledgerService) ListProposals(ctx context.Context) ([]*domain.Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	proposals, err := s.repo.ListProposalsOrdered(ctx)
	if err != nil {
		return nil, s.unavailable("list proposals", err)
	}
	if proposals == nil {
		proposals = []*domain.Proposal{}
	}
	return proposals, nil
}

func (s *ledgerService) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, validationError("idea id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	proposal, err := s.repo.FindProposalByID(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return nil, domain.ErrProposalNotFound
		}
		return nil, s.unavailable("find proposal", err)
	}
	return proposal, nil
}

func (s *ledgerService) CastVote(ctx context.Context, input ports.CastVoteInput) (int64, error) {
	now := s.clock.Now()
	if s.closedAt(now) {
		s.logger.Warn("vote rejected after deadline",
			"event", "ledger_vote_deadline_passed",
			"module", "core/services",
			"layer", "application",
		)
		return 0, domain.ErrDeadlinePassed
	}

	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return 0, err
	}
	proposalID := strings.TrimSpace(input.ProposalID)
	if proposalID == "" {
		return 0, validationError("idea id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.repo.FindBallotByVoter(ctx, email)
	switch {
	case err == nil:
		return 0, domain.ErrAlreadyVoted
	case !errors.Is(err, ports.ErrRecordNotFound):
		return 0, s.unavailable("find ballot", err)
	}

	if _, err := s.repo.FindProposalByID(ctx, proposalID); err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return 0, domain.ErrProposalNotFound
		}
		return 0, s.unavailable("find proposal", err)
	}

	count, err := s.repo.RecordBallot(ctx, domain.Ballot{
		VoterEmail: email,
		ProposalID: proposalID,
		CastAt:     now.UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrRecordExists):
			return 0, domain.ErrAlreadyVoted
		case errors.Is(err, ports.ErrRecordNotFound):
			return 0, domain.ErrProposalNotFound
		}
		return 0, s.unavailable("record ballot", err)
	}

	s.logger.Info("vote recorded",
		"event", "ledger_vote_recorded",
		"module", "core/services",
		"layer", "application",
		"proposal_id", proposalID,
		"vote_count", count,
	)
	return count, nil
}

func (s *ledgerService) Results(ctx context.Context) (*domain.Results, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ranking, total, err := s.repo.Standings(ctx)
	if err != nil {
		return nil, s.unavailable("read standings", err)
	}
	if ranking == nil {
		ranking = []*domain.Proposal{}
	}

	results := &domain.Results{
		Ranking:        ranking,
		TotalBallots:   total,
		IsPastDeadline: s.IsClosed(),
		Deadline:       s.deadline,
	}
	if len(ranking) > 0 {
		results.Winner = ranking[0]
	}
	return results, nil
}

// unavailable converts a backend failure into the retryable error kind.
func (s *ledgerService) unavailable(op string, err error) error {
	s.logger.Error("ledger storage operation failed",
		"event", "ledger_storage_failed",
		"module", "core/services",
		"layer", "application",
		"operation", op,
		"error", err.Error(),
	)
	return fmt.Errorf("%w: %s: %w", domain.ErrStorageUnavailable, op, err)
}
