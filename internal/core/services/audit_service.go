package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

const defaultAuditConcurrency = 8

type auditService struct {
	repo        ports.LedgerRepository
	concurrency int
	logger      *slog.Logger
}

func NewAuditService(repo ports.LedgerRepository, concurrency int, logger *slog.Logger) ports.AuditService {
	if concurrency <= 0 {
		concurrency = defaultAuditConcurrency
	}
	return &auditService{
		repo:        repo,
		concurrency: concurrency,
		logger:      ResolveLogger(logger),
	}
}

// Audit compares every proposal's counter with the ballots that reference it.
func (s *auditService) Audit(ctx context.Context) (*domain.AuditReport, error) {
	proposals, err := s.repo.ListProposalsOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch all proposals: %w", err)
	}

	var (
		mu         sync.Mutex
		mismatches []domain.Tally
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range proposals {
		id := p.ID
		g.Go(func() error {
			tally, err := s.repo.TallyProposal(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to tally proposal %s: %w", id, err)
			}
			if !tally.Consistent() {
				s.logger.Error("tally mismatch",
					"event", "audit_tally_mismatch",
					"module", "core/services",
					"layer", "application",
					"proposal_id", id,
					"vote_count", tally.VoteCount,
					"ballot_count", tally.BallotCount,
				)
				mu.Lock()
				mismatches = append(mismatches, tally)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.AuditReport{
		Checked:    len(proposals),
		Mismatches: mismatches,
	}, nil
}
