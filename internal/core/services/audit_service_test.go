package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
	"github.com/vncsmyrnk/ideavote/internal/core/services"
)

// skewedRepo reports a stored counter that disagrees with the ballots for
// one proposal, the way a corrupted or hand-edited database would.
type skewedRepo struct {
	*memory.Store
	skewID   string
	tallyErr error
}

func (r *skewedRepo) TallyProposal(ctx context.Context, id string) (domain.Tally, error) {
	if r.tallyErr != nil {
		return domain.Tally{}, r.tallyErr
	}
	tally, err := r.Store.TallyProposal(ctx, id)
	if err != nil {
		return tally, err
	}
	if id == r.skewID {
		tally.VoteCount += 2
	}
	return tally, nil
}

func TestAuditConsistentLedger(t *testing.T) {
	ledger, _, store := newLedger(t)
	ctx := context.Background()

	a := submit(t, ledger, "a@x.com", "A")
	submit(t, ledger, "b@x.com", "B")
	_, err := ledger.CastVote(ctx, ports.CastVoteInput{Email: "v@x.com", ProposalID: a.ID})
	require.NoError(t, err)

	report, err := services.NewAuditService(store, 0, nil).Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Mismatches)
}

func TestAuditReportsMismatch(t *testing.T) {
	ledger, _, store := newLedger(t)
	ctx := context.Background()

	a := submit(t, ledger, "a@x.com", "A")
	b := submit(t, ledger, "b@x.com", "B")
	_, err := ledger.CastVote(ctx, ports.CastVoteInput{Email: "v@x.com", ProposalID: b.ID})
	require.NoError(t, err)

	repo := &skewedRepo{Store: store, skewID: b.ID}
	report, err := services.NewAuditService(repo, 1, nil).Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, domain.Tally{ProposalID: b.ID, VoteCount: 3, BallotCount: 1}, report.Mismatches[0])
	assert.NotEqual(t, a.ID, report.Mismatches[0].ProposalID)
}

func TestAuditPropagatesStorageErrors(t *testing.T) {
	ledger, _, store := newLedger(t)
	submit(t, ledger, "a@x.com", "A")

	boom := errors.New("disk on fire")
	repo := &skewedRepo{Store: store, tallyErr: boom}
	_, err := services.NewAuditService(repo, 4, nil).Audit(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestAuditEmptyLedger(t *testing.T) {
	report, err := services.NewAuditService(memory.NewStore(), 4, nil).Audit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Empty(t, report.Mismatches)
}
