package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
	"github.com/vncsmyrnk/ideavote/internal/core/services"
	"github.com/vncsmyrnk/ideavote/internal/core/services/servicestest"
)

var deadline = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (ports.Ledger, *servicestest.FixedClock, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	clock := servicestest.NewFixedClock(deadline.Add(-24 * time.Hour))
	ledger := services.NewLedgerService(store, services.LedgerConfig{Deadline: deadline}, clock, nil)
	return ledger, clock, store
}

func submit(t *testing.T, ledger ports.Ledger, email, title string) *domain.Proposal {
	t.Helper()
	p, err := ledger.SubmitProposal(context.Background(), ports.SubmitProposalInput{
		Email: email,
		Title: title,
		Body:  "Body of " + title,
	})
	require.NoError(t, err)
	return p
}

func TestEndToEnd(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()

	a := submit(t, ledger, "a@x.com", "T1")
	assert.Equal(t, int64(0), a.VoteCount)
	assert.Equal(t, "T1", a.Title)
	assert.NotEmpty(t, a.ID)

	count, err := ledger.CastVote(ctx, ports.CastVoteInput{Email: "b@x.com", ProposalID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = ledger.CastVote(ctx, ports.CastVoteInput{Email: "b@x.com", ProposalID: a.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	got, err := ledger.GetProposal(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.VoteCount)

	results, err := ledger.Results(ctx)
	require.NoError(t, err)
	require.NotNil(t, results.Winner)
	assert.Equal(t, a.ID, results.Winner.ID)
	assert.Equal(t, int64(1), results.TotalBallots)
	assert.False(t, results.IsPastDeadline)
	assert.Equal(t, deadline, results.Deadline)
}

func TestSubmitProposalNormalizes(t *testing.T) {
	ledger, clock, _ := newLedger(t)

	p, err := ledger.SubmitProposal(context.Background(), ports.SubmitProposalInput{
		Email:      "  Ada@Example.COM ",
		Name:       " Ada ",
		Title:      "  Better coffee ",
		Body:       "\tMore beans\n",
		Attributes: map[string]string{" team ": " core ", "empty": "  "},
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", p.SubmitterEmail)
	assert.Equal(t, "Ada", p.SubmitterName)
	assert.Equal(t, "Better coffee", p.Title)
	assert.Equal(t, "More beans", p.Body)
	assert.Equal(t, map[string]string{"team": "core"}, p.Attributes)
	assert.Equal(t, clock.Now().UTC(), p.CreatedAt)
	assert.Equal(t, time.UTC, p.CreatedAt.Location())
}

func TestDuplicateSubmitterIsCaseInsensitive(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()

	submit(t, ledger, "ada@example.com", "First")

	for _, email := range []string{"ada@example.com", "ADA@example.com", "  Ada@Example.com  "} {
		_, err := ledger.SubmitProposal(ctx, ports.SubmitProposalInput{Email: email, Title: "Again", Body: "B"})
		assert.ErrorIs(t, err, domain.ErrDuplicateSubmitter, email)
	}

	proposals, err := ledger.ListProposals(ctx)
	require.NoError(t, err)
	assert.Len(t, proposals, 1)
}

func TestConcurrentSubmissionsSameEmail(t *testing.T) {
	ledger, _, _ := newLedger(t)

	const n = 16
	var (
		wg         sync.WaitGroup
		successes  atomic.Int64
		duplicates atomic.Int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.SubmitProposal(context.Background(), ports.SubmitProposalInput{
				Email: "race@example.com",
				Title: fmt.Sprintf("Idea %d", i),
				Body:  "B",
			})
			if err == nil {
				successes.Add(1)
			} else if errors.Is(err, domain.ErrDuplicateSubmitter) {
				duplicates.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(n-1), duplicates.Load())
}

func TestValidationErrors(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()
	p := submit(t, ledger, "a@x.com", "T1")

	submissions := []ports.SubmitProposalInput{
		{Email: "", Title: "T", Body: "B"},
		{Email: "   ", Title: "T", Body: "B"},
		{Email: "Bob <bob@x.com>", Title: "T", Body: "B"},
		{Email: "b@x.com", Title: "", Body: "B"},
		{Email: "b@x.com", Title: "T", Body: "  "},
	}
	for _, in := range submissions {
		_, err := ledger.SubmitProposal(ctx, in)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}

	votes := []ports.CastVoteInput{
		{Email: "", ProposalID: p.ID},
		{Email: "b@x.com", ProposalID: ""},
		{Email: "b@x.com", ProposalID: "   "},
	}
	for _, in := range votes {
		_, err := ledger.CastVote(ctx, in)
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}

	_, err := ledger.GetProposal(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCastVoteUnknownProposal(t *testing.T) {
	ledger, _, store := newLedger(t)
	ctx := context.Background()

	_, err := ledger.CastVote(ctx, ports.CastVoteInput{Email: "b@x.com", ProposalID: "nope"})
	assert.ErrorIs(t, err, domain.ErrProposalNotFound)

	_, err = store.FindBallotByVoter(ctx, "b@x.com")
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)

	_, err = ledger.GetProposal(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrProposalNotFound)
}

func TestConcurrentVotesSameVoter(t *testing.T) {
	ledger, _, _ := newLedger(t)

	const n = 32
	proposals := make([]*domain.Proposal, 4)
	for i := range proposals {
		proposals[i] = submit(t, ledger, fmt.Sprintf("author%d@x.com", i), fmt.Sprintf("Idea %d", i))
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		already   atomic.Int64
	)
	for i := 0; i < n; i++ {
		target := proposals[i%len(proposals)].ID
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CastVote(context.Background(), ports.CastVoteInput{Email: "voter@x.com", ProposalID: target})
			if err == nil {
				successes.Add(1)
			} else if errors.Is(err, domain.ErrAlreadyVoted) {
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(n-1), already.Load())

	results, err := ledger.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), results.TotalBallots)

	var total int64
	for _, p := range results.Ranking {
		total += p.VoteCount
	}
	assert.Equal(t, int64(1), total)
}

func TestCountsMatchBallotsUnderLoad(t *testing.T) {
	ledger, _, store := newLedger(t)
	a := submit(t, ledger, "a@x.com", "A")
	b := submit(t, ledger, "b@x.com", "B")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		target := a.ID
		if i%3 == 0 {
			target = b.ID
		}
		voter := fmt.Sprintf("voter%d@x.com", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CastVote(context.Background(), ports.CastVoteInput{Email: voter, ProposalID: target})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	report, err := services.NewAuditService(store, 2, nil).Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Mismatches)

	results, err := ledger.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(50), results.TotalBallots)
	assert.Equal(t, a.ID, results.Winner.ID)
	assert.Equal(t, int64(33), results.Ranking[0].VoteCount)
	assert.Equal(t, int64(17), results.Ranking[1].VoteCount)
}

func TestResultsNeverTornDuringVoting(t *testing.T) {
	ledger, _, _ := newLedger(t)
	a := submit(t, ledger, "a@x.com", "A")
	b := submit(t, ledger, "b@x.com", "B")

	const voters = 2000
	var (
		voting  sync.WaitGroup
		reading sync.WaitGroup
		stop    atomic.Bool
		reads   atomic.Int64
		torn    atomic.Int64
	)
	for r := 0; r < 4; r++ {
		reading.Add(1)
		go func() {
			defer reading.Done()
			for !stop.Load() {
				results, err := ledger.Results(context.Background())
				if !assert.NoError(t, err) {
					return
				}
				var sum int64
				for _, p := range results.Ranking {
					sum += p.VoteCount
				}
				if sum != results.TotalBallots {
					torn.Add(1)
				}
				reads.Add(1)
			}
		}()
	}

	for i := 0; i < voters; i++ {
		target := a.ID
		if i%2 == 0 {
			target = b.ID
		}
		voter := fmt.Sprintf("voter%d@x.com", i)
		voting.Add(1)
		go func() {
			defer voting.Done()
			_, err := ledger.CastVote(context.Background(), ports.CastVoteInput{Email: voter, ProposalID: target})
			assert.NoError(t, err)
		}()
	}
	voting.Wait()
	stop.Store(true)
	reading.Wait()

	assert.Positive(t, reads.Load())
	assert.Zero(t, torn.Load(), "vote counts must always sum to the ballot total")

	results, err := ledger.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(voters), results.TotalBallots)
}

func TestRankingOrder(t *testing.T) {
	ledger, clock, _ := newLedger(t)
	ctx := context.Background()

	votes := []int{3, 5, 5, 1}
	ids := make([]string, len(votes))
	for i, n := range votes {
		clock.Advance(time.Minute)
		p := submit(t, ledger, fmt.Sprintf("author%d@x.com", i), fmt.Sprintf("Idea %d", i))
		ids[i] = p.ID
		for v := 0; v < n; v++ {
			_, err := ledger.CastVote(ctx, ports.CastVoteInput{Email: fmt.Sprintf("v%d-%d@x.com", i, v), ProposalID: p.ID})
			require.NoError(t, err)
		}
	}

	ranked, err := ledger.ListProposals(ctx)
	require.NoError(t, err)
	got := make([]string, len(ranked))
	for i, p := range ranked {
		got[i] = p.ID
	}
	assert.Equal(t, []string{ids[1], ids[2], ids[0], ids[3]}, got)

	results, err := ledger.Results(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[1], results.Winner.ID)
	assert.Equal(t, int64(14), results.TotalBallots)
}

func TestDeadlineGate(t *testing.T) {
	ledger, clock, _ := newLedger(t)
	ctx := context.Background()
	p := submit(t, ledger, "a@x.com", "T1")

	assert.False(t, ledger.IsClosed())
	assert.Equal(t, deadline, ledger.Deadline())

	clock.Set(deadline)
	assert.True(t, ledger.IsClosed())

	_, err := ledger.SubmitProposal(ctx, ports.SubmitProposalInput{Email: "late@x.com", Title: "Late", Body: "B"})
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)

	_, err = ledger.CastVote(ctx, ports.CastVoteInput{Email: "late@x.com", ProposalID: p.ID})
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)

	// the gate is checked before validation
	_, err = ledger.CastVote(ctx, ports.CastVoteInput{})
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)

	proposals, err := ledger.ListProposals(ctx)
	require.NoError(t, err)
	assert.Len(t, proposals, 1)

	results, err := ledger.Results(ctx)
	require.NoError(t, err)
	assert.True(t, results.IsPastDeadline)
	assert.Equal(t, int64(0), results.TotalBallots)

	clock.Advance(time.Hour)
	_, err = ledger.CastVote(ctx, ports.CastVoteInput{Email: "later@x.com", ProposalID: p.ID})
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)
}

func TestEmptyLedger(t *testing.T) {
	ledger, _, _ := newLedger(t)
	ctx := context.Background()

	proposals, err := ledger.ListProposals(ctx)
	require.NoError(t, err)
	assert.NotNil(t, proposals)
	assert.Empty(t, proposals)

	results, err := ledger.Results(ctx)
	require.NoError(t, err)
	assert.Nil(t, results.Winner)
	assert.NotNil(t, results.Ranking)
	assert.Zero(t, results.TotalBallots)
}

// faultyRepo fails or stalls selected operations of an otherwise working store.
type faultyRepo struct {
	*memory.Store
	failRecord bool
	stallList  bool
	failFind   bool
}

var errBackend = errors.New("connection reset by peer")

func (r *faultyRepo) RecordBallot(ctx context.Context, b domain.Ballot) (int64, error) {
	if r.failRecord {
		return 0, errBackend
	}
	return r.Store.RecordBallot(ctx, b)
}

func (r *faultyRepo) FindProposalBySubmitter(ctx context.Context, email string) (*domain.Proposal, error) {
	if r.failFind {
		return nil, errBackend
	}
	return r.Store.FindProposalBySubmitter(ctx, email)
}

func (r *faultyRepo) ListProposalsOrdered(ctx context.Context) ([]*domain.Proposal, error) {
	if r.stallList {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.Store.ListProposalsOrdered(ctx)
}

func (r *faultyRepo) Standings(ctx context.Context) ([]*domain.Proposal, int64, error) {
	if r.stallList {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}
	return r.Store.Standings(ctx)
}

func TestStorageFailures(t *testing.T) {
	repo := &faultyRepo{Store: memory.NewStore()}
	clock := servicestest.NewFixedClock(deadline.Add(-time.Hour))
	ledger := services.NewLedgerService(repo, services.LedgerConfig{
		Deadline:       deadline,
		StorageTimeout: 20 * time.Millisecond,
	}, clock, nil)
	ctx := context.Background()

	p := submit(t, ledger, "a@x.com", "T1")

	repo.failRecord = true
	_, err := ledger.CastVote(ctx, ports.CastVoteInput{Email: "b@x.com", ProposalID: p.ID})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, err, errBackend)

	repo.failRecord = false
	count, err := ledger.CastVote(ctx, ports.CastVoteInput{Email: "b@x.com", ProposalID: p.ID})
	require.NoError(t, err, "a failed vote must leave nothing behind")
	assert.Equal(t, int64(1), count)

	repo.failFind = true
	_, err = ledger.SubmitProposal(ctx, ports.SubmitProposalInput{Email: "c@x.com", Title: "T", Body: "B"})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	repo.stallList = true
	start := time.Now()
	_, err = ledger.ListProposals(ctx)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, err = ledger.Results(ctx)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
