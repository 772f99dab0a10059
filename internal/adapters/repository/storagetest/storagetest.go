// Package storagetest holds the behaviour every ports.LedgerRepository
// backend must share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

// Factory returns an empty store. The suite closes it when the subtest ends.
type Factory func(t *testing.T) ports.LedgerRepository

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, open(t, newStore)) })
	t.Run("DuplicateSubmitter", func(t *testing.T) { testDuplicateSubmitter(t, open(t, newStore)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t, newStore)) })
	t.Run("RecordBallot", func(t *testing.T) { testRecordBallot(t, open(t, newStore)) })
	t.Run("RecordBallotUnknownProposal", func(t *testing.T) { testRecordBallotUnknownProposal(t, open(t, newStore)) })
	t.Run("ConcurrentSameVoter", func(t *testing.T) { testConcurrentSameVoter(t, open(t, newStore)) })
	t.Run("ConcurrentDistinctVoters", func(t *testing.T) { testConcurrentDistinctVoters(t, open(t, newStore)) })
	t.Run("Ordering", func(t *testing.T) { testOrdering(t, open(t, newStore)) })
	t.Run("Tally", func(t *testing.T) { testTally(t, open(t, newStore)) })
	t.Run("Standings", func(t *testing.T) { testStandings(t, open(t, newStore)) })
	t.Run("StandingsDuringVoting", func(t *testing.T) { testStandingsDuringVoting(t, open(t, newStore)) })
}

func open(t *testing.T, newStore Factory) ports.LedgerRepository {
	t.Helper()
	store := newStore(t)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// NewProposal builds a proposal the way the ledger would before storing it.
func NewProposal(t *testing.T, email string, createdAt time.Time) *domain.Proposal {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return &domain.Proposal{
		ID:             id.String(),
		SubmitterEmail: email,
		SubmitterName:  "Ada",
		Title:          "Idea from " + email,
		Body:           "Details",
		Attributes:     map[string]string{"team": "platform"},
		CreatedAt:      createdAt.UTC().Truncate(time.Microsecond),
	}
}

func ballot(voter, proposalID string) domain.Ballot {
	return domain.Ballot{VoterEmail: voter, ProposalID: proposalID, CastAt: baseTime}
}

func testCreateAndFind(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	p := NewProposal(t, "ada@example.com", baseTime)
	require.NoError(t, store.CreateProposal(ctx, p))

	byID, err := store.FindProposalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byID.ID)
	assert.Equal(t, p.SubmitterEmail, byID.SubmitterEmail)
	assert.Equal(t, p.Title, byID.Title)
	assert.Equal(t, p.Body, byID.Body)
	assert.Equal(t, p.Attributes, byID.Attributes)
	assert.Equal(t, int64(0), byID.VoteCount)
	assert.True(t, p.CreatedAt.Equal(byID.CreatedAt), "created_at %v != %v", p.CreatedAt, byID.CreatedAt)

	bySubmitter, err := store.FindProposalBySubmitter(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, bySubmitter.ID)
}

func testDuplicateSubmitter(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	require.NoError(t, store.CreateProposal(ctx, NewProposal(t, "ada@example.com", baseTime)))

	err := store.CreateProposal(ctx, NewProposal(t, "ada@example.com", baseTime.Add(time.Second)))
	assert.ErrorIs(t, err, ports.ErrRecordExists)

	proposals, err := store.ListProposalsOrdered(ctx)
	require.NoError(t, err)
	assert.Len(t, proposals, 1)
}

func testNotFound(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()

	_, err := store.FindProposalByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)

	_, err = store.FindProposalBySubmitter(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)

	_, err = store.FindBallotByVoter(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)

	_, err = store.TallyProposal(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)

	proposals, err := store.ListProposalsOrdered(ctx)
	require.NoError(t, err)
	assert.Empty(t, proposals)

	count, err := store.CountBallots(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testRecordBallot(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	p := NewProposal(t, "ada@example.com", baseTime)
	require.NoError(t, store.CreateProposal(ctx, p))

	count, err := store.RecordBallot(ctx, ballot("bob@example.com", p.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.RecordBallot(ctx, ballot("carol@example.com", p.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = store.RecordBallot(ctx, ballot("bob@example.com", p.ID))
	assert.ErrorIs(t, err, ports.ErrRecordExists)

	b, err := store.FindBallotByVoter(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, b.ProposalID)

	stored, err := store.FindProposalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.VoteCount)

	total, err := store.CountBallots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func testRecordBallotUnknownProposal(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()

	_, err := store.RecordBallot(ctx, ballot("bob@example.com", uuid.NewString()))
	assert.ErrorIs(t, err, ports.ErrRecordNotFound)

	_, err = store.FindBallotByVoter(ctx, "bob@example.com")
	assert.ErrorIs(t, err, ports.ErrRecordNotFound, "a rejected ballot must not be stored")
}

func testConcurrentSameVoter(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	first := NewProposal(t, "ada@example.com", baseTime)
	second := NewProposal(t, "grace@example.com", baseTime.Add(time.Second))
	require.NoError(t, store.CreateProposal(ctx, first))
	require.NoError(t, store.CreateProposal(ctx, second))

	const attempts = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		conflicts atomic.Int64
	)
	for i := 0; i < attempts; i++ {
		target := first.ID
		if i%2 == 1 {
			target = second.ID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordBallot(ctx, ballot("bob@example.com", target))
			switch {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, ports.ErrRecordExists):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(attempts-1), conflicts.Load())

	a, err := store.FindProposalByID(ctx, first.ID)
	require.NoError(t, err)
	b, err := store.FindProposalByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.VoteCount+b.VoteCount)

	total, err := store.CountBallots(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func testConcurrentDistinctVoters(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	p := NewProposal(t, "ada@example.com", baseTime)
	require.NoError(t, store.CreateProposal(ctx, p))

	const voters = 25
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		voter := fmt.Sprintf("voter-%d@example.com", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RecordBallot(ctx, ballot(voter, p.ID))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := store.FindProposalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(voters), stored.VoteCount)

	tally, err := store.TallyProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, tally.Consistent(), "tally %+v", tally)
}

func testOrdering(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	votes := []int{3, 5, 5, 1}
	created := make([]*domain.Proposal, len(votes))
	for i, n := range votes {
		p := NewProposal(t, fmt.Sprintf("author-%d@example.com", i), baseTime.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.CreateProposal(ctx, p))
		created[i] = p
		for v := 0; v < n; v++ {
			_, err := store.RecordBallot(ctx, ballot(fmt.Sprintf("v-%d-%d@example.com", i, v), p.ID))
			require.NoError(t, err)
		}
	}

	ranked, err := store.ListProposalsOrdered(ctx)
	require.NoError(t, err)
	require.Len(t, ranked, len(votes))

	want := []string{created[1].ID, created[2].ID, created[0].ID, created[3].ID}
	got := make([]string, len(ranked))
	for i, p := range ranked {
		got[i] = p.ID
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []int64{5, 5, 3, 1}, []int64{ranked[0].VoteCount, ranked[1].VoteCount, ranked[2].VoteCount, ranked[3].VoteCount})
}

func testTally(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	p := NewProposal(t, "ada@example.com", baseTime)
	other := NewProposal(t, "grace@example.com", baseTime)
	require.NoError(t, store.CreateProposal(ctx, p))
	require.NoError(t, store.CreateProposal(ctx, other))

	for _, voter := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := store.RecordBallot(ctx, ballot(voter, p.ID))
		require.NoError(t, err)
	}
	_, err := store.RecordBallot(ctx, ballot("d@example.com", other.ID))
	require.NoError(t, err)

	tally, err := store.TallyProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Tally{ProposalID: p.ID, VoteCount: 3, BallotCount: 3}, tally)
}

func testStandings(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()

	ranked, total, err := store.Standings(ctx)
	require.NoError(t, err)
	assert.Empty(t, ranked)
	assert.Zero(t, total)

	early := NewProposal(t, "ada@example.com", baseTime)
	late := NewProposal(t, "grace@example.com", baseTime.Add(time.Minute))
	require.NoError(t, store.CreateProposal(ctx, late))
	require.NoError(t, store.CreateProposal(ctx, early))
	for _, voter := range []string{"a@example.com", "b@example.com"} {
		_, err := store.RecordBallot(ctx, ballot(voter, late.ID))
		require.NoError(t, err)
	}
	_, err = store.RecordBallot(ctx, ballot("c@example.com", early.ID))
	require.NoError(t, err)

	ranked, total, err = store.Standings(ctx)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, late.ID, ranked[0].ID)
	assert.Equal(t, early.ID, ranked[1].ID)
	assert.Equal(t, int64(3), total)
}

// testStandingsDuringVoting reads standings while ballots land and requires
// every read to see counters that sum to the ballot total.
func testStandingsDuringVoting(t *testing.T, store ports.LedgerRepository) {
	ctx := context.Background()
	a := NewProposal(t, "ada@example.com", baseTime)
	b := NewProposal(t, "grace@example.com", baseTime.Add(time.Second))
	require.NoError(t, store.CreateProposal(ctx, a))
	require.NoError(t, store.CreateProposal(ctx, b))

	const voters = 60
	var (
		voting  sync.WaitGroup
		reading sync.WaitGroup
		stop    atomic.Bool
		reads   atomic.Int64
	)
	for r := 0; r < 3; r++ {
		reading.Add(1)
		go func() {
			defer reading.Done()
			for !stop.Load() {
				ranked, total, err := store.Standings(ctx)
				if !assert.NoError(t, err) {
					return
				}
				var sum int64
				for _, p := range ranked {
					sum += p.VoteCount
				}
				assert.Equal(t, total, sum, "counters out of step with ballots")
				reads.Add(1)
			}
		}()
	}

	for i := 0; i < voters; i++ {
		target := a.ID
		if i%3 == 0 {
			target = b.ID
		}
		voter := fmt.Sprintf("standing-%d@example.com", i)
		voting.Add(1)
		go func() {
			defer voting.Done()
			_, err := store.RecordBallot(ctx, ballot(voter, target))
			assert.NoError(t, err)
		}()
	}
	voting.Wait()
	stop.Store(true)
	reading.Wait()

	assert.Positive(t, reads.Load())
	_, total, err := store.Standings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(voters), total)
}
