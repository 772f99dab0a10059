package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/bolt"
	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/storagetest"
	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) ports.LedgerRepository {
		store, err := bolt.Open(filepath.Join(t.TempDir(), "ideas.bolt"))
		require.NoError(t, err)
		return store
	})
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ideas.bolt")

	store, err := bolt.Open(path)
	require.NoError(t, err)
	p := storagetest.NewProposal(t, "ada@example.com", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.CreateProposal(ctx, p))
	_, err = store.RecordBallot(ctx, domain.Ballot{VoterEmail: "bob@example.com", ProposalID: p.ID, CastAt: p.CreatedAt})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = bolt.Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.FindProposalBySubmitter(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, int64(1), got.VoteCount)

	_, err = store.FindBallotByVoter(ctx, "bob@example.com")
	assert.NoError(t, err)
}
