package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRankProposals(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	proposals := []*Proposal{
		{ID: "a", VoteCount: 3, CreatedAt: base},
		{ID: "b", VoteCount: 5, CreatedAt: base.Add(time.Minute)},
		{ID: "c", VoteCount: 5, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "d", VoteCount: 1, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "f", VoteCount: 1, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "e", VoteCount: 1, CreatedAt: base.Add(3 * time.Minute)},
	}

	RankProposals(proposals)

	ids := make([]string, len(proposals))
	for i, p := range proposals {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"b", "c", "a", "d", "e", "f"}, ids)
}

func TestRanksBeforeComparesInstants(t *testing.T) {
	utc := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("BRT", -3*60*60))

	a := &Proposal{ID: "b", CreatedAt: utc}
	b := &Proposal{ID: "a", CreatedAt: local}
	// same instant in different zones falls through to the id tiebreak
	assert.True(t, ranksBefore(b, a))
	assert.False(t, ranksBefore(a, b))
}

func TestProposalClone(t *testing.T) {
	p := &Proposal{ID: "a", Attributes: map[string]string{"k": "v"}}
	c := p.Clone()
	c.Attributes["k"] = "changed"
	c.VoteCount = 9

	assert.Equal(t, "v", p.Attributes["k"])
	assert.Zero(t, p.VoteCount)
	assert.Nil(t, (*Proposal)(nil).Clone())
}

func TestTallyConsistent(t *testing.T) {
	assert.True(t, Tally{VoteCount: 2, BallotCount: 2}.Consistent())
	assert.False(t, Tally{VoteCount: 3, BallotCount: 2}.Consistent())
}
