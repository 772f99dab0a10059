package domain

import "sort"

// RankProposals orders proposals by vote count descending. Ties go to the
// earlier submission, then to the lower id.
func RankProposals(proposals []*Proposal) {
	sort.SliceStable(proposals, func(i, j int) bool {
		return ranksBefore(proposals[i], proposals[j])
	})
}

func ranksBefore(a, b *Proposal) bool {
	if a.VoteCount != b.VoteCount {
		return a.VoteCount > b.VoteCount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
