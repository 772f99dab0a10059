package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
	bolt "go.etcd.io/bbolt"
)

var (
	proposalsBucket  = []byte("proposals")
	submittersBucket = []byte("submitters")
	ballotsBucket    = []byte("ballots")
)

// proposalRecord is the on-disk shape of a proposal. The domain type hides
// the submitter email from JSON, so it is stored explicitly here.
type proposalRecord struct {
	ID             string            `json:"id"`
	SubmitterEmail string            `json:"submitterEmail"`
	SubmitterName  string            `json:"submitterName,omitempty"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	VoteCount      int64             `json:"voteCount"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type ballotRecord struct {
	VoterEmail string    `json:"voterEmail"`
	ProposalID string    `json:"proposalId"`
	CastAt     time.Time `json:"castAt"`
}

// Store is a single-file ledger backed by bbolt. bbolt allows one writer at
// a time, so each Update is atomic with respect to every other write.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{proposalsBucket, submittersBucket, ballotsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) CreateProposal(ctx context.Context, proposal *domain.Proposal) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		proposals := tx.Bucket(proposalsBucket)
		submitters := tx.Bucket(submittersBucket)

		email := []byte(proposal.SubmitterEmail)
		if submitters.Get(email) != nil || proposals.Get([]byte(proposal.ID)) != nil {
			return ports.ErrRecordExists
		}
		if err := putProposal(proposals, toRecord(proposal)); err != nil {
			return err
		}
		if err := submitters.Put(email, []byte(proposal.ID)); err != nil {
			return fmt.Errorf("failed to index submitter: %w", err)
		}
		return nil
	})
}

func (s *Store) FindProposalBySubmitter(ctx context.Context, email string) (*domain.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var proposal *domain.Proposal
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(submittersBucket).Get([]byte(email))
		if id == nil {
			return ports.ErrRecordNotFound
		}
		rec, err := getProposal(tx.Bucket(proposalsBucket), id)
		if err != nil {
			return err
		}
		proposal = rec.toDomain()
		return nil
	})
	return proposal, err
}

func (s *Store) FindProposalByID(ctx context.Context, id string) (*domain.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var proposal *domain.Proposal
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := getProposal(tx.Bucket(proposalsBucket), []byte(id))
		if err != nil {
			return err
		}
		proposal = rec.toDomain()
		return nil
	})
	return proposal, err
}

func (s *Store) RecordBallot(ctx context.Context, ballot domain.Ballot) (int64, error) {
	var count int64
	err := s.update(ctx, func(tx *bolt.Tx) error {
		ballots := tx.Bucket(ballotsBucket)
		proposals := tx.Bucket(proposalsBucket)

		voter := []byte(ballot.VoterEmail)
		if ballots.Get(voter) != nil {
			return ports.ErrRecordExists
		}
		rec, err := getProposal(proposals, []byte(ballot.ProposalID))
		if err != nil {
			return err
		}

		raw, err := json.Marshal(ballotRecord{
			VoterEmail: ballot.VoterEmail,
			ProposalID: ballot.ProposalID,
			CastAt:     ballot.CastAt,
		})
		if err != nil {
			return fmt.Errorf("failed to encode ballot: %w", err)
		}
		if err := ballots.Put(voter, raw); err != nil {
			return fmt.Errorf("failed to insert ballot: %w", err)
		}

		rec.VoteCount++
		if err := putProposal(proposals, rec); err != nil {
			return err
		}
		count = rec.VoteCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) FindBallotByVoter(ctx context.Context, email string) (*domain.Ballot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ballot *domain.Ballot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(ballotsBucket).Get([]byte(email))
		if raw == nil {
			return ports.ErrRecordNotFound
		}
		var rec ballotRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("failed to decode ballot: %w", err)
		}
		ballot = &domain.Ballot{
			VoterEmail: rec.VoterEmail,
			ProposalID: rec.ProposalID,
			CastAt:     rec.CastAt.UTC(),
		}
		return nil
	})
	return ballot, err
}

func (s *Store) ListProposalsOrdered(ctx context.Context) ([]*domain.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var proposals []*domain.Proposal
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		proposals, err = rankedProposals(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return proposals, nil
}

func (s *Store) CountBallots(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.View(func(tx *bolt.Tx) error {
		count = int64(tx.Bucket(ballotsBucket).Stats().KeyN)
		return nil
	})
	return count, err
}

func (s *Store) Standings(ctx context.Context) ([]*domain.Proposal, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var (
		proposals []*domain.Proposal
		total     int64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		if proposals, err = rankedProposals(tx); err != nil {
			return err
		}
		total = int64(tx.Bucket(ballotsBucket).Stats().KeyN)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return proposals, total, nil
}

// TallyProposal reads the counter and scans ballots inside one read
// transaction, so both numbers come from the same snapshot.
func (s *Store) TallyProposal(ctx context.Context, id string) (domain.Tally, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tally{}, err
	}
	tally := domain.Tally{ProposalID: id}
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := getProposal(tx.Bucket(proposalsBucket), []byte(id))
		if err != nil {
			return err
		}
		tally.VoteCount = rec.VoteCount
		return tx.Bucket(ballotsBucket).ForEach(func(_, v []byte) error {
			var b ballotRecord
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("failed to decode ballot: %w", err)
			}
			if b.ProposalID == id {
				tally.BallotCount++
			}
			return nil
		})
	})
	if err != nil {
		return domain.Tally{}, err
	}
	return tally, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const (
	txWaiting int32 = iota
	txRunning
	txAbandoned
)

// update runs fn in a write transaction. Waiting for the bbolt writer lock
// does not observe ctx, so the wait runs in a goroutine raced against ctx. A
// transaction that has not started when ctx ends is abandoned and never
// writes; one that has started is waited for so its outcome is reported.
func (s *Store) update(ctx context.Context, fn func(*bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var state atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.db.Update(func(tx *bolt.Tx) error {
			if !state.CompareAndSwap(txWaiting, txRunning) {
				return ctx.Err()
			}
			return fn(tx)
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(txWaiting, txAbandoned) {
			return ctx.Err()
		}
		return <-done
	}
}

func rankedProposals(tx *bolt.Tx) ([]*domain.Proposal, error) {
	var proposals []*domain.Proposal
	err := tx.Bucket(proposalsBucket).ForEach(func(_, v []byte) error {
		var rec proposalRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("failed to decode proposal: %w", err)
		}
		proposals = append(proposals, rec.toDomain())
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.RankProposals(proposals)
	return proposals, nil
}

func getProposal(b *bolt.Bucket, id []byte) (*proposalRecord, error) {
	raw := b.Get(id)
	if raw == nil {
		return nil, ports.ErrRecordNotFound
	}
	var rec proposalRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode proposal %s: %w", id, err)
	}
	return &rec, nil
}

func putProposal(b *bolt.Bucket, rec *proposalRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode proposal: %w", err)
	}
	if err := b.Put([]byte(rec.ID), raw); err != nil {
		return fmt.Errorf("failed to write proposal: %w", err)
	}
	return nil
}

func toRecord(p *domain.Proposal) *proposalRecord {
	c := p.Clone()
	return &proposalRecord{
		ID:             c.ID,
		SubmitterEmail: c.SubmitterEmail,
		SubmitterName:  c.SubmitterName,
		Title:          c.Title,
		Body:           c.Body,
		Attributes:     c.Attributes,
		VoteCount:      c.VoteCount,
		CreatedAt:      c.CreatedAt,
	}
}

func (r *proposalRecord) toDomain() *domain.Proposal {
	return &domain.Proposal{
		ID:             r.ID,
		SubmitterEmail: r.SubmitterEmail,
		SubmitterName:  r.SubmitterName,
		Title:          r.Title,
		Body:           r.Body,
		Attributes:     r.Attributes,
		VoteCount:      r.VoteCount,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

var _ ports.LedgerRepository = (*Store)(nil)
