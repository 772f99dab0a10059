package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type ledgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) ports.LedgerRepository {
	return &ledgerRepository{
		db: db,
	}
}

const proposalColumns = `id, submitter_email, submitter_name, title, body, attributes, vote_count, created_at`

func (r *ledgerRepository) CreateProposal(ctx context.Context, proposal *domain.Proposal) error {
	attrs, err := encodeAttributes(proposal.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO proposals (id, submitter_email, submitter_name, title, body, attributes, vote_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		proposal.ID, proposal.SubmitterEmail, proposal.SubmitterName, proposal.Title,
		proposal.Body, attrs, proposal.VoteCount, proposal.CreatedAt,
	)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return ports.ErrRecordExists
		}
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

func (r *ledgerRepository) FindProposalBySubmitter(ctx context.Context, email string) (*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE submitter_email = $1`
	return r.findProposal(ctx, query, email)
}

func (r *ledgerRepository) FindProposalByID(ctx context.Context, id string) (*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`
	return r.findProposal(ctx, query, id)
}

func (r *ledgerRepository) findProposal(ctx context.Context, query string, arg string) (*domain.Proposal, error) {
	proposal, err := scanProposal(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return proposal, nil
}

// RecordBallot inserts the ballot and bumps the counter in one transaction.
// The primary key on voter_email makes a concurrent duplicate block on the
// first writer and then fail with a unique violation.
func (r *ledgerRepository) RecordBallot(ctx context.Context, ballot domain.Ballot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queryBallot := `
		INSERT INTO ballots (voter_email, proposal_id, cast_at)
		VALUES ($1, $2, $3)
	`
	_, err = tx.ExecContext(ctx, queryBallot, ballot.VoterEmail, ballot.ProposalID, ballot.CastAt)
	if err != nil {
		switch pqCode(err) {
		case uniqueViolation:
			return 0, ports.ErrRecordExists
		case foreignKeyViolation:
			return 0, ports.ErrRecordNotFound
		}
		return 0, fmt.Errorf("failed to insert ballot: %w", err)
	}

	queryCount := `
		UPDATE proposals SET vote_count = vote_count + 1
		WHERE id = $1
		RETURNING vote_count
	`
	var count int64
	if err := tx.QueryRowContext(ctx, queryCount, ballot.ProposalID).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ports.ErrRecordNotFound
		}
		return 0, fmt.Errorf("failed to increment vote count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return count, nil
}

func (r *ledgerRepository) FindBallotByVoter(ctx context.Context, email string) (*domain.Ballot, error) {
	query := `SELECT voter_email, proposal_id, cast_at FROM ballots WHERE voter_email = $1`

	var b domain.Ballot
	err := r.db.QueryRowContext(ctx, query, email).Scan(&b.VoterEmail, &b.ProposalID, &b.CastAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to check existing ballot: %w", err)
	}
	b.CastAt = b.CastAt.UTC()
	return &b, nil
}

func (r *ledgerRepository) ListProposalsOrdered(ctx context.Context) ([]*domain.Proposal, error) {
	return listProposals(ctx, r.db)
}

func (r *ledgerRepository) CountBallots(ctx context.Context) (int64, error) {
	return countBallots(ctx, r.db)
}

// Standings reads inside one repeatable-read transaction so the ranking and
// the ballot count share a snapshot.
func (r *ledgerRepository) Standings(ctx context.Context) ([]*domain.Proposal, int64, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	proposals, err := listProposals(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	total, err := countBallots(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return proposals, total, nil
}

func (r *ledgerRepository) TallyProposal(ctx context.Context, id string) (domain.Tally, error) {
	query := `
		SELECT p.vote_count, (SELECT COUNT(*) FROM ballots b WHERE b.proposal_id = p.id)
		FROM proposals p
		WHERE p.id = $1
	`
	tally := domain.Tally{ProposalID: id}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&tally.VoteCount, &tally.BallotCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tally{}, ports.ErrRecordNotFound
		}
		return domain.Tally{}, fmt.Errorf("failed to tally proposal %s: %w", id, err)
	}
	return tally, nil
}

func (r *ledgerRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func listProposals(ctx context.Context, q queryer) ([]*domain.Proposal, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		ORDER BY vote_count DESC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposals: %w", err)
	}
	return proposals, nil
}

func countBallots(ctx context.Context, q queryer) (int64, error) {
	var count int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ballots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ballots: %w", err)
	}
	return count, nil
}

func scanProposal(row rowScanner) (*domain.Proposal, error) {
	var (
		p     domain.Proposal
		attrs []byte
	)
	if err := row.Scan(&p.ID, &p.SubmitterEmail, &p.SubmitterName, &p.Title, &p.Body, &attrs, &p.VoteCount, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if err := decodeAttributes(attrs, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// encodeAttributes returns text rather than []byte: lib/pq sends byte slices
// as bytea, which jsonb columns reject.
func encodeAttributes(attrs map[string]string) (string, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	return string(b), nil
}

func decodeAttributes(raw []byte, p *domain.Proposal) error {
	if len(raw) == 0 {
		return nil
	}
	var attrs map[string]string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return fmt.Errorf("failed to decode attributes: %w", err)
	}
	if len(attrs) > 0 {
		p.Attributes = attrs
	}
	return nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

var _ ports.LedgerRepository = (*ledgerRepository)(nil)
