package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
	"github.com/vncsmyrnk/ideavote/internal/core/ports"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Timestamps are stored as unix microseconds so ORDER BY is numeric.
const schema = `
CREATE TABLE IF NOT EXISTS proposals (
    id TEXT PRIMARY KEY,
    submitter_email TEXT NOT NULL UNIQUE,
    submitter_name TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    attributes TEXT NOT NULL DEFAULT '{}',
    vote_count INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_proposals_ranking ON proposals (vote_count DESC, created_at ASC, id ASC);

CREATE TABLE IF NOT EXISTS ballots (
    voter_email TEXT PRIMARY KEY,
    proposal_id TEXT NOT NULL REFERENCES proposals(id),
    cast_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ballots_proposal_id ON ballots (proposal_id);
`

type ledgerRepository struct {
	db *sql.DB
}

// Open creates (or reuses) the database file at path and applies the schema.
// The pool is capped at one connection: sqlite allows a single writer and
// serializing at the pool keeps every transaction free of SQLITE_BUSY.
func Open(ctx context.Context, path string) (ports.LedgerRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &ledgerRepository{db: db}, nil
}

const proposalColumns = `id, submitter_email, submitter_name, title, body, attributes, vote_count, created_at`

func (r *ledgerRepository) CreateProposal(ctx context.Context, proposal *domain.Proposal) error {
	attrs, err := encodeAttributes(proposal.Attributes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO proposals (id, submitter_email, submitter_name, title, body, attributes, vote_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		proposal.ID, proposal.SubmitterEmail, proposal.SubmitterName, proposal.Title,
		proposal.Body, attrs, proposal.VoteCount, proposal.CreatedAt.UnixMicro(),
	)
	if err != nil {
		if constraintKind(err) == constraintUnique {
			return ports.ErrRecordExists
		}
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

func (r *ledgerRepository) FindProposalBySubmitter(ctx context.Context, email string) (*domain.Proposal, error) {
	return r.findProposal(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE submitter_email = ?`, email)
}

func (r *ledgerRepository) FindProposalByID(ctx context.Context, id string) (*domain.Proposal, error) {
	return r.findProposal(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
}

func (r *ledgerRepository) findProposal(ctx context.Context, query, arg string) (*domain.Proposal, error) {
	proposal, err := scanProposal(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	return proposal, nil
}

func (r *ledgerRepository) RecordBallot(ctx context.Context, ballot domain.Ballot) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ballots (voter_email, proposal_id, cast_at) VALUES (?, ?, ?)`,
		ballot.VoterEmail, ballot.ProposalID, ballot.CastAt.UnixMicro(),
	)
	if err != nil {
		switch constraintKind(err) {
		case constraintUnique:
			return 0, ports.ErrRecordExists
		case constraintForeignKey:
			return 0, ports.ErrRecordNotFound
		}
		return 0, fmt.Errorf("failed to insert ballot: %w", err)
	}

	var count int64
	err = tx.QueryRowContext(ctx,
		`UPDATE proposals SET vote_count = vote_count + 1 WHERE id = ? RETURNING vote_count`,
		ballot.ProposalID,
	).Scan(&count)
	if err != nil {
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
	var (
		b      domain.Ballot
		castAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT voter_email, proposal_id, cast_at FROM ballots WHERE voter_email = ?`, email,
	).Scan(&b.VoterEmail, &b.ProposalID, &castAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to check existing ballot: %w", err)
	}
	b.CastAt = time.UnixMicro(castAt).UTC()
	return &b, nil
}

func (r *ledgerRepository) ListProposalsOrdered(ctx context.Context) ([]*domain.Proposal, error) {
	return listProposals(ctx, r.db)
}

func (r *ledgerRepository) CountBallots(ctx context.Context) (int64, error) {
	return countBallots(ctx, r.db)
}

// Standings reads inside one transaction. The pool holds a single
// connection, so no write can land between the two queries.
func (r *ledgerRepository) Standings(ctx context.Context) ([]*domain.Proposal, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
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
	tally := domain.Tally{ProposalID: id}
	err := r.db.QueryRowContext(ctx, `
		SELECT p.vote_count, (SELECT COUNT(*) FROM ballots b WHERE b.proposal_id = p.id)
		FROM proposals p
		WHERE p.id = ?
	`, id).Scan(&tally.VoteCount, &tally.BallotCount)
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
		p         domain.Proposal
		attrs     string
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.SubmitterEmail, &p.SubmitterName, &p.Title, &p.Body, &attrs, &p.VoteCount, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMicro(createdAt).UTC()
	if attrs != "" {
		var m map[string]string
		if err := json.Unmarshal([]byte(attrs), &m); err != nil {
			return nil, fmt.Errorf("failed to decode attributes: %w", err)
		}
		if len(m) > 0 {
			p.Attributes = m
		}
	}
	return &p, nil
}

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

type constraint int

const (
	constraintNone constraint = iota
	constraintUnique
	constraintForeignKey
)

func constraintKind(err error) constraint {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return constraintNone
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return constraintUnique
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return constraintForeignKey
	case sqlite3.SQLITE_CONSTRAINT:
		// primary result code only; fall back to the message
		msg := sqliteErr.Error()
		if strings.Contains(msg, "UNIQUE") {
			return constraintUnique
		}
		if strings.Contains(msg, "FOREIGN KEY") {
			return constraintForeignKey
		}
	}
	return constraintNone
}

var _ ports.LedgerRepository = (*ledgerRepository)(nil)
