package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gtcollab-api/internal/models"
)

const proposalColumns = `id, meeting_id, creator_id, location, meeting_date, start_time, expiration_minutes, applied, closed, close_reason, created_at, closed_at`

// ProposalRepository persists meeting proposals, their required responders and votes.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts the proposal and its required responders.
func (r *ProposalRepository) Create(ctx context.Context, exec sqlx.ExtContext, proposal *models.MeetingProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = time.Now().UTC()
	}
	target := r.exec(exec)
	const query = `INSERT INTO meeting_proposals (id, meeting_id, creator_id, location, meeting_date, start_time, expiration_minutes, applied, closed, close_reason, created_at, closed_at)
VALUES (:id, :meeting_id, :creator_id, :location, :meeting_date, :start_time, :expiration_minutes, :applied, :closed, :close_reason, :created_at, :closed_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, query, proposal); err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	const recipient = `INSERT INTO meeting_proposal_recipients (proposal_id, user_id) VALUES ($1, $2)`
	for _, userID := range proposal.RequiredResponders {
		if _, err := target.ExecContext(ctx, recipient, proposal.ID, userID); err != nil {
			return fmt.Errorf("add proposal recipient: %w", err)
		}
	}
	return nil
}

// Get loads a proposal with responders and votes. forUpdate row-locks the proposal for the transaction.
func (r *ProposalRepository) Get(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.MeetingProposal, error) {
	target := r.exec(exec)
	query := fmt.Sprintf(`SELECT %s FROM meeting_proposals WHERE id = $1`, proposalColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var proposal models.MeetingProposal
	if err := sqlx.GetContext(ctx, target, &proposal, query, id); err != nil {
		return nil, err
	}

	const recipients = `SELECT user_id FROM meeting_proposal_recipients WHERE proposal_id = $1 ORDER BY user_id`
	if err := sqlx.SelectContext(ctx, target, &proposal.RequiredResponders, recipients, id); err != nil {
		return nil, fmt.Errorf("list proposal recipients: %w", err)
	}
	const responses = `SELECT proposal_id, user_id, decision, responded_at FROM meeting_proposal_responses WHERE proposal_id = $1 ORDER BY responded_at`
	if err := sqlx.SelectContext(ctx, target, &proposal.Responses, responses, id); err != nil {
		return nil, fmt.Errorf("list proposal responses: %w", err)
	}
	return &proposal, nil
}

// RecordResponse stores a vote. A second vote from the same user is ignored and reported as false.
func (r *ProposalRepository) RecordResponse(ctx context.Context, exec sqlx.ExtContext, response models.ProposalResponse) (bool, error) {
	if response.RespondedAt.IsZero() {
		response.RespondedAt = time.Now().UTC()
	}
	const query = `INSERT INTO meeting_proposal_responses (proposal_id, user_id, decision, responded_at)
VALUES (:proposal_id, :user_id, :decision, :responded_at)
ON CONFLICT (proposal_id, user_id) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, response)
	if err != nil {
		return false, fmt.Errorf("record proposal response: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("proposal response rows affected: %w", err)
	}
	return affected > 0, nil
}

// Close moves an open proposal to its terminal state. It returns sql.ErrNoRows when the proposal was already closed.
func (r *ProposalRepository) Close(ctx context.Context, exec sqlx.ExtContext, id string, applied bool, reason models.ProposalCloseReason, at time.Time) error {
	const query = `UPDATE meeting_proposals SET closed = TRUE, applied = $2, close_reason = $3, closed_at = $4 WHERE id = $1 AND closed = FALSE`
	result, err := r.exec(exec).ExecContext(ctx, query, id, applied, reason, at)
	if err != nil {
		return fmt.Errorf("close proposal: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close proposal rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListExpiredOpen returns ids of open proposals whose expiry is before now.
func (r *ProposalRepository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id FROM meeting_proposals
WHERE closed = FALSE AND created_at + make_interval(mins => expiration_minutes) < $1
ORDER BY created_at
LIMIT $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, now, limit); err != nil {
		return nil, fmt.Errorf("list expired proposals: %w", err)
	}
	return ids, nil
}
