package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clienthub/clienthub/pkg/billing"
	"github.com/clienthub/clienthub/pkg/plans"
	"github.com/clienthub/clienthub/pkg/quota"
)

// Message is one stored assistant exchange
type Message struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	SpaceID    *int64    `json:"space_id,omitempty"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	TokensUsed int64     `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// Responder produces the assistant response for a prompt and reports the
// tokens actually consumed.
type Responder interface {
	Respond(ctx context.Context, prompt string) (response string, tokens int64, err error)
}

// Service runs governed assistant requests
type Service struct {
	db        *sql.DB
	governor  *quota.Governor
	responder Responder
	limiter   quota.RateLimiter
	clock     billing.Clock
}

// NewService creates a Service. limiter may be nil.
func NewService(db *sql.DB, governor *quota.Governor, responder Responder, limiter quota.RateLimiter, clock billing.Clock) *Service {
	if clock == nil {
		clock = billing.SystemClock{}
	}
	return &Service{
		db:        db,
		governor:  governor,
		responder: responder,
		limiter:   limiter,
		clock:     clock,
	}
}

// estimateTokens is a coarse prompt-size estimate used only for the budget
// precheck; the recorded figure is what the responder reports.
func estimateTokens(prompt string) int64 {
	est := int64(len(prompt)) / 4
	if est < 1 {
		est = 1
	}
	return est
}

// Send runs one assistant request through all three governance checks,
// calls the responder, and commits the message, the request-log row and the
// counter increments together. Pre-flight denials are returned before the
// responder is ever invoked; the message ceiling is then re-checked against
// the incremented counter inside the transaction, and an overflow rolls the
// whole write back.
func (s *Service) Send(ctx context.Context, tenantID int64, spaceID *int64, prompt string) (*Message, error) {
	if err := s.governor.CheckRateLimit(ctx, tenantID); err != nil {
		return nil, err
	}

	counters, err := s.governor.UsageSnapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := s.governor.CheckCeiling(ctx, tenantID, plans.ResourceAIMessages, counters.AIMessagesMonth); err != nil {
		return nil, err
	}
	if err := s.governor.CheckTokenBudget(ctx, tenantID, estimateTokens(prompt)); err != nil {
		return nil, err
	}

	response, tokens, err := s.responder.Respond(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("assistant response failed: %w", err)
	}

	now := s.clock.Now()
	msg := &Message{
		TenantID:   tenantID,
		SpaceID:    spaceID,
		Prompt:     prompt,
		Response:   response,
		TokensUsed: tokens,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO assistant_messages (tenant_id, space_id, prompt, response, tokens_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, tenantID, spaceID, prompt, response, tokens, now).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assistant_requests (tenant_id, requested_at) VALUES ($1, $2)`,
		tenantID, now); err != nil {
		return nil, fmt.Errorf("failed to log assistant request: %w", err)
	}

	var messagesThisMonth int64
	err = tx.QueryRowContext(ctx, `
		UPDATE usage_counters
		SET ai_messages_month = ai_messages_month + 1,
		    tokens_used_month = tokens_used_month + $2,
		    updated_at = NOW()
		WHERE tenant_id = $1
		RETURNING ai_messages_month
	`, tenantID, tokens).Scan(&messagesThisMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to update usage counters: %w", err)
	}

	// Concurrent sends can pass the pre-flight check together; the
	// incremented counter is authoritative, so overflow aborts the commit.
	if err := s.governor.CheckCeiling(ctx, tenantID, plans.ResourceAIMessages, messagesThisMonth-1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assistant message: %w", err)
	}

	// Best effort: the Postgres log above is authoritative for the window.
	if s.limiter != nil {
		_ = s.limiter.Record(ctx, tenantID, now)
	}

	return msg, nil
}

// History returns the tenant's recent messages, newest first
func (s *Service) History(ctx context.Context, tenantID int64, limit int) ([]*Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, space_id, prompt, response, tokens_used, created_at
		FROM assistant_messages
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assistant messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.TenantID, &msg.SpaceID, &msg.Prompt,
			&msg.Response, &msg.TokensUsed, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assistant message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
