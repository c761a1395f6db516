package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"
)

// TokenCleaner removes expired authentication tokens.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// TokenCleanupTask deletes expired access and refresh tokens.
type TokenCleanupTask struct {
	tokens TokenCleaner
	logger *log.Logger
}

// NewTokenCleanupTask creates a new token cleanup task
func NewTokenCleanupTask(tokens TokenCleaner, logger *log.Logger) *TokenCleanupTask {
	if logger == nil {
		logger = log.Default()
	}

	return &TokenCleanupTask{
		tokens: tokens,
		logger: logger,
	}
}

// Name returns the task name
func (t *TokenCleanupTask) Name() string {
	return "token_cleanup"
}

// Description returns the task description
func (t *TokenCleanupTask) Description() string {
	return "Delete expired access and refresh tokens"
}

// Execute runs the token cleanup task
func (t *TokenCleanupTask) Execute(ctx context.Context) TaskResult {
	removed, err := t.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		return TaskResult{
			Success: false,
			Message: "Failed to delete expired tokens",
			Error:   err,
		}
	}

	return TaskResult{
		Success:          true,
		Message:          fmt.Sprintf("Deleted %d expired token(s)", removed),
		RecordsProcessed: int(removed),
	}
}

// ShouldRun determines if the task should run (always true for scheduled tasks)
func (t *TokenCleanupTask) ShouldRun() bool {
	return true
}

// NextRun returns when the task should run next (handled by scheduler)
func (t *TokenCleanupTask) NextRun() time.Time {
	return time.Now().Add(24 * time.Hour)
}

// IsDestructive returns true since expired tokens are permanently removed
func (t *TokenCleanupTask) IsDestructive() bool {
	return true
}
