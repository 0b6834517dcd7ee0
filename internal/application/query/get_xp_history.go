package query

import (
	"context"
	"time"

	"github.com/neuroboost/progress-engine/internal/application/gamification"
	"github.com/neuroboost/progress-engine/internal/domain/shared"
)

// GetXPHistoryQuery asks for the latest ledger entries of a user.
type GetXPHistoryQuery struct {
	UserID string
	// Limit - number of entries, 20 if zero, at most 100.
	Limit int
}

// XPHistoryEntry is one ledger line.
type XPHistoryEntry struct {
	ID          string    `json:"id"`
	Amount      int       `json:"amount"`
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetXPHistoryHandler handles the GetXPHistoryQuery.
type GetXPHistoryHandler struct {
	repos gamification.Scope
}

// NewGetXPHistoryHandler creates a new handler.
func NewGetXPHistoryHandler(repos gamification.Scope) *GetXPHistoryHandler {
	return &GetXPHistoryHandler{repos: repos}
}

// Handle executes the query. Entries are newest first.
func (h *GetXPHistoryHandler) Handle(ctx context.Context, q GetXPHistoryQuery) ([]XPHistoryEntry, error) {
	uid, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}

	entries, err := h.repos.Ledger().ListRecent(ctx, uid.String(), limit)
	if err != nil {
		return nil, shared.StorageError("progress", "ListRecent", err)
	}

	out := make([]XPHistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = XPHistoryEntry{
			ID:          e.ID,
			Amount:      e.Amount.Int(),
			Source:      e.Source.String(),
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		}
	}
	return out, nil
}
