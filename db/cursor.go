package db

import (
	"context"
	"errors"
	"fmt"
)

const syncStatusID = 1

// CursorStore persists the last fully ingested block height
type CursorStore struct {
	db          *Database
	startHeight int64
}

// NewCursorStore returns a store which seeds the cursor with startHeight the
// first time it is read
func NewCursorStore(d *Database, startHeight int64) *CursorStore {
	return &CursorStore{db: d, startHeight: startHeight}
}

func (c *CursorStore) Cursor(ctx context.Context) (int64, error) {
	status := new(SyncStatus)
	err := c.db.DB.NewSelect().Model(status).Where("id = ?", syncStatusID).Scan(ctx)
	if err == nil {
		return status.CurrentBlock, nil
	}
	if !errors.Is(notFound(err), ErrNotFound) {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}

	_, err = c.db.DB.NewInsert().
		Model(&SyncStatus{ID: syncStatusID, CurrentBlock: c.startHeight}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to seed cursor: %w", err)
	}
	if err := c.db.DB.NewSelect().Model(status).Where("id = ?", syncStatusID).Scan(ctx); err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	return status.CurrentBlock, nil
}

// AdvanceCursor overwrites the cursor with height
func (c *CursorStore) AdvanceCursor(ctx context.Context, height int64) error {
	_, err := c.db.DB.NewInsert().
		Model(&SyncStatus{ID: syncStatusID, CurrentBlock: height}).
		On("CONFLICT (id) DO UPDATE").
		Set("current_block = EXCLUDED.current_block").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to advance cursor to %d: %w", height, err)
	}
	return nil
}
