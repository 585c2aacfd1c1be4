package database

import (
	"context"
	"time"

	database "gitlab.com/aoterocom/AOOrderSync/database/models"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

func (dbs *DBService) EnqueueFilledOrders(ctx context.Context, items []models.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]database.FilledOrderQueueItem, 0, len(items))
	for _, item := range items {
		rows = append(rows, database.FilledOrderQueueItem{
			Exchange:       item.Exchange,
			BotID:          item.BotID,
			OrderID:        item.OrderID,
			Symbol:         item.Symbol,
			DetailsFetched: false,
			CreatedAt:      item.CreatedAt.UTC(),
		})
	}
	if err := dbs.DB.WithContext(ctx).Create(&rows).Error; err != nil {
		return &models.StoreError{Op: "enqueue filled orders", Err: err}
	}
	return nil
}

// NextUnprocessed returns up to limit unprocessed items, oldest first.
func (dbs *DBService) NextUnprocessed(ctx context.Context, limit int) ([]models.QueueItem, error) {
	var rows []database.FilledOrderQueueItem
	err := dbs.DB.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, &models.StoreError{Op: "read filled order queue", Err: err}
	}
	items := make([]models.QueueItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, models.QueueItem{
			ID: row.ID, Exchange: row.Exchange, BotID: row.BotID, OrderID: row.OrderID, Symbol: row.Symbol,
			DetailsFetched: row.DetailsFetched, CreatedAt: row.CreatedAt, ProcessedAt: row.ProcessedAt,
		})
	}
	return items, nil
}

// MarkProcessed sets processedAt and detailsFetched together. It reports false
// when the item was already processed or no longer exists.
func (dbs *DBService) MarkProcessed(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := dbs.DB.WithContext(ctx).Model(&database.FilledOrderQueueItem{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{"processed_at": at.UTC(), "details_fetched": true})
	if result.Error != nil {
		return false, &models.StoreError{Op: "mark queue item processed", Err: result.Error}
	}
	return result.RowsAffected == 1, nil
}

func (dbs *DBService) PurgeProcessed(ctx context.Context, before time.Time) (int64, error) {
	result := dbs.DB.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", before.UTC()).
		Delete(&database.FilledOrderQueueItem{})
	if result.Error != nil {
		return 0, &models.StoreError{Op: "purge filled order queue", Err: result.Error}
	}
	return result.RowsAffected, nil
}
