package database

import (
	"context"
	"time"

	database "gitlab.com/aoterocom/AOOrderSync/database/models"
	"gitlab.com/aoterocom/AOOrderSync/models"
)

func (dbs *DBService) AddPendingOrder(ctx context.Context, item models.QueueItem) error {
	row := database.PendingOrderItem{
		Exchange:  item.Exchange,
		BotID:     item.BotID,
		OrderID:   item.OrderID,
		Symbol:    item.Symbol,
		CreatedAt: item.CreatedAt.UTC(),
	}
	if err := dbs.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return &models.StoreError{Op: "add pending order", Err: err}
	}
	return nil
}

func (dbs *DBService) NextPending(ctx context.Context, limit int) ([]models.QueueItem, error) {
	var rows []database.PendingOrderItem
	err := dbs.DB.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, &models.StoreError{Op: "read pending orders", Err: err}
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

func (dbs *DBService) MarkPendingProcessed(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := dbs.DB.WithContext(ctx).Model(&database.PendingOrderItem{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{"processed_at": at.UTC(), "details_fetched": true})
	if result.Error != nil {
		return false, &models.StoreError{Op: "mark pending order processed", Err: result.Error}
	}
	return result.RowsAffected == 1, nil
}

func (dbs *DBService) PurgeProcessedPending(ctx context.Context, before time.Time) (int64, error) {
	result := dbs.DB.WithContext(ctx).
		Where("processed_at IS NOT NULL AND processed_at < ?", before.UTC()).
		Delete(&database.PendingOrderItem{})
	if result.Error != nil {
		return 0, &models.StoreError{Op: "purge pending orders", Err: result.Error}
	}
	return result.RowsAffected, nil
}
