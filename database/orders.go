package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	database "gitlab.com/aoterocom/AOOrderSync/database/models"
	"gitlab.com/aoterocom/AOOrderSync/helpers"
	"gitlab.com/aoterocom/AOOrderSync/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const filledStatus = string(models.OrderStatusTypeFilled)

// status stays last: MySQL evaluates assignments in order and the guard reads it.
var orderUpdateColumns = []string{
	"symbol", "client_order_id", "price", "orig_quantity", "executed_quantity",
	"cumulative_quote_quantity", "type", "side", "time", "update_time", "updated_at", "status",
}

// orderConflict builds the upsert clause. The FILLED guard is part of the
// statement, so a concurrent writer cannot slip a FILLED record in between a
// check and the write.
func orderConflict(dialect string) clause.OnConflict {
	columns := []clause.Column{{Name: "exchange"}, {Name: "order_id"}}
	if dialect == "mysql" {
		assignments := make([]clause.Assignment, 0, len(orderUpdateColumns))
		for _, name := range orderUpdateColumns {
			column := clause.Column{Name: name}
			assignments = append(assignments, clause.Assignment{
				Column: column,
				Value: gorm.Expr("IF(status = ? AND VALUES(status) <> ?, ?, VALUES(?))",
					filledStatus, filledStatus, column, column),
			})
		}
		return clause.OnConflict{Columns: columns, DoUpdates: assignments}
	}
	return clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(orderUpdateColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("orders.status <> ? OR excluded.status = ?", filledStatus, filledStatus),
		}},
	}
}

// UpsertOrder inserts or refreshes an order. A stored FILLED order never moves
// back to another status; such updates are ignored.
func (dbs *DBService) UpsertOrder(ctx context.Context, order models.Order) error {
	return upsertOrder(dbs.DB.WithContext(ctx), order)
}

func upsertOrder(db *gorm.DB, order models.Order) error {
	row := toDBOrder(order)
	result := db.Clauses(orderConflict(db.Dialector.Name())).Create(&row)
	if result.Error != nil {
		return &models.StoreError{Op: "upsert order", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		helpers.Logger.Debugln(fmt.Sprintf("%s update for order %d left the stored record unchanged", order.Status, order.OrderID))
	}
	return nil
}

// UpsertOrders stores all orders or none of them.
func (dbs *DBService) UpsertOrders(ctx context.Context, orders []models.Order) error {
	err := dbs.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, order := range orders {
			if err := upsertOrder(tx, order); err != nil {
				return err
			}
		}
		return nil
	})
	var storeErr *models.StoreError
	if err != nil && !errors.As(err, &storeErr) {
		return &models.StoreError{Op: "upsert orders", Err: err}
	}
	return err
}

func (dbs *DBService) GetOrder(ctx context.Context, exchange string, orderId int64) (models.Order, error) {
	var row database.Order
	err := dbs.DB.WithContext(ctx).Where("exchange = ? AND order_id = ?", exchange, orderId).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Order{}, &models.NotFoundError{Entity: "order", Key: exchange + "/" + strconv.FormatInt(orderId, 10)}
	}
	if err != nil {
		return models.Order{}, &models.StoreError{Op: "read order", Err: err}
	}
	return toModelOrder(row), nil
}

// FindOrders lists stored orders. Empty filters match everything.
func (dbs *DBService) FindOrders(ctx context.Context, exchange string, symbol string) ([]models.Order, error) {
	query := dbs.DB.WithContext(ctx).Order("update_time asc, order_id asc")
	if exchange != "" {
		query = query.Where("exchange = ?", exchange)
	}
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	var rows []database.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, &models.StoreError{Op: "find orders", Err: err}
	}
	orders := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, toModelOrder(row))
	}
	return orders, nil
}

func (dbs *DBService) InsertOrder(ctx context.Context, order models.Order) error {
	row := toDBOrder(order)
	if err := dbs.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return &models.StoreError{Op: "insert order", Err: err}
	}
	return nil
}

func (dbs *DBService) DeleteOrder(ctx context.Context, exchange string, orderId int64) error {
	err := dbs.DB.WithContext(ctx).
		Where("exchange = ? AND order_id = ?", exchange, orderId).
		Delete(&database.Order{}).Error
	if err != nil {
		return &models.StoreError{Op: "delete order", Err: err}
	}
	return nil
}

// ReplaceOrder swaps the stored representation of an order in two steps.
// When the insert fails the original is put back and the insert error is
// returned whether or not the rollback succeeded.
func (dbs *DBService) ReplaceOrder(ctx context.Context, original models.Order, replacement models.Order) error {
	if err := dbs.DeleteOrder(ctx, original.Exchange, original.OrderID); err != nil {
		return err
	}
	insertErr := dbs.InsertOrder(ctx, replacement)
	if insertErr == nil {
		return nil
	}
	if rollbackErr := dbs.InsertOrder(ctx, original); rollbackErr != nil {
		helpers.Logger.WithFields(map[string]interface{}{
			"exchange": original.Exchange,
			"orderId":  original.OrderID,
		}).Errorln("rollback of replaced order failed: " + rollbackErr.Error())
	}
	return insertErr
}

func toDBOrder(order models.Order) database.Order {
	return database.Order{
		Exchange:                order.Exchange,
		OrderID:                 order.OrderID,
		Symbol:                  order.Symbol,
		ClientOrderID:           order.ClientOrderID,
		Price:                   order.Price,
		OrigQuantity:            order.OrigQuantity,
		ExecutedQuantity:        order.ExecutedQuantity,
		CumulativeQuoteQuantity: order.CummulativeQuoteQuantity,
		Status:                  database.OrderStatusType(order.Status),
		Type:                    database.OrderType(order.Type),
		Side:                    database.SideType(order.Side),
		Time:                    order.Time,
		UpdateTime:              order.UpdateTime,
	}
}

func toModelOrder(row database.Order) models.Order {
	return models.NewOrder(row.Exchange, row.Symbol, row.OrderID, row.ClientOrderID, row.Price, row.OrigQuantity,
		row.ExecutedQuantity, row.CumulativeQuoteQuantity, models.OrderStatusType(row.Status),
		models.OrderType(row.Type), models.SideType(row.Side), row.Time, row.UpdateTime)
}
