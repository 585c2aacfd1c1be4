package database

import (
	"fmt"

	database "gitlab.com/aoterocom/AOOrderSync/database/models"
	"gitlab.com/aoterocom/AOOrderSync/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DBService struct {
	DB *gorm.DB
}

func MySQLDSN(dbHost string, dbPort string, dbName string, dbUser string, dbPass string) string {
	return dbUser + ":" + dbPass + "@tcp(" + dbHost + ":" + dbPort + ")/" + dbName + "?charset=utf8mb4&parseTime=True&loc=UTC"
}

// NewDBService opens the store with the given driver ("mysql" or "sqlite") and
// migrates the schema.
func NewDBService(driver string, dsn string) (*DBService, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, &models.ValidationError{Field: "databaseDriver", Reason: fmt.Sprintf("unsupported driver %q", driver)}
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, &models.StoreError{Op: "open", Err: err}
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, &models.StoreError{Op: "open", Err: err}
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	dbs := &DBService{
		DB: db,
	}

	err = dbs.DB.AutoMigrate(&database.Order{}, &database.FilledOrderQueueItem{}, &database.PendingOrderItem{})
	if err != nil {
		return nil, &models.StoreError{Op: "migrate", Err: err}
	}

	return dbs, nil
}

func (dbs *DBService) Close() error {
	sqlDB, err := dbs.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
