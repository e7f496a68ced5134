package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahana/importer/internal/config"
	"github.com/sahana/importer/internal/entities"
)

// registryModels are the tables the import pipeline itself owns.
var registryModels = []any{
	&entities.ImportJob{},
	&entities.ImportLine{},
	&entities.JobEvent{},
}

// domainModels are the target tables imports write into.
var domainModels = []any{
	&entities.Organisation{},
	&entities.Office{},
	&entities.ItemCategory{},
	&entities.SupplyItem{},
}

type Database struct {
	DB     *gorm.DB
	Driver string
}

// NewDatabase opens the store for the given driver and migrates every table.
func NewDatabase(driver, dsn string) (*Database, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &Database{DB: db, Driver: driver}, nil
}

// Dialector picks the gorm dialect for a DATABASE_DRIVER value.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case config.DriverSQLite, "":
		return sqlite.Open(sqliteDSN(dsn)), nil
	case config.DriverPostgres:
		return postgres.Open(dsn), nil
	case config.DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates the registry and domain tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(registryModels...); err != nil {
		return fmt.Errorf("failed to migrate registry tables: %w", err)
	}
	if err := db.AutoMigrate(domainModels...); err != nil {
		return fmt.Errorf("failed to migrate domain tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqliteDSN turns on foreign keys so line rows follow their job on delete.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}
