package database

import (
	_ "embed"
	"fmt"
	"strings"

	"briefly-server/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

//go:embed up.sql
var upSQL string

// AutoMigrate cannot express partial indexes.
const onePendingIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_group_requests_one_pending
	ON group_requests(requester_account, group_id) WHERE status = 'pending'`

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured database. SQLite is limited to a single
// connection so the engine serializes writers for us.
func Open(driver, uri string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	switch driver {
	case DriverSQLite, "":
		db, err := gorm.Open(sqlite.Open(sqliteDSN(uri)), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", uri, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case DriverPostgres:
		db, err := gorm.Open(postgres.Open(uri), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func sqliteDSN(uri string) string {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Migrate brings the schema up to date. SQLite runs the embedded up.sql
// script; postgres falls back to gorm AutoMigrate.
func Migrate(db *gorm.DB, driver string) error {
	if driver == DriverPostgres {
		err := db.AutoMigrate(
			&models.Account{},
			&models.LawyerAccount{},
			&models.LawyerJurisdiction{},
			&models.LawyerLabel{},
			&models.LawyerGroup{},
			&models.LawyerGroupMember{},
			&models.GroupRequest{},
			&models.GroupRequestResponse{},
			&models.GroupDocument{},
			&models.DocumentAccessLog{},
			&models.GroupMessage{},
		)
		if err != nil {
			return err
		}
		return db.Exec(onePendingIndex).Error
	}

	for _, stmt := range splitStatements(upSQL) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration statement failed: %s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
