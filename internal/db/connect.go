package db

import (
	"errors"
	"fmt"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/zulandar/panoramix/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormConfig is shared by every connection. TranslateError maps driver
// unique violations to gorm.ErrDuplicatedKey.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

// DSN builds a MySQL DSN for a MySQL-compatible server such as Dolt.
// An empty database selects no schema, as needed for CREATE DATABASE.
func DSN(host string, port int, user, password, database string) string {
	cfg := mysqldrv.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Connect opens a GORM connection to a MySQL-compatible database.
func Connect(host string, port int, user, password, database string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(host, port, user, password, database)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return db, nil
}

// ConnectAdmin opens a GORM connection to the server without selecting
// a specific database, used for CREATE DATABASE operations.
func ConnectAdmin(host string, port int, user, password string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(DSN(host, port, user, password, "")), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", host, port, err)
	}
	return db, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file. SQLite
// allows a single writer, so the pool is capped at one connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	if err := limitConns(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory SQLite database with every table
// migrated. Used by tests and dry runs.
func OpenMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open memory: %w", err)
	}
	// Each :memory: connection is its own database.
	if err := limitConns(db); err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func limitConns(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db: sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// Open connects to the store selected by cfg.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql":
		return Connect(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
}

// DropDatabase drops the named database if it exists.
func DropDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("DROP DATABASE IF EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: drop database %s: %w", name, err)
	}
	return nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldrv.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
