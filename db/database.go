package db

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Options selects between a local sqlite file and a remote Turso database
type Options struct {
	Path        string
	TursoURL    string
	TursoToken  string
	Environment string
}

// Initialize sets up the global database connection
func Initialize(opts Options) error {
	conn, err := Open(opts)
	if err != nil {
		return err
	}
	DB = conn
	return nil
}

// Open connects to Turso when a URL is configured, otherwise to the local
// sqlite file with WAL mode for concurrency.
func Open(opts Options) (*gorm.DB, error) {
	logLevel := logger.Info
	if opts.Environment == "production" {
		logLevel = logger.Warn
	}

	var dialector gorm.Dialector
	if opts.TursoURL != "" {
		dsn := opts.TursoURL
		if opts.TursoToken != "" {
			dsn = fmt.Sprintf("%s?authToken=%s", opts.TursoURL, opts.TursoToken)
		}
		dialector = sqlite.New(sqlite.Config{DriverName: "libsql", DSN: dsn})
	} else {
		dialector = sqlite.Open(opts.Path + "?_journal_mode=WAL&_busy_timeout=5000")
	}

	conn, err := gorm.Open(dialector, Config(logger.Default.LogMode(logLevel)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.TursoURL != "" {
		log.Println("Database connection established (Turso)")
	} else {
		log.Println("Database connection established (WAL mode enabled)")
	}
	return conn, nil
}

// Config is the gorm configuration shared by the server and tests. All
// timestamps are stored in UTC so text comparisons in sqlite stay ordered.
func Config(l logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger:         l,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// AutoMigrate runs database migrations for the provided models
func AutoMigrate(models ...interface{}) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed")
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}

// OpenInMemory opens an isolated in-memory database. A single connection is
// used so goroutines writing concurrently serialize instead of hitting
// shared-cache table locks.
func OpenInMemory() (*gorm.DB, error) {
	name := "mem_" + uuid.New().String()
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared&_busy_timeout=5000"), Config(logger.Default.LogMode(logger.Silent)))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return conn, nil
}
