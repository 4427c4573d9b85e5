package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/internal/model"
	"github.com/OCAP2/vehicles/internal/vehicle"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Manager handles database connections and operations.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	Logger          zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		IsValid:         false,
		ShouldSaveLocal: false,
		Logger:          log,
	}
}

// Connect establishes a database connection, falling back to in-memory SQLite
// if Postgres fails.
func (m *Manager) Connect(cfg config.PostgresConfig) error {
	var err error

	m.Logger.Debug().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Connecting to Postgres DB")
	m.DB, err = OpenPostgres(cfg)
	if err == nil {
		m.SqlDB, err = m.DB.DB()
	}
	if err == nil {
		err = m.SqlDB.Ping()
	}
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
		return m.fallback()
	}

	m.Logger.Info().Msg("Connected to database")
	m.IsValid = true
	m.SqlDB.SetMaxOpenConns(10)
	return nil
}

func (m *Manager) fallback() error {
	var err error
	m.ShouldSaveLocal = true
	m.DB, err = OpenSqlite("")
	if err != nil || m.DB == nil {
		m.IsValid = false
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	m.SqlDB, err = m.DB.DB()
	if err != nil {
		m.IsValid = false
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	m.Logger.Info().Msg("Using local SQLite DB in memory")
	m.IsValid = true
	return nil
}

// Setup migrates tables and records the vehicle format version.
func (m *Manager) Setup() error {
	if m.DB == nil {
		return errors.New("db not connected")
	}

	m.Logger.Info().Msg("Migrating schema")
	stored, err := Migrate(m.DB)
	if err != nil {
		m.IsValid = false
		return err
	}
	if stored != vehicle.FormatVersion {
		m.Logger.Warn().
			Int32("stored", stored).
			Int32("current", vehicle.FormatVersion).
			Msg("Database holds vehicles from another format version; they will fail to load")
	}

	m.Logger.Info().Msg("Database setup complete")
	return nil
}

func gormConfig(batch int, prepare bool) *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            prepare,
		SkipDefaultTransaction: true,
		CreateBatchSize:        batch,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// OpenPostgres returns a connection to the Postgres database.
func OpenPostgres(cfg config.PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), gormConfig(1000, false))
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSqlite returns a connection to a SQLite database.
// If path is empty, uses a private in-memory database.
func OpenSqlite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:vehicles-%s?mode=memory&cache=shared", uuid.NewString())
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(500, true))
	if err != nil {
		return nil, err
	}

	// One connection keeps the in-memory database alive and serialises
	// writers with dumps.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	// set PRAGMAS
	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// Migrate creates the schema and returns the vehicle format version recorded
// for this database. A fresh database records the current version.
func Migrate(db *gorm.DB) (int32, error) {
	if db.Name() == "postgres" {
		if err := db.Exec(`CREATE Extension IF NOT EXISTS postgis;`).Error; err != nil {
			return 0, fmt.Errorf("failed to create PostGIS Extension: %w", err)
		}
	}

	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return 0, fmt.Errorf("failed to migrate schema: %w", err)
	}

	var info model.SchemaInfo
	err := db.Order("id").First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		info = model.SchemaInfo{FormatVersion: vehicle.FormatVersion}
		if err := db.Create(&info).Error; err != nil {
			return 0, fmt.Errorf("failed to create schema_info entry: %w", err)
		}
		return info.FormatVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema_info: %w", err)
	}
	return info.FormatVersion, nil
}

// DumpToDisk vacuums the database into a file, replacing any earlier dump.
func DumpToDisk(db *gorm.DB, path string) (time.Duration, error) {
	if path == "" {
		return 0, errors.New("sqlite dump path not set")
	}

	// remove existing file if it exists
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return 0, fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	start := time.Now()
	if err := db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return 0, fmt.Errorf("error dumping DB to disk: %w", err)
	}
	return time.Since(start), nil
}
