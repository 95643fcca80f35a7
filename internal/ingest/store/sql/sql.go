package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/labstack/gommon/random"
	_ "github.com/lib/pq" // nolint: revive // required for postgres driver
	"github.com/spf13/viper"
	_ "modernc.org/sqlite" // nolint: revive // required for sqlite driver

	"github.com/fall-guy/volquery/internal/ingest/store"
)

const (
	postgresEngine     = "postgres"
	sqliteEngine       = "sqlite"
	sqliteMemoryEngine = "sqlite_memory"
)

// SQL implements store.Store against postgres or sqlite. The sqlite engines
// match the original deployment and back the test suite; postgres follows the
// same schema with its own DDL dialect.
type SQL struct {
	db     *sql.DB
	engine string
	now    func() time.Time
	logger *slog.Logger
}

func WithNow(nowFunc func() time.Time) func(*SQL) {
	return func(s *SQL) {
		s.now = nowFunc
	}
}

func WithLogger(logger *slog.Logger) func(*SQL) {
	return func(s *SQL) {
		s.logger = logger
	}
}

func New(engine string, opts ...func(*SQL)) (*SQL, error) {
	s := &SQL{
		engine: engine,
		now:    time.Now,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	var db *sql.DB
	var err error
	var memory bool

	switch engine {
	case postgresEngine:
		db, err = openPostgres()
		if err != nil {
			return nil, err
		}

	case sqliteMemoryEngine:
		memory = true
		fallthrough
	case sqliteEngine:
		var filename string
		if memory {
			filename = fmt.Sprintf("file:%s?mode=memory&cache=shared", random.String(16))
		} else {
			folder := viper.GetString("dataFolder")
			if folder == "" {
				return nil, errors.New("setting dataFolder not found")
			}
			if err = os.MkdirAll(folder, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data folder %s: %w", folder, err)
			}

			filename, err = filepath.Abs(path.Join(folder, "volquery.db"))
			if err != nil {
				return nil, fmt.Errorf("failed to get absolute path for sqlite DB: %w", err)
			}

			filename = fmt.Sprintf("%s?cache=shared&_pragma=busy_timeout=10000&_pragma=journal_mode=WAL", filename)
		}

		s.logger.Info("Using sqlite DB", slog.String("file", filename))

		db, err = sql.Open("sqlite", filename)
		if err != nil {
			return nil, errors.Join(store.ErrFailedToOpenDB, err)
		}

		// a single connection keeps the shared in-memory database alive and
		// sidesteps sqlite writer contention
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not enable foreign keys support: %w", err)
		}

	default:
		return nil, errors.Join(store.ErrUnknownEngine, fmt.Errorf("engine: %s", engine))
	}

	s.db = db

	if err = createSchema(db, engine); err != nil {
		_ = db.Close()
		return nil, errors.Join(store.ErrFailedToCreateSchema, err)
	}

	return s, nil
}

func openPostgres() (*sql.DB, error) {
	dbHost := viper.GetString("db.postgres.host")
	dbPort := viper.GetInt("db.postgres.port")
	dbName := viper.GetString("db.postgres.name")
	dbUser := viper.GetString("db.postgres.user")
	dbPassword := viper.GetString("db.postgres.password")
	sslMode := viper.GetString("db.postgres.sslMode")
	if dbHost == "" || dbPort == 0 || dbName == "" || dbUser == "" {
		return nil, errors.New("incomplete db.postgres settings")
	}
	if sslMode == "" {
		sslMode = "disable"
	}

	dbInfo := fmt.Sprintf("user=%s password=%s dbname=%s sslmode=%s host=%s port=%d", dbUser, dbPassword, dbName, sslMode, dbHost, dbPort)
	db, err := sql.Open("postgres", dbInfo)
	if err != nil {
		return nil, errors.Join(store.ErrFailedToOpenDB, err)
	}

	db.SetMaxIdleConns(viper.GetInt("db.postgres.maxIdleConns"))
	db.SetMaxOpenConns(viper.GetInt("db.postgres.maxOpenConns"))

	return db, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) Ping(ctx context.Context) error {
	r, err := s.db.QueryContext(ctx, "SELECT 1;")
	if err != nil {
		return err
	}

	return r.Close()
}

func createSchema(db *sql.DB, engine string) error {
	serialPK := "BIGSERIAL PRIMARY KEY"
	if engine != postgresEngine {
		serialPK = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS blocks (
		 height    BIGINT PRIMARY KEY
		,tx_count  BIGINT NOT NULL DEFAULT 0
		,block     TEXT
		,found     BOOLEAN NOT NULL DEFAULT FALSE
		,ingested  BOOLEAN NOT NULL DEFAULT FALSE
		);`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS nonces (
		 id      %s
		,origin  BIGINT NOT NULL DEFAULT 0
		,closed  BIGINT NOT NULL DEFAULT 0
		);`, serialPK),

		`CREATE TABLE IF NOT EXISTS offers (
		 offer_id       TEXT PRIMARY KEY
		,seller         BIGINT
		,assets         TEXT
		,minimum_price  BIGINT NOT NULL DEFAULT 0
		,expiration     TEXT
		,origin_nonce   BIGINT NOT NULL DEFAULT 0
		,closed_nonce   BIGINT NOT NULL DEFAULT 0
		,closed         TEXT
		);`,

		`CREATE INDEX IF NOT EXISTS ix_offers_seller ON offers (seller);`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS offer_assets (
		 id        %s
		,offer_id  TEXT NOT NULL REFERENCES offers (offer_id)
		,asset_id  TEXT NOT NULL
		,type      TEXT NOT NULL
		);`, serialPK),

		`CREATE INDEX IF NOT EXISTS ix_offer_assets_type ON offer_assets (type);`,
		`CREATE INDEX IF NOT EXISTS ix_offer_assets_offer ON offer_assets (offer_id);`,

		`CREATE TABLE IF NOT EXISTS assets (
		 asset_id   TEXT PRIMARY KEY
		,owner      BIGINT
		,height     BIGINT NOT NULL DEFAULT 0
		,stamp_on   BIGINT NOT NULL DEFAULT 0
		,stamp_off  BIGINT NOT NULL DEFAULT 0
		,asset      TEXT
		,stamp      TEXT
		);`,

		`CREATE INDEX IF NOT EXISTS ix_assets_owner ON assets (owner);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	return nil
}
