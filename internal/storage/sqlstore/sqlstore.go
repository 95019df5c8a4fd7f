// internal/storage/sqlstore/sqlstore.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage"
	"github.com/hieutrtr/blockchain-practices-sub001/internal/storage/models"
)

const (
	pgForeignKeyViolation    = "23503"
	mysqlForeignKeyViolation = 1452

	migrationLockID   = 101
	migrationLockName = "block_indexer_migrate"
)

// ErrMigrationLocked возвращается, когда миграцию уже выполняет другой процесс
var ErrMigrationLocked = errors.New("another migration is in progress")

// Options задает параметры пула соединений
type Options struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// LogSQL включает трассировку запросов в debug-лог
	LogSQL bool
}

// DefaultOptions возвращает настройки пула по умолчанию
func DefaultOptions() Options {
	return Options{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
	}
}

// sqlStorage реализует storage.Storage поверх gorm (postgres или mysql)
type sqlStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Storage = (*sqlStorage)(nil)

// NewStorage открывает соединение с базой. Драйвер выбирается по схеме DSN:
// postgres:// и postgresql:// для postgres, mysql:// для mysql/TiDB.
func NewStorage(dsn string, opts Options, zapLogger *zap.Logger) (storage.Storage, error) {
	dialector, err := openDialector(dsn)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if opts.LogSQL {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm"), level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Настройка пула соединений
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	zapLogger.Info("Connected to database", zap.String("driver", dialector.Name()))

	return &sqlStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

// openDialector выбирает драйвер gorm по DSN
func openDialector(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "mysql://"):
		cfg, err := mysqldriver.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		// Колонки времени должны читаться как time.Time
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return mysql.Open(cfg.FormatDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database dsn scheme: %q", schemeOf(dsn))
	}
}

func schemeOf(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i]
	}
	return ""
}

// RunMigrations создает таблицы через AutoMigrate под межпроцессной блокировкой
func (s *sqlStorage) RunMigrations(ctx context.Context) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		unlock, err := s.acquireMigrationLock(conn)
		if err != nil {
			return err
		}
		defer unlock()

		if err := conn.AutoMigrate(
			&models.Block{},
			&models.Transaction{},
			&models.IngestionRun{},
		); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		s.logger.Info("Migrations applied")
		return nil
	})
}

// acquireMigrationLock берет advisory lock на выделенном соединении
func (s *sqlStorage) acquireMigrationLock(conn *gorm.DB) (func(), error) {
	var lockObtained bool
	var release string

	switch conn.Dialector.Name() {
	case "postgres":
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		release = fmt.Sprintf("SELECT pg_advisory_unlock(%d)", migrationLockID)
	case "mysql":
		var got sql.NullInt64
		if err := conn.Raw("SELECT GET_LOCK(?, 0)", migrationLockName).Scan(&got).Error; err != nil {
			return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		lockObtained = got.Valid && got.Int64 == 1
		release = fmt.Sprintf("SELECT RELEASE_LOCK('%s')", migrationLockName)
	default:
		return func() {}, nil
	}

	if !lockObtained {
		return nil, ErrMigrationLocked
	}
	return func() {
		if err := conn.Exec(release).Error; err != nil {
			s.logger.Warn("Failed to release migration lock", zap.Error(err))
		}
	}, nil
}

// SaveBlock вставляет блок, конфликт по номеру или хэшу игнорируется
func (s *sqlStorage) SaveBlock(ctx context.Context, block *models.Block) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(block).Error
	return classify("save_block", err)
}

// SaveTransaction вставляет транзакцию, конфликт по хэшу игнорируется
func (s *sqlStorage) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(tx).Error
	return classify("save_transaction", err)
}

// Summary считает блоки и транзакции и границы диапазона номеров
func (s *sqlStorage) Summary(ctx context.Context) (*storage.Summary, error) {
	db := s.db.WithContext(ctx)
	summary := &storage.Summary{}

	if err := db.Model(&models.Block{}).Count(&summary.TotalBlocks).Error; err != nil {
		return nil, storage.Wrap("summary", err)
	}
	if err := db.Model(&models.Transaction{}).Count(&summary.TotalTransactions).Error; err != nil {
		return nil, storage.Wrap("summary", err)
	}

	var bounds struct {
		Latest sql.NullInt64
		Oldest sql.NullInt64
	}
	err := db.Model(&models.Block{}).
		Select("MAX(number) AS latest, MIN(number) AS oldest").
		Scan(&bounds).Error
	if err != nil {
		return nil, storage.Wrap("summary", err)
	}
	if bounds.Latest.Valid {
		latest := uint64(bounds.Latest.Int64)
		summary.LatestBlock = &latest
	}
	if bounds.Oldest.Valid {
		oldest := uint64(bounds.Oldest.Int64)
		summary.OldestBlock = &oldest
	}

	return summary, nil
}

// SaveRun пишет запись аудита о запуске
func (s *sqlStorage) SaveRun(ctx context.Context, run *models.IngestionRun) error {
	return classify("save_run", s.db.WithContext(ctx).Create(run).Error)
}

// Close закрывает пул соединений
func (s *sqlStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify переводит ошибки драйверов в ошибки хранилища.
// Нарушение внешнего ключа означает, что блока транзакции нет в базе.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return storage.Wrap(op, fmt.Errorf("%w: %s", storage.ErrUnknownBlock, pgErr.ConstraintName))
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlForeignKeyViolation {
		return storage.Wrap(op, fmt.Errorf("%w: %s", storage.ErrUnknownBlock, myErr.Message))
	}

	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return storage.Wrap(op, storage.ErrUnknownBlock)
	}

	return storage.Wrap(op, err)
}
