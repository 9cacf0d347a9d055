package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ConnectorConfig struct {
	Host     string
	Port     string
	Username string
	DbName   string
	Password string
	SslMode  string
}

func (c ConnectorConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s password=%s", c.Host, c.Port, c.Username, c.DbName, c.SslMode, c.Password)
}

type ConnectorFunc func() (*gorm.DB, zerolog.Logger, error)

// NewSQLiteConnector opens a private in-memory database. The pool is capped
// at one connection since every new sqlite memory connection is a new database.
func NewSQLiteConnector(log zerolog.Logger) ConnectorFunc {
	return func() (*gorm.DB, zerolog.Logger, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
			Logger:          logger.Default.LogMode(logger.Silent),
			CreateBatchSize: 1000,
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
			sqldb, _ := db.DB()
			sqldb.SetMaxOpenConns(1)
		}

		return db, log, err
	}
}

const connectAttempts int = 5

func NewPostgreSQLConnector(log zerolog.Logger, cfg ConnectorConfig) ConnectorFunc {
	return func() (*gorm.DB, zerolog.Logger, error) {
		sublogger := log.With().Str("host", cfg.Host).Str("database", cfg.DbName).Logger()

		var err error

		for attempt := 1; attempt <= connectAttempts; attempt++ {
			sublogger.Info().Int("attempt", attempt).Msg("connecting to database host")

			var db *gorm.DB
			db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
				Logger: logger.New(
					&sublogger,
					logger.Config{
						SlowThreshold:             time.Second,
						LogLevel:                  logger.Warn,
						IgnoreRecordNotFoundError: true,
						Colorful:                  false,
					},
				),
			})
			if err == nil {
				return db, sublogger, nil
			}

			sublogger.Error().Err(err).Msg("failed to connect to database")
			time.Sleep(3 * time.Second)
		}

		return nil, sublogger, fmt.Errorf("unable to connect to database after %d attempts: %w", connectAttempts, err)
	}
}
