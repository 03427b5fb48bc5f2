package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/ccdc/internal/log"
	"go.uber.org/zap"
)

// newLogger routes GORM's statement logging through zap
func newLogger() logger.Interface {
	return logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)
}

// CreateConnection opens a GORM connection to a TimescaleDB (postgres) database
func CreateConnection(connectionString string) (*gorm.DB, error) {
	return Open(postgres.Open(connectionString))
}

// Open opens a GORM connection over any dialector with the standard logger
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger()})
	if err != nil {
		log.Warn("warning: unable to create a TimescaleDB connection:", err)
		return nil, err
	}
	log.Info("TimescaleDB connection successful")

	return db, nil
}
