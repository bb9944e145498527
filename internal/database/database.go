package database

import (
	"time"

	"fitrank/backend/internal/logging"
	"fitrank/backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm's own logging through logrus.
func GormLogger(log *logrus.Logger) logger.Interface {
	return logger.New(
		logging.GormWriter{Entry: log.WithField("component", "gorm")},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)
}

// Open connects to postgres and runs migrations.
func Open(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         GormLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Database connection established.")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("Database migrated successfully.")
	return db, nil
}

// Migrate creates or updates every table the core owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.OutgoingRequest{},
		&models.IncomingRequest{},
		&models.Friendship{},
		&models.Block{},
		&models.Event{},
		&models.CategoryProgress{},
		&models.Workout{},
	)
}
