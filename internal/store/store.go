// Package store writes finished series to the durable match-record
// database. It is the only persistence in the process; live session
// state never touches it.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SeriesRecord is the row written once per completed series.
type SeriesRecord struct {
	ID         string `gorm:"primaryKey"`
	SessionID  string `gorm:"index;not null"`
	Mode       string
	BestOf     int
	TeamBlue   string `gorm:"not null"`
	TeamRed    string `gorm:"not null"`
	WinsBlue   int
	WinsRed    int
	Winner     string
	FinishedAt time.Time
}

// Recorder is the narrow sink the room calls when a series ends.
type Recorder interface {
	RecordSeries(ctx context.Context, rec SeriesRecord) error
}

// Postgres persists series records through GORM.
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SeriesRecord{}); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) RecordSeries(ctx context.Context, rec SeriesRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return p.db.WithContext(ctx).Create(&rec).Error
}

// Noop drops records; used when no database is configured.
type Noop struct{}

func (Noop) RecordSeries(context.Context, SeriesRecord) error { return nil }
