package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"uas-ingest/internal/pipeline"
)

type objectRow struct {
	DocID    string  `gorm:"primaryKey;size:512"`
	Source   string  `gorm:"index;not null"`
	ObjectID string  `gorm:"not null"`
	Type     string  `gorm:"not null"`
	Model    *string

	Lat      float64 `gorm:"not null"`
	Lon      float64 `gorm:"not null"`
	Altitude *float64
	Speed    *float64
	Heading  *float64

	LastSeen  int64     `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	Status    string    `gorm:"not null"`
	UpdatedAt time.Time
}

func (objectRow) TableName() string { return "air_traffic_objects" }

type pointRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DocID     string    `gorm:"index:idx_points_doc_ts,priority:1;size:512;not null"`
	Lat       float64   `gorm:"not null"`
	Lon       float64   `gorm:"not null"`
	Altitude  *float64
	Heading   *float64
	Speed     *float64
	Timestamp int64     `gorm:"index:idx_points_doc_ts,priority:2;not null"`
	CreatedAt time.Time
}

func (pointRow) TableName() string { return "trajectory_points" }

// SQL stores objects and points through gorm. Postgres in production,
// sqlite for single-node deployments and tests.
type SQL struct {
	db  *gorm.DB
	now func() time.Time
}

func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

func OpenSQLite(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// NewSQL migrates the schema and returns the store.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&objectRow{}, &pointRow{}); err != nil {
		return nil, err
	}
	return &SQL{db: db, now: time.Now}, nil
}

func (s *SQL) UpsertObject(ctx context.Context, u ObjectUpdate) error {
	row := objectRow{
		DocID:     u.DocID,
		Source:    u.Source,
		ObjectID:  u.ObjectID,
		Type:      u.Type,
		Model:     u.Model,
		Lat:       u.Lat,
		Lon:       u.Lon,
		Altitude:  u.Altitude,
		Speed:     u.Speed,
		Heading:   u.Heading,
		LastSeen:  u.LastSeen.UnixMilli(),
		ExpiresAt: u.ExpiresAt.UTC(),
		Status:    u.Status,
		UpdatedAt: s.now().UTC(),
	}

	cols := []string{"source", "object_id", "type", "lat", "lon", "last_seen", "expires_at", "status", "updated_at"}
	if u.Model != nil {
		cols = append(cols, "model")
	}
	if u.Altitude != nil {
		cols = append(cols, "altitude")
	}
	if u.Speed != nil {
		cols = append(cols, "speed")
	}
	if u.Heading != nil {
		cols = append(cols, "heading")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sql upsert %s: %w", u.DocID, err)
	}
	return nil
}

func (s *SQL) GetObject(ctx context.Context, docID string) (pipeline.TrafficObject, error) {
	var row objectRow
	err := s.db.WithContext(ctx).Where("doc_id = ?", docID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pipeline.TrafficObject{}, fmt.Errorf("object %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return pipeline.TrafficObject{}, fmt.Errorf("sql get %s: %w", docID, err)
	}
	return pipeline.TrafficObject{
		Source:    row.Source,
		ObjectID:  row.ObjectID,
		Type:      row.Type,
		Model:     row.Model,
		Lat:       row.Lat,
		Lon:       row.Lon,
		Altitude:  row.Altitude,
		Speed:     row.Speed,
		Heading:   row.Heading,
		LastSeen:  row.LastSeen,
		ExpiresAt: row.ExpiresAt.UTC(),
		Status:    row.Status,
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (s *SQL) AppendPoint(ctx context.Context, docID string, p pipeline.TrajectoryPoint) (string, error) {
	row := pointRow{
		ID:        uuid.New(),
		DocID:     docID,
		Lat:       p.Lat,
		Lon:       p.Lon,
		Altitude:  p.Altitude,
		Heading:   p.Heading,
		Speed:     p.Speed,
		Timestamp: p.Timestamp,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("sql append %s: %w", docID, err)
	}
	return row.ID.String(), nil
}

func (s *SQL) ListPoints(ctx context.Context, docID string) ([]pipeline.TrajectoryPoint, error) {
	var rows []pointRow
	err := s.db.WithContext(ctx).
		Where("doc_id = ?", docID).
		Clauses(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}},
			{Column: clause.Column{Name: "created_at"}},
		}}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sql list points %s: %w", docID, err)
	}
	out := make([]pipeline.TrajectoryPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, pipeline.TrajectoryPoint{
			ID:        r.ID.String(),
			Lat:       r.Lat,
			Lon:       r.Lon,
			Altitude:  r.Altitude,
			Heading:   r.Heading,
			Speed:     r.Speed,
			Timestamp: r.Timestamp,
		})
	}
	return out, nil
}

func (s *SQL) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
