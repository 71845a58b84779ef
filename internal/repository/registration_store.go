package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by Get for an unknown request id.
var ErrNotFound = errors.New("registration not found")

// RegistrationStatus is one row per registration request.
type RegistrationStatus struct {
	RequestID string    `gorm:"primaryKey" json:"request_id"`
	DeviceID  string    `gorm:"index" json:"device_id"`
	PushType  string    `json:"push_type"`
	Channels  string    `json:"channels"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegistrationStore struct {
	db        *gorm.DB
	tableName string
}

// NewRegistrationStore migrates tableName and returns a store bound to it.
func NewRegistrationStore(db *gorm.DB, tableName string) (*RegistrationStore, error) {
	if tableName == "" {
		tableName = "push_registrations"
	}
	if err := db.Table(tableName).AutoMigrate(&RegistrationStatus{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", tableName, err)
	}
	return &RegistrationStore{
		db:        db,
		tableName: tableName,
	}, nil
}

// UpdateStatus inserts rec or overwrites the row with the same request id.
func (s *RegistrationStore) UpdateStatus(ctx context.Context, rec RegistrationStatus) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"device_id", "push_type", "channels", "status", "detail", "updated_at"}),
		}).Create(&rec).Error
}

// Get returns the latest status recorded for requestID.
func (s *RegistrationStore) Get(ctx context.Context, requestID string) (*RegistrationStatus, error) {
	var rec RegistrationStatus
	err := s.db.WithContext(ctx).Table(s.tableName).
		Where("request_id = ?", requestID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
