package database

import (
	"time"

	"gorm.io/gorm"
)

// InstanceSettings is the persisted configuration of one backend instance.
// Name is "ebooks" or "audiobooks".
type InstanceSettings struct {
	Name             string    `gorm:"primaryKey" json:"name"`
	BaseURL          string    `json:"base_url"`
	APIKeyEncrypted  string    `json:"-"`
	RootFolderPath   string    `json:"root_folder_path"`
	QualityProfileID int       `json:"quality_profile_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName keeps the table name stable regardless of GORM naming strategy
func (InstanceSettings) TableName() string {
	return "instance_settings"
}

// BeforeCreate hook for InstanceSettings
func (s *InstanceSettings) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	return nil
}

// BeforeUpdate hook for InstanceSettings
func (s *InstanceSettings) BeforeUpdate(tx *gorm.DB) error {
	s.UpdatedAt = time.Now()
	return nil
}
