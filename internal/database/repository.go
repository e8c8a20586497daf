package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drallgood/bookrequest/internal/crypto"
	"github.com/drallgood/bookrequest/internal/logger"
)

// ErrNotFound is returned when no settings row exists for an instance
var ErrNotFound = errors.New("instance settings not found")

// Repository provides database operations for instance settings
type Repository struct {
	db        *Database
	encryptor *crypto.EncryptionManager
	logger    *logger.Logger
}

// NewRepository creates a new repository instance
func NewRepository(db *Database, encryptor *crypto.EncryptionManager, log *logger.Logger) *Repository {
	return &Repository{
		db:        db,
		encryptor: encryptor,
		logger:    log,
	}
}

// InstanceWithKey is an instance row with its API key decrypted
type InstanceWithKey struct {
	Name             string
	BaseURL          string
	APIKey           string
	RootFolderPath   string
	QualityProfileID int
}

// GetInstance returns the decrypted settings for one instance
func (r *Repository) GetInstance(name string) (*InstanceWithKey, error) {
	var row InstanceSettings
	if err := r.db.GetDB().First(&row, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instance settings: %w", err)
	}

	apiKey, err := r.encryptor.Decrypt(row.APIKeyEncrypted)
	if err != nil {
		r.logger.Error("Failed to decrypt API key", map[string]interface{}{
			"instance": name,
			"error":    err.Error(),
		})
		return nil, fmt.Errorf("failed to decrypt API key: %w", err)
	}

	return &InstanceWithKey{
		Name:             row.Name,
		BaseURL:          row.BaseURL,
		APIKey:           apiKey,
		RootFolderPath:   row.RootFolderPath,
		QualityProfileID: row.QualityProfileID,
	}, nil
}

// SaveInstances upserts all given instances in one transaction
func (r *Repository) SaveInstances(instances ...InstanceWithKey) error {
	rows := make([]InstanceSettings, 0, len(instances))
	for _, inst := range instances {
		encrypted, err := r.encryptor.Encrypt(inst.APIKey)
		if err != nil {
			r.logger.Error("Failed to encrypt API key", map[string]interface{}{
				"instance": inst.Name,
				"error":    err.Error(),
			})
			return fmt.Errorf("failed to encrypt API key: %w", err)
		}
		rows = append(rows, InstanceSettings{
			Name:             inst.Name,
			BaseURL:          inst.BaseURL,
			APIKeyEncrypted:  encrypted,
			RootFolderPath:   inst.RootFolderPath,
			QualityProfileID: inst.QualityProfileID,
		})
	}

	return r.db.GetDB().Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"base_url", "api_key_encrypted", "root_folder_path", "quality_profile_id", "updated_at"}),
			}).Create(&rows[i]).Error
			if err != nil {
				return fmt.Errorf("failed to save instance %s: %w", rows[i].Name, err)
			}
		}
		return nil
	})
}

// DeleteInstance removes the settings row for an instance
func (r *Repository) DeleteInstance(name string) error {
	if err := r.db.GetDB().Delete(&InstanceSettings{}, "name = ?", name).Error; err != nil {
		return fmt.Errorf("failed to delete instance settings: %w", err)
	}
	return nil
}

// CountInstances returns how many instances have persisted settings
func (r *Repository) CountInstances() (int64, error) {
	var count int64
	if err := r.db.GetDB().Model(&InstanceSettings{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count instance settings: %w", err)
	}
	return count, nil
}
