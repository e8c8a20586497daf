package settings

import (
	"context"
	"errors"

	"github.com/drallgood/bookrequest/internal/config"
	"github.com/drallgood/bookrequest/internal/database"
	"github.com/drallgood/bookrequest/internal/models"
)

// DatabaseProvider keeps settings in the instance_settings table
type DatabaseProvider struct {
	repo *database.Repository
}

// NewDatabaseProvider creates a provider on top of repo
func NewDatabaseProvider(repo *database.Repository) *DatabaseProvider {
	return &DatabaseProvider{repo: repo}
}

func (p *DatabaseProvider) Load(_ context.Context) (*Settings, error) {
	count, err := p.repo.CountInstances()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotFound
	}

	var s Settings
	for _, b := range []models.Backend{models.BackendEbooks, models.BackendAudiobooks} {
		row, err := p.repo.GetInstance(string(b))
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		inst := config.Instance{
			BaseURL:                 row.BaseURL,
			APIKey:                  row.APIKey,
			DefaultRootFolderPath:   row.RootFolderPath,
			DefaultQualityProfileID: row.QualityProfileID,
		}
		if b == models.BackendAudiobooks {
			s.Audiobooks = inst
		} else {
			s.Ebooks = inst
		}
	}
	return &s, nil
}

func (p *DatabaseProvider) Save(_ context.Context, s *Settings) error {
	row := func(b models.Backend, inst config.Instance) database.InstanceWithKey {
		return database.InstanceWithKey{
			Name:             string(b),
			BaseURL:          inst.BaseURL,
			APIKey:           inst.APIKey,
			RootFolderPath:   inst.DefaultRootFolderPath,
			QualityProfileID: inst.DefaultQualityProfileID,
		}
	}
	return p.repo.SaveInstances(
		row(models.BackendEbooks, s.Ebooks),
		row(models.BackendAudiobooks, s.Audiobooks),
	)
}
