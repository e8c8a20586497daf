package settings

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/drallgood/bookrequest/internal/config"
)

// EnvProvider reads EBOOKS_* and AUDIOBOOKS_* variables
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider reads the process environment
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) instance(prefix string) (config.Instance, bool) {
	get := func(name string) string {
		v, _ := p.lookup(prefix + "_" + name)
		return strings.TrimSpace(v)
	}
	inst := config.Instance{
		BaseURL:               get("URL"),
		APIKey:                get("API_KEY"),
		DefaultRootFolderPath: get("ROOT_FOLDER"),
	}
	if v := get("QUALITY_PROFILE_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			inst.DefaultQualityProfileID = id
		}
	}
	set := inst.BaseURL != "" || inst.APIKey != "" || inst.DefaultRootFolderPath != "" || inst.DefaultQualityProfileID != 0
	return inst, set
}

// Load returns ErrNotFound when no variable is set for either instance
func (p *EnvProvider) Load(_ context.Context) (*Settings, error) {
	ebooks, ebooksSet := p.instance("EBOOKS")
	audio, audioSet := p.instance("AUDIOBOOKS")
	if !ebooksSet && !audioSet {
		return nil, ErrNotFound
	}
	return &Settings{Ebooks: ebooks, Audiobooks: audio}, nil
}

func (p *EnvProvider) Save(context.Context, *Settings) error {
	return ErrReadOnly
}
