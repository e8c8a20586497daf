package config

import (
	"fmt"
	"strings"
)

// Instance is the settings-owned description of one backend deployment
type Instance struct {
	BaseURL                 string `yaml:"base_url" json:"baseUrl"`
	APIKey                  string `yaml:"api_key" json:"apiKey"`
	DefaultRootFolderPath   string `yaml:"root_folder_path" json:"rootFolderPath"`
	DefaultQualityProfileID int    `yaml:"quality_profile_id" json:"qualityProfileId"`
}

// Normalize trims whitespace and the trailing slash from the base URL
func (i Instance) Normalize() Instance {
	i.BaseURL = strings.TrimRight(strings.TrimSpace(i.BaseURL), "/")
	i.APIKey = strings.TrimSpace(i.APIKey)
	i.DefaultRootFolderPath = strings.TrimSpace(i.DefaultRootFolderPath)
	return i
}

// Validate reports a ConfigError when the instance cannot be contacted at all
func (i Instance) Validate(name string) error {
	var missing []string
	if strings.TrimSpace(i.BaseURL) == "" {
		missing = append(missing, "base URL")
	}
	if strings.TrimSpace(i.APIKey) == "" {
		missing = append(missing, "API key")
	}
	if len(missing) > 0 {
		return &ConfigError{
			Field: name,
			Msg:   fmt.Sprintf("is missing %s", strings.Join(missing, " and ")),
		}
	}
	return nil
}

// HasDefaults reports whether both root folder and quality profile are set explicitly
func (i Instance) HasDefaults() bool {
	return i.DefaultRootFolderPath != "" && i.DefaultQualityProfileID > 0
}

// Masked returns a copy safe to show in a UI
func (i Instance) Masked() Instance {
	if len(i.APIKey) > 4 {
		i.APIKey = strings.Repeat("*", len(i.APIKey)-4) + i.APIKey[len(i.APIKey)-4:]
	} else if i.APIKey != "" {
		i.APIKey = "****"
	}
	return i
}
