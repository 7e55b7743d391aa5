package config

import (
	"fmt"
	"io"
	"os"

	"github.com/freshness-monitor/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// thresholdsFile mirrors the YAML thresholds file:
//
//	channels:
//	  temperature: {min: 18, max: 32}
//	  humidity: {min: 45, max: 80, unit: "%"}
type thresholdsFile struct {
	Channels map[string]channelOverride `yaml:"channels"`
}

type channelOverride struct {
	Name *string  `yaml:"name"`
	Unit *string  `yaml:"unit"`
	Min  *float64 `yaml:"min"`
	Max  *float64 `yaml:"max"`
}

// LoadThresholds reads a YAML thresholds file and merges it onto base.
func LoadThresholds(filePath string, base models.ChannelProfiles) (models.ChannelProfiles, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return base, err
	}
	defer file.Close()

	return ParseThresholdsFromReader(file, base)
}

// ParseThresholdsFromReader parses thresholds from an io.Reader. Channels
// and fields not mentioned keep their base values.
func ParseThresholdsFromReader(r io.Reader, base models.ChannelProfiles) (models.ChannelProfiles, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return base, err
	}

	var doc thresholdsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return base, fmt.Errorf("failed to parse thresholds: %w", err)
	}

	out := base
	for name, o := range doc.Channels {
		c, err := models.ParseChannel(name)
		if err != nil {
			return base, err
		}
		p := out[c]
		if o.Name != nil {
			p.Name = *o.Name
		}
		if o.Unit != nil {
			p.Unit = *o.Unit
		}
		if o.Min != nil {
			p.Min = *o.Min
		}
		if o.Max != nil {
			p.Max = *o.Max
		}
		out[c] = p
	}

	if err := ValidateProfiles(out); err != nil {
		return base, err
	}
	return out, nil
}

// ValidateProfiles checks every channel range is well formed.
func ValidateProfiles(profiles models.ChannelProfiles) error {
	for _, c := range models.Channels {
		p := profiles[c]
		if p.Min > p.Max {
			return fmt.Errorf("channel %s: min %v exceeds max %v", c, p.Min, p.Max)
		}
		if p.Min < 0 {
			return fmt.Errorf("channel %s: min %v is negative", c, p.Min)
		}
	}
	return nil
}
