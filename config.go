package fedagg

import (
	"errors"
	"fmt"
	"os"

	"github.com/absmach/fedagg/coordinator"
	"github.com/absmach/fedagg/pkg/cron"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/pelletier/go-toml"
)

var errIncompleteChannel = errors.New("domain_id and channel_id must be set together")

type Config struct {
	Coordinator CoordinatorConfig              `toml:"coordinator"`
	Experiments []coordinator.ExperimentConfig `toml:"experiments"`
}

type CoordinatorConfig struct {
	ClientID  string `toml:"client_id"`
	ClientKey string `toml:"client_key"`
	DomainID  string `toml:"domain_id"`
	ChannelID string `toml:"channel_id"`
}

// BaseTopic is the MQTT topic prefix of the coordinator channel. It is empty
// when no channel is configured.
func (c CoordinatorConfig) BaseTopic() string {
	if c.DomainID == "" || c.ChannelID == "" {
		return ""
	}

	return fmt.Sprintf("m/%s/c/%s", c.DomainID, c.ChannelID)
}

// LoadConfig reads a TOML config file and checks every bootstrap
// experiment before any of them is created.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c Config) Validate() error {
	if (c.Coordinator.DomainID == "") != (c.Coordinator.ChannelID == "") {
		return errIncompleteChannel
	}

	var errs []error
	for i, exp := range c.Experiments {
		if _, err := types.Parse(exp.ValueType); err != nil {
			errs = append(errs, fmt.Errorf("experiments[%d]: %w", i, err))
		}
		if exp.RoundSchedule != "" {
			if err := cron.Validate(exp.RoundSchedule); err != nil {
				errs = append(errs, fmt.Errorf("experiments[%d]: %w", i, err))
			}
		}
		if exp.KOfN < 0 {
			errs = append(errs, fmt.Errorf("experiments[%d]: negative k_of_n", i))
		}
	}

	return errors.Join(errs...)
}
