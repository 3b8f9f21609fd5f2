package configuration

import (
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/HazyCorp/statesync/internal/cmd/globflags"
	"github.com/HazyCorp/statesync/internal/metricsrv"
	"github.com/HazyCorp/statesync/internal/statestore"
	"github.com/HazyCorp/statesync/internal/stateserver"
	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

type Config struct {
	fx.Out

	Logging hzlog.Config       `json:"logging" yaml:"logging"`
	Serve   stateserver.Config `json:"serve" yaml:"serve"`
	Metrics metricsrv.Config   `json:"metrics" yaml:"metrics"`
	Store   Store              `json:"store" yaml:"store"`
}

func defaultConfig() *Config {
	return &Config{
		Logging: hzlog.DefaultConfig(),
		Serve:   stateserver.DefaultConfig(),
		Metrics: metricsrv.Config{
			Port: 14448,
		},
		Store: Store{
			Kind:   StoreSQLite,
			SQLite: &statestore.SQLiteConfig{Path: "statesync.db"},
		},
	}
}

func Read() (Config, error) {
	confPath := globflags.ConfigPath

	if confPath == "" {
		return *defaultConfig(), nil
	}

	data, err := os.ReadFile(confPath)
	if err != nil {
		return Config{}, errors.Wrapf(err, "cannot read config at %s", confPath)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it as yaml on top of
// the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	c := defaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return Config{}, errors.Wrap(err, "cannot parse config as yaml")
	}

	if err := Validate(c); err != nil {
		return Config{}, errors.Wrap(err, "invalid config provided")
	}

	return *c, nil
}

func Validate(c *Config) error {
	var errs *multierror.Error

	if c.Serve.Port == 0 {
		errs = multierror.Append(errs, errors.New("config.serve.port must be provided"))
	}
	if c.Serve.RequestTimeout < 0 {
		errs = multierror.Append(errs, errors.New("config.serve.request_timeout cannot be negative"))
	}
	if c.Serve.UpdateRate.Times > 0 && c.Serve.UpdateRate.Per < time.Millisecond {
		errs = multierror.Append(errs, errors.New("config.serve.update_rate.per must be at least 1ms"))
	}
	if c.Metrics.Port == 0 {
		errs = multierror.Append(errs, errors.New("config.metrics.port must be provided"))
	}
	if c.Metrics.Port == c.Serve.Port {
		errs = multierror.Append(errs, errors.New("config.metrics.port must differ from config.serve.port"))
	}

	if err := c.Store.Validate(); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "config.store"))
	}

	return errs.ErrorOrNil()
}
