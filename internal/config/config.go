package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"./corpse.db"`

	Players      int `env:"PLAYERS" envDefault:"2"`
	WordsPerTurn int `env:"WORDS_PER_TURN" envDefault:"6"`
	WindowSize   int `env:"WINDOW_SIZE" envDefault:"1"`
	MaxTurns     int `env:"MAX_TURNS" envDefault:"8"`

	// IdleTimeout > 0 enables the idle-session sweeper.
	IdleTimeout   time.Duration `env:"IDLE_TIMEOUT" envDefault:"0"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	return c, nil
}
