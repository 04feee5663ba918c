package clientapp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"

	"github.com/liftcare/liftsuite/internal/logging"
)

type Config struct {
	Addr         string        `env:"CLIENT_ADDR,default=:3000" validate:"required"`
	APIBaseURL   string        `env:"API_BASE_URL,default=http://localhost:8080" validate:"required,url"`
	ReadTimeout  time.Duration `env:"CLIENT_READ_TIMEOUT,default=5s" validate:"gt=0"`
	WriteTimeout time.Duration `env:"CLIENT_WRITE_TIMEOUT,default=30s" validate:"gt=0"`
	APITimeout   time.Duration `env:"CLIENT_API_TIMEOUT,default=15s" validate:"gt=0"`
	Logging      logging.Config
}

func DefaultConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode client config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.StructField(), fe.Tag()))
			}
			return fmt.Errorf("invalid client config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}
