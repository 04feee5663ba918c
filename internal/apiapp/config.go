package apiapp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joeshaw/envdecode"

	"github.com/liftcare/liftsuite/internal/logging"
	"github.com/liftcare/liftsuite/internal/middleware"
)

type Config struct {
	Addr            string        `env:"API_ADDR,default=:8080" validate:"required"`
	DBDriver        string        `env:"DB_DRIVER,default=sqlite" validate:"oneof=sqlite postgres"`
	DBDSN           string        `env:"DB_DSN" validate:"required_if=DBDriver postgres"`
	AdminEmail      string        `env:"ADMIN_EMAIL" validate:"required,email"`
	AdminPassword   string        `env:"ADMIN_PASSWORD" validate:"required,min=12"`
	SessionTTL      time.Duration `env:"SESSION_TTL,default=12h" validate:"gt=0"`
	QRSigningKey    string        `env:"QR_SIGNING_KEY" validate:"omitempty,min=16"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL,default=http://localhost:3000" validate:"required,url"`
	CompanyName     string        `env:"COMPANY_NAME,default=LiftSuite Elevator Services"`
	BlobBackend     string        `env:"BLOB_BACKEND,default=local" validate:"oneof=local supabase"`
	BlobDir         string        `env:"BLOB_DIR,default=blobs"`
	SupabaseURL     string        `env:"SUPABASE_URL" validate:"required_if=BlobBackend supabase"`
	SupabaseKey     string        `env:"SUPABASE_SERVICE_KEY" validate:"required_if=BlobBackend supabase"`
	SupabaseBucket  string        `env:"SUPABASE_BUCKET,default=liftsuite"`
	RedisURL        string        `env:"REDIS_URL"`
	SchedulerSpec   string        `env:"SCHEDULER_SPEC,default=@every 15m"`
	LoginRatePerMin float64       `env:"LOGIN_RATE_PER_MIN,default=10" validate:"gt=0"`
	TrustedProxies  string        `env:"TRUSTED_PROXIES,default=127.0.0.1 ::1"`
	Logging         logging.Config
}

// DefaultConfigFromEnv decodes the API configuration from the environment.
func DefaultConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("decode api config: %w", err)
	}
	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			messages := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				messages = append(messages, fmt.Sprintf("%s (%s)", configEnvName(fe.StructField()), fe.Tag()))
			}
			return fmt.Errorf("invalid api config: %s", strings.Join(messages, ", "))
		}
		return fmt.Errorf("invalid api config: %w", err)
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("invalid api config: TRUSTED_PROXIES: %w", err)
	}
	return nil
}

var configEnvNames = map[string]string{
	"Addr":            "API_ADDR",
	"DBDriver":        "DB_DRIVER",
	"DBDSN":           "DB_DSN",
	"AdminEmail":      "ADMIN_EMAIL",
	"AdminPassword":   "ADMIN_PASSWORD",
	"SessionTTL":      "SESSION_TTL",
	"QRSigningKey":    "QR_SIGNING_KEY",
	"PublicBaseURL":   "PUBLIC_BASE_URL",
	"BlobBackend":     "BLOB_BACKEND",
	"SupabaseURL":     "SUPABASE_URL",
	"SupabaseKey":     "SUPABASE_SERVICE_KEY",
	"LoginRatePerMin": "LOGIN_RATE_PER_MIN",
	"TrustedProxies":  "TRUSTED_PROXIES",
}

func configEnvName(field string) string {
	if name, ok := configEnvNames[field]; ok {
		return name
	}
	return field
}
