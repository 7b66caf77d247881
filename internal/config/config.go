package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	StoreMemory    = "memory"
	StoreFile      = "file"
	StoreMongo     = "mongo"
	StoreFirestore = "firestore"

	AuthFirebase = "firebase"
	AuthJWT      = "jwt"
)

type Config struct {
	ServerAddress   string        `env:"SERVER_ADDRESS,default=:8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS,default=*"`

	StoreDriver string `env:"STORE_DRIVER,default=memory"`
	DataDir     string `env:"DATA_DIR,default=./data"`
	MongoURI    string `env:"MONGO_URI"`
	MongoDB     string `env:"MONGO_DB,default=campuskart"`

	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsJSON string `env:"FIREBASE_CREDENTIALS_JSON"`

	AuthMode      string        `env:"AUTH_MODE,default=jwt"`
	JWTSecret     string        `env:"JWT_SECRET,default=your-secret-key-change-in-production"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION,default=24h"`

	PolicyURI           string `env:"POLICY_URI"`
	AllowAdminBootstrap bool   `env:"ALLOW_ADMIN_BOOTSTRAP,default=false"`
	InProcessTriggers   bool   `env:"IN_PROCESS_TRIGGERS,default=true"`
	ImageScreening      bool   `env:"IMAGE_SCREENING,default=false"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load reads the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from l, which tests replace with a MapLookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StoreMemory, StoreFile:
	case StoreFirestore:
		// Eventarc delivers the Firestore triggers to the worker; dispatching
		// in-process as well would moderate every listing twice.
		if c.InProcessTriggers {
			return fmt.Errorf("config: IN_PROCESS_TRIGGERS must be false for store driver %q", c.StoreDriver)
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("config: MONGO_URI is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}

	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	switch c.AuthMode {
	case AuthFirebase, AuthJWT:
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.AuthMode)
	}
	return nil
}

// NeedsFirebase reports whether the Admin SDK must be initialized.
func (c *Config) NeedsFirebase() bool {
	return c.AuthMode == AuthFirebase || c.StoreDriver == StoreFirestore
}

// SetupLogging configures the global logrus logger.
func (c *Config) SetupLogging() {
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
