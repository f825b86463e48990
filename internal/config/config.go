package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

type Config struct {
	Env            string
	ServerPort     string
	StoreDriver    string
	MongoURI       string
	DBName         string
	CollectionName string
	DBPath         string
	DeletePassword string
	LogLevel       zerolog.Level
}

func Load() (*Config, error) {
	// a missing .env is fine, the process environment still applies
	_ = godotenv.Load()

	env := getEnv("NODE_ENV", "PROD")

	defaultLevel := "info"
	if strings.EqualFold(env, "DVLP") {
		defaultLevel = "debug"
	}
	level, err := ParseLevel(getEnv("LOG_LEVEL", defaultLevel))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:            env,
		ServerPort:     getEnv("SCORE_SVC_PORT", "8080"),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverMongo)),
		MongoURI:       mongoURI(),
		DBName:         getEnv("DB_NAME", "cc2018"),
		CollectionName: getEnv("DB_COLLECTION", "scores"),
		DBPath:         getEnv("DB_PATH", "scores.db"),
		DeletePassword: os.Getenv("DELETE_PASSWORD"),
		LogLevel:       level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongo connection string is required")
		}
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	port, err := strconv.Atoi(c.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid SCORE_SVC_PORT %q", c.ServerPort)
	}
	return nil
}

// DeleteGateEnabled reports whether deletes require the shared secret.
func (c *Config) DeleteGateEnabled() bool {
	return c.DeletePassword != ""
}

// RedactedMongoURI hides the password for logging.
func (c *Config) RedactedMongoURI() string {
	u, err := url.Parse(c.MongoURI)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

// ParseLevel accepts zerolog level names or the numeric scale used by the
// maze services: 0 none, 1 error, 2 warn, 3 info, 4 debug, 5 trace.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		switch n {
		case 0:
			return zerolog.Disabled, nil
		case 1:
			return zerolog.ErrorLevel, nil
		case 2:
			return zerolog.WarnLevel, nil
		case 3:
			return zerolog.InfoLevel, nil
		case 4:
			return zerolog.DebugLevel, nil
		case 5:
			return zerolog.TraceLevel, nil
		}
		return zerolog.NoLevel, fmt.Errorf("invalid LOG_LEVEL %d", n)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func mongoURI() string {
	if uri := os.Getenv("DB_CONN_STR"); uri != "" {
		return uri
	}

	protocol := getEnv("DB_PROTOCOL", "mongodb")
	host := getEnv("DB_URL", "localhost:27017")
	user := os.Getenv("DB_USER")
	if user == "" {
		return fmt.Sprintf("%s://%s", protocol, host)
	}

	u := url.URL{
		Scheme: protocol,
		User:   url.UserPassword(user, os.Getenv("DB_USERPW")),
		Host:   host,
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
