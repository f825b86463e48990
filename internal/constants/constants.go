package constants

import "time"

const (
	DatabaseTimeout = 5 * time.Second
	ConnectTimeout  = 10 * time.Second
	RequestTimeout  = 30 * time.Second
	ClientTimeout   = 10 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout   = 5 * time.Second
	ReadHeaderTimeout = 5 * time.Second
)

const (
	ImportConcurrency = 8
)
