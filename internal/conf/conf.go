// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables.
package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration of the TryOn service.
type Bootstrap struct {
	Server    *Server
	Data      *Data
	RateLimit *RateLimit
	Upload    *Upload
	Log       *Log
}

// Server holds transport settings.
type Server struct {
	HTTP *HTTPServer
}

// HTTPServer configures the Kratos HTTP server.
type HTTPServer struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
	// TrustedProxies lists the peer IPs or CIDRs whose X-Real-IP and X-Forwarded-For
	// headers are honoured. Forwarding headers from any other peer are ignored.
	TrustedProxies []string
}

// Data holds connection settings for the storage backends.
type Data struct {
	Database *Database
	Redis    *Redis
}

// Database configures the GORM connection used by the MySQL key-value store.
type Database struct {
	Driver string
	Source string
}

// Redis configures the go-redis client.
type Redis struct {
	Network      string
	Addr         string
	Password     string
	DB           int
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// RateLimit configures request admission control.
type RateLimit struct {
	// Backend is "memory" or "redis".
	Backend     string
	MaxRequests int
	Window      *durationpb.Duration
	// MaxKeys bounds the number of keys tracked by the in-memory limiter.
	MaxKeys int
	// APIKeys lists the API keys that get a window of their own. Callers presenting any
	// other key are limited by client IP.
	APIKeys []string
}

// Upload configures the durable upload queue and its uploader.
type Upload struct {
	// Store is "memory", "redis" or "mysql".
	Store    string
	Endpoint string
	// ImageRoot is the only directory the uploader reads images from.
	ImageRoot       string
	Timeout         *durationpb.Duration
	MaxRetries      int
	InitialInterval *durationpb.Duration
	ProxyURL        string
	// DrainSchedule is a cron spec with seconds; empty disables periodic draining.
	DrainSchedule string
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}

// Storage and limiter backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)
