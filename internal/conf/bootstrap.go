package conf

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with TRYON_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Conditionally required environment variables:
//   - MYSQL_DSN or TRYON_DATA_DATABASE_SOURCE: when upload.store is mysql
//   - REDIS_ADDR or TRYON_DATA_REDIS_ADDR: when a redis backend is selected
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("TRYON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Direct environment variable names are accepted for deployment compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "TRYON_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "TRYON_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.redis.password", "REDIS_PASSWORD", "TRYON_DATA_REDIS_PASSWORD")
	_ = v.BindEnv("upload.endpoint", "UPLOAD_ENDPOINT", "TRYON_UPLOAD_ENDPOINT")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			HTTP: &HTTPServer{
				Network:        v.GetString("server.http.network"),
				Addr:           v.GetString("server.http.addr"),
				Timeout:        durationpb.New(v.GetDuration("server.http.timeout")),
				TrustedProxies: v.GetStringSlice("server.http.trusted_proxies"),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				DB:           v.GetInt("data.redis.db"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		RateLimit: &RateLimit{
			Backend:     strings.ToLower(v.GetString("ratelimit.backend")),
			MaxRequests: v.GetInt("ratelimit.max_requests"),
			Window:      durationpb.New(v.GetDuration("ratelimit.window")),
			MaxKeys:     v.GetInt("ratelimit.max_keys"),
			APIKeys:     v.GetStringSlice("ratelimit.api_keys"),
		},
		Upload: &Upload{
			Store:           strings.ToLower(v.GetString("upload.store")),
			Endpoint:        v.GetString("upload.endpoint"),
			ImageRoot:       v.GetString("upload.image_root"),
			Timeout:         durationpb.New(v.GetDuration("upload.timeout")),
			MaxRetries:      v.GetInt("upload.max_retries"),
			InitialInterval: durationpb.New(v.GetDuration("upload.initial_interval")),
			ProxyURL:        v.GetString("upload.proxy_url"),
			DrainSchedule:   v.GetString("upload.drain_schedule"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 2*time.Minute)

	v.SetDefault("data.database.driver", "mysql")

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.max_requests", 60)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.max_keys", 65536)

	v.SetDefault("upload.store", BackendMemory)
	v.SetDefault("upload.image_root", "data/images")
	v.SetDefault("upload.timeout", 30*time.Second)
	v.SetDefault("upload.max_retries", 3)
	v.SetDefault("upload.initial_interval", 500*time.Millisecond)
	v.SetDefault("upload.drain_schedule", "0 */5 * * * *")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing every problem found.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.Server != nil && bc.Server.HTTP != nil {
		for _, proxy := range bc.Server.HTTP.TrustedProxies {
			if !validProxy(proxy) {
				problems = append(problems, fmt.Sprintf("server.http.trusted_proxies entry %q is not an IP or CIDR", proxy))
			}
		}
	}

	if bc.RateLimit == nil {
		problems = append(problems, "ratelimit section is missing")
	} else {
		if bc.RateLimit.MaxRequests <= 0 {
			problems = append(problems, "ratelimit.max_requests must be positive")
		}
		if bc.RateLimit.Window == nil || bc.RateLimit.Window.AsDuration() <= 0 {
			problems = append(problems, "ratelimit.window must be positive")
		}
		switch bc.RateLimit.Backend {
		case BackendMemory:
		case BackendRedis:
			if !hasRedis(bc) {
				problems = append(problems, "data.redis.addr (REDIS_ADDR) is required by ratelimit.backend=redis")
			}
		default:
			problems = append(problems, fmt.Sprintf("ratelimit.backend %q is not supported", bc.RateLimit.Backend))
		}
	}

	if bc.Upload == nil {
		problems = append(problems, "upload section is missing")
	} else {
		switch bc.Upload.Store {
		case BackendMemory:
		case BackendRedis:
			if !hasRedis(bc) {
				problems = append(problems, "data.redis.addr (REDIS_ADDR) is required by upload.store=redis")
			}
		case BackendMySQL:
			if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
				problems = append(problems, "data.database.source (MYSQL_DSN) is required by upload.store=mysql")
			}
		default:
			problems = append(problems, fmt.Sprintf("upload.store %q is not supported", bc.Upload.Store))
		}
		if strings.TrimSpace(bc.Upload.ImageRoot) == "" {
			problems = append(problems, "upload.image_root is required")
		}
		if bc.Upload.MaxRetries < 0 {
			problems = append(problems, "upload.max_retries must not be negative")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}

func hasRedis(bc *Bootstrap) bool {
	return bc.Data != nil && bc.Data.Redis != nil && bc.Data.Redis.Addr != ""
}

func validProxy(proxy string) bool {
	if strings.Contains(proxy, "/") {
		_, _, err := net.ParseCIDR(proxy)
		return err == nil
	}
	return net.ParseIP(proxy) != nil
}
