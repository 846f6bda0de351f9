package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config 服务运行配置，全部来自环境变量（可由 .env 提供）
type Config struct {
	Port            string        `env:"PORT,default=8082"`
	PublicURL       string        `env:"PUBLIC_URL,default=http://localhost:8082"`
	DBDriver        string        `env:"DB_DRIVER,default=mysql"`
	DBDSN           string        `env:"DB_DSN,required=true"`
	JWTSecret       string        `env:"JWT_SECRET,required=true"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,default=168h"`
	CookieSecure    bool          `env:"COOKIE_SECURE,default=false"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisChannel    string        `env:"REDIS_CHANNEL,default=relay:rooms"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// Load 读取 .env（不存在则忽略）后解析环境变量
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values go-env cannot express as tags.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be at least 16 characters")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: TOKEN_TTL must be positive")
	}
	return nil
}

// Origins 允许跨域的前端地址
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
