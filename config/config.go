package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration, loaded from the environment
// (optionally seeded from a .env file).
type Config struct {
	App struct {
		Port           string   `mapstructure:"port"`
		Environment    string   `mapstructure:"env"`
		AllowedOrigins []string `mapstructure:"-"`
	} `mapstructure:"app"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Database struct {
		Driver string `mapstructure:"driver"`
		URI    string `mapstructure:"uri"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret   string        `mapstructure:"jwt_secret"`
		JWTTTL      time.Duration `mapstructure:"jwt_ttl"`
		AdminSecret string        `mapstructure:"admin_secret"`
	} `mapstructure:"auth"`

	Requests struct {
		Timeout           time.Duration `mapstructure:"timeout"`
		SweepInterval     time.Duration `mapstructure:"sweep_interval"`
		ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
		MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
	} `mapstructure:"requests"`

	Chain struct {
		RPCURL                string `mapstructure:"rpc_url"`
		ChainID               int64  `mapstructure:"chain_id"`
		PrivateKey            string `mapstructure:"private_key"`
		OrchestratorAddress   string `mapstructure:"orchestrator_address"`
		LawyerIdentityAddress string `mapstructure:"lawyer_identity_address"`
		PaymentTokenDecimals  int32  `mapstructure:"payment_token_decimals"`
	} `mapstructure:"chain"`

	LLM struct {
		GoogleAPIKey string `mapstructure:"google_api_key"`
		Model        string `mapstructure:"model"`
	} `mapstructure:"llm"`

	Blob struct {
		Backend          string `mapstructure:"backend"`
		PinataJWT        string `mapstructure:"pinata_jwt"`
		PinataGatewayURL string `mapstructure:"pinata_gateway_url"`
		R2AccountID      string `mapstructure:"r2_account_id"`
		R2AccessKeyID    string `mapstructure:"r2_access_key_id"`
		R2AccessSecret   string `mapstructure:"r2_access_key_secret"`
		R2Bucket         string `mapstructure:"r2_bucket"`
		CDNBaseURL       string `mapstructure:"cdn_base_url"`
		UploadDir        string `mapstructure:"upload_dir"`
	} `mapstructure:"blob"`

	RedisURL string `mapstructure:"redis_url"`
	NATSURL  string `mapstructure:"nats_url"`
}

// envBindings maps config keys to the environment variable names the
// deployment uses.
var envBindings = map[string]string{
	"app.port":                      "PORT",
	"app.env":                       "APP_ENV",
	"app.allowed_origins":           "ALLOWED_ORIGINS",
	"logging.level":                 "LOG_LEVEL",
	"database.driver":               "DB_DRIVER",
	"database.uri":                  "DB_URI",
	"auth.jwt_secret":               "JWT_SECRET",
	"auth.jwt_ttl":                  "JWT_TTL",
	"auth.admin_secret":             "ADMIN_SECRET",
	"requests.timeout":              "REQUEST_TIMEOUT",
	"requests.sweep_interval":       "SWEEP_INTERVAL",
	"requests.reconcile_interval":   "RECONCILE_INTERVAL",
	"requests.max_upload_bytes":     "MAX_UPLOAD_BYTES",
	"chain.rpc_url":                 "RPC_URL",
	"chain.chain_id":                "CHAIN_ID",
	"chain.private_key":             "PRIVATE_KEY",
	"chain.orchestrator_address":    "ORCHESTRATOR_ADDRESS",
	"chain.lawyer_identity_address": "LAWYER_IDENTITY_ADDRESS",
	"chain.payment_token_decimals":  "PAYMENT_TOKEN_DECIMALS",
	"llm.google_api_key":            "GOOGLE_API_KEY",
	"llm.model":                     "GEMINI_MODEL",
	"blob.backend":                  "BLOB_BACKEND",
	"blob.pinata_jwt":               "PINATA_JWT",
	"blob.pinata_gateway_url":       "PINATA_GATEWAY_URL",
	"blob.r2_account_id":            "CLOUDFLARE_ACCOUNT_ID",
	"blob.r2_access_key_id":         "R2_ACCESS_KEY_ID",
	"blob.r2_access_key_secret":     "R2_ACCESS_KEY_SECRET",
	"blob.r2_bucket":                "R2_BUCKET_NAME",
	"blob.cdn_base_url":             "CDN_BASE_URL",
	"blob.upload_dir":               "UPLOAD_DIR",
	"redis_url":                     "REDIS_URL",
	"nats_url":                      "NATS_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.allowed_origins", "http://localhost:3000")
	v.SetDefault("logging.level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.uri", "briefly.db")
	v.SetDefault("auth.jwt_ttl", time.Hour)
	v.SetDefault("requests.timeout", 24*time.Hour)
	v.SetDefault("requests.sweep_interval", time.Minute)
	v.SetDefault("requests.reconcile_interval", 2*time.Minute)
	v.SetDefault("requests.max_upload_bytes", int64(5*1024*1024))
	v.SetDefault("chain.payment_token_decimals", 18)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.pinata_gateway_url", "https://gateway.pinata.cloud")
	v.SetDefault("blob.upload_dir", "uploads")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// .env is optional; the environment always wins.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.App.AllowedOrigins = splitOrigins(v.GetString("app.allowed_origins"))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Blob.Backend = strings.ToLower(strings.TrimSpace(cfg.Blob.Backend))

	return &cfg, nil
}

// Validate checks the keys every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AdminSecret == "" {
		errs = append(errs, errors.New("ADMIN_SECRET is required"))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported (sqlite, postgres)", c.Database.Driver))
	}
	switch c.Blob.Backend {
	case "local":
	case "pinata":
		if c.Blob.PinataJWT == "" {
			errs = append(errs, errors.New("PINATA_JWT is required when BLOB_BACKEND=pinata"))
		}
	case "r2":
		if c.Blob.R2AccountID == "" || c.Blob.R2Bucket == "" {
			errs = append(errs, errors.New("CLOUDFLARE_ACCOUNT_ID and R2_BUCKET_NAME are required when BLOB_BACKEND=r2"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND %q is not supported (local, pinata, r2)", c.Blob.Backend))
	}
	if c.Requests.Timeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// ChainEnabled reports whether enough chain settings are present to build
// an RPC client.
func (c *Config) ChainEnabled() bool {
	return c.Chain.RPCURL != "" && c.Chain.PrivateKey != "" && c.Chain.OrchestratorAddress != ""
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

func splitOrigins(raw string) []string {
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
