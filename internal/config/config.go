// Package config loads the cfrealip-server settings from defaults, command
// line flags, a .env file and the environment, in that order of precedence.
package config

import (
	"flag"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	ServerAddress     string        `env:"SERVER_ADDRESS" validate:"hostname_port"`
	GRPCAddress       string        `env:"GRPC_ADDRESS" validate:"omitempty,hostname_port"`
	LogLevel          string        `env:"LOG_LEVEL" validate:"loglevel"`
	RangesFile        string        `env:"RANGES_FILE" validate:"excluded_with=RangesS3Bucket"`
	RangesS3Bucket    string        `env:"RANGES_S3_BUCKET" validate:"required_with=RangesS3Key"`
	RangesS3Key       string        `env:"RANGES_S3_KEY" validate:"required_with=RangesS3Bucket"`
	AWSRegion         string        `env:"AWS_REGION"`
	RefreshInterval   time.Duration `env:"REFRESH_INTERVAL" validate:"gte=1m"`
	FetchTimeout      time.Duration `env:"FETCH_TIMEOUT" validate:"gt=0"`
	RewriteRemoteAddr bool          `env:"REWRITE_REMOTE_ADDR"`
	RequireTrusted    bool          `env:"REQUIRE_TRUSTED"`
}

var defaultConfig = Config{
	ServerAddress:   ":8080",
	LogLevel:        "info",
	RefreshInterval: 24 * time.Hour,
	FetchTimeout:    10 * time.Second,
}

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	envFiles []string
}

// WithEnvFiles sets the dotenv files read before the environment. By
// default ".env" is read if present.
func WithEnvFiles(files ...string) Option {
	return func(o *loadOptions) {
		o.envFiles = files
	}
}

// Load builds the configuration from args (without the program name).
func Load(args []string, opts ...Option) (*Config, error) {
	options := &loadOptions{envFiles: []string{".env"}}
	for _, opt := range opts {
		opt(options)
	}

	// A missing .env file is the normal case.
	_ = godotenv.Load(options.envFiles...)

	values := defaultConfig

	fs := flag.NewFlagSet("cfrealip-server", flag.ContinueOnError)
	fs.StringVar(&values.ServerAddress, "a", values.ServerAddress, "address and port to run the HTTP server")
	fs.StringVar(&values.GRPCAddress, "g", values.GRPCAddress, "address and port to run the gRPC server, empty to disable")
	fs.StringVar(&values.LogLevel, "l", values.LogLevel, "logger level")
	fs.StringVar(&values.RangesFile, "f", values.RangesFile, "JSON file persisting the Cloudflare ranges")
	fs.StringVar(&values.RangesS3Bucket, "s3-bucket", values.RangesS3Bucket, "S3 bucket persisting the Cloudflare ranges")
	fs.StringVar(&values.RangesS3Key, "s3-key", values.RangesS3Key, "S3 object key persisting the Cloudflare ranges")
	fs.StringVar(&values.AWSRegion, "aws-region", values.AWSRegion, "AWS region for the S3 snapshot store")
	fs.DurationVar(&values.RefreshInterval, "i", values.RefreshInterval, "interval between Cloudflare range refreshes")
	fs.DurationVar(&values.FetchTimeout, "t", values.FetchTimeout, "timeout of a single range list request")
	fs.BoolVar(&values.RewriteRemoteAddr, "rewrite-remote-addr", values.RewriteRemoteAddr, "replace RemoteAddr with the trusted client IP")
	fs.BoolVar(&values.RequireTrusted, "require-trusted", values.RequireTrusted, "reject requests that did not come through Cloudflare")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Only variables that are set override the flag values, so an explicit
	// false still turns a flag off.
	if err := env.Parse(&values); err != nil {
		return nil, err
	}

	if err := validate(values); err != nil {
		return nil, err
	}

	return &values, nil
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	return allowedLogLevels[fieldLevel.Field().String()]
}

func validate(values Config) error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}

	return validate.Struct(values)
}
