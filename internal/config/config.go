// Package config handles configuration settings for the application.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/haukened/teledrop/internal/domain"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config holds the configuration settings for the application.
type Config struct {
	Addr        string `koanf:"addr" validate:"required,ip_port"`
	MetricsAddr string `koanf:"metrics_addr" validate:"omitempty,ip_port"`
	MetricsToken string `koanf:"metrics_token"`

	// OperatorToken, when non-empty, is the bearer token that authenticates
	// the single configured operator identity. Left empty, every caller
	// resolves as anonymous and every owner-only mutation is forbidden.
	OperatorToken    string `koanf:"operator_token"`
	OperatorIdentity string `koanf:"operator_identity" validate:"required_with=OperatorToken"`

	StorageRoot    string `koanf:"storage_root" validate:"required,custom_path"`
	StorageBackend string `koanf:"storage_backend" validate:"required,oneof=filesystem s3"`

	MaxUploadBytes int64 `koanf:"max_upload_bytes" validate:"gte=0"`
	ChunkBytes     int   `koanf:"chunk_bytes" validate:"required,gt=0"`

	// OperationDeadlineSeconds is validated and exposed through
	// OperationDeadline() (0 means none). No request path applies it, so
	// creates and downloads run without a deadline whatever its value.
	OperationDeadlineSeconds int64 `koanf:"operation_deadline_seconds" validate:"gte=0"`

	Argon2Time      uint32 `koanf:"argon2_time" validate:"required,gt=0"`
	Argon2MemoryKiB uint32 `koanf:"argon2_memory_kib" validate:"required,gt=0"`
	Argon2Threads   uint8  `koanf:"argon2_threads" validate:"required,gt=0"`
	Argon2KeyLen    uint32 `koanf:"argon2_key_len" validate:"required,gt=0"`
	Argon2SaltLen   uint32 `koanf:"argon2_salt_len" validate:"required,gt=0"`

	ReservedSlugs []string `koanf:"reserved_slugs"`
	SlugCacheSize int      `koanf:"slug_cache_size" validate:"required,gt=0"`

	S3Endpoint  string `koanf:"s3_endpoint" validate:"required_if=StorageBackend s3"`
	S3Bucket    string `koanf:"s3_bucket" validate:"required_if=StorageBackend s3"`
	S3AccessKey string `koanf:"s3_access_key" validate:"required_if=StorageBackend s3"`
	S3SecretKey string `koanf:"s3_secret_key" validate:"required_if=StorageBackend s3"`
	S3UseSSL    bool   `koanf:"s3_use_ssl"`
}

// DefaultAppConfig provides the default app configuration values.
var DefaultAppConfig = Config{
	Addr:        ":8080",
	MetricsAddr: "", // disabled by default

	OperatorToken:    "", // disabled by default: every caller is anonymous
	OperatorIdentity: "operator",

	StorageRoot:    "/data/blobs",
	StorageBackend: "filesystem",

	MaxUploadBytes: 0, // unlimited
	ChunkBytes:     1024 * 1024,

	OperationDeadlineSeconds: 0, // none

	Argon2Time:      domain.DefaultArgon2Params.Time,
	Argon2MemoryKiB: domain.DefaultArgon2Params.MemoryKiB,
	Argon2Threads:   domain.DefaultArgon2Params.Threads,
	Argon2KeyLen:    domain.DefaultArgon2Params.KeyLen,
	Argon2SaltLen:   domain.DefaultArgon2Params.SaltLen,

	ReservedSlugs: []string{"keycheck", "preview", "detail", "permission", "favorite", "password", "reset"},
	SlugCacheSize: 4096,

	S3UseSSL: true,
}

// defaultLoader loads default configuration values into the provided Koanf
// instance using the structs provider and the DefaultAppConfig struct. It can
// be swapped in tests.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

// envLoader loads environment variables prefixed "TELEDROP_" into the Koanf
// instance, lower-casing keys and splitting comma-separated values into
// slices. It can be swapped in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{Prefix: "TELEDROP_", TransformFunc: func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, "TELEDROP_"))
		if strings.Contains(value, ",") {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return key, parts
		}
		return key, strings.TrimSpace(value)
	}}), nil)
}

// validIPPort validates whether the provided field value is a valid IP
// address and port combination, parseable by net.Listen(). Examples:
// ":8080", "127.0.0.1:8080".
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if ip != "" && net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// validDirNotExists checks that the provided value is a directory path, but
// does not require it to exist. It disallows empty paths, ".", the root
// directory, and paths that traverse upwards (contain "..").
func validDirNotExists(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return false
	}
	cleaned := filepath.Clean(raw)
	if cleaned == "." || cleaned == string(os.PathSeparator) {
		return false
	}
	for _, part := range strings.Split(cleaned, string(os.PathSeparator)) {
		if part == ".." {
			return false
		}
	}
	return true
}

// registerValidators registers custom validation functions with the
// provided validator instance. It can be swapped in tests.
var registerValidators = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	return v.RegisterValidation("custom_path", validDirNotExists)
}

// Load loads the configuration by applying default values and overriding
// them with environment variables, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, err
	}

	if err := envLoader(k); err != nil {
		return nil, err
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidators(validate); err != nil {
		return nil, err
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Argon2Params projects the flat Argon2 fields into the shape the domain
// package hashes and verifies passphrases with.
func (c *Config) Argon2Params() domain.Argon2Params {
	return domain.Argon2Params{
		Time:      c.Argon2Time,
		MemoryKiB: c.Argon2MemoryKiB,
		Threads:   c.Argon2Threads,
		KeyLen:    c.Argon2KeyLen,
		SaltLen:   c.Argon2SaltLen,
	}
}

// ReservedSlugSet returns ReservedSlugs as a lookup set for domain.ValidateSlug.
func (c *Config) ReservedSlugSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.ReservedSlugs))
	for _, s := range c.ReservedSlugs {
		set[s] = struct{}{}
	}
	return set
}

// OperationDeadline returns the configured per-operation deadline, or 0 if
// none was configured.
func (c *Config) OperationDeadline() time.Duration {
	if c.OperationDeadlineSeconds <= 0 {
		return 0
	}
	return time.Duration(c.OperationDeadlineSeconds) * time.Second
}

// SQLiteDSN returns a fixed hardened SQLite DSN derived from StorageRoot's
// parent. WAL mode, foreign keys, busy timeout, and FULL synchronous are
// enforced, matching the durability profile required of the Metadata Store.
func (c *Config) SQLiteDSN(dbDir string) string {
	dbPath := filepath.Join(dbDir, "teledrop.db")
	return "file:" + dbPath + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL"
}
