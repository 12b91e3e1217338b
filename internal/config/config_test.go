package config

import (
	"errors"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
)

// cleanEnvVars ensures host ENV vars do not interfere with tests and returns
// the original values for restoration.
func cleanEnvVars(t *testing.T) map[string]string {
	t.Helper()
	orig := make(map[string]string)
	vars := []string{
		"TELEDROP_ADDR",
		"TELEDROP_STORAGE_ROOT",
		"TELEDROP_STORAGE_BACKEND",
		"TELEDROP_MAX_UPLOAD_BYTES",
		"TELEDROP_CHUNK_BYTES",
		"TELEDROP_RESERVED_SLUGS",
		"TELEDROP_S3_ENDPOINT",
		"TELEDROP_S3_BUCKET",
		"TELEDROP_S3_ACCESS_KEY",
		"TELEDROP_S3_SECRET_KEY",
	}
	for _, v := range vars {
		if val := os.Getenv(v); val != "" {
			orig[v] = val
		}
		if err := os.Unsetenv(v); err != nil {
			t.Fatalf("unsetenv %q: %v", v, err)
		}
	}
	return orig
}

func restoreEnvVars(t *testing.T, orig map[string]string) {
	t.Helper()
	for k, v := range orig {
		if err := os.Setenv(k, v); err != nil {
			t.Fatalf("setenv %q: %v", k, err)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.EqualValues(t, DefaultAppConfig, *cfg)
}

func TestLoadEnvOverride(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	t.Setenv("TELEDROP_STORAGE_ROOT", "/srv/teledrop")
	t.Setenv("TELEDROP_CHUNK_BYTES", "65536")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.StorageRoot != "/srv/teledrop" {
		t.Fatalf("expected overridden StorageRoot, got %q", cfg.StorageRoot)
	}
	if cfg.ChunkBytes != 65536 {
		t.Fatalf("expected ChunkBytes 65536, got %d", cfg.ChunkBytes)
	}
}

func TestLoadReservedSlugsList(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	t.Setenv("TELEDROP_RESERVED_SLUGS", "foo,bar,baz")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.Equal(t, []string{"foo", "bar", "baz"}, cfg.ReservedSlugs)
}

func TestInvalidStorageBackendRejected(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	t.Setenv("TELEDROP_STORAGE_BACKEND", "ftp")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestS3BackendRequiresCredentials(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	t.Setenv("TELEDROP_STORAGE_BACKEND", "s3")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for s3 backend missing credentials, got nil")
	}

	t.Setenv("TELEDROP_S3_ENDPOINT", "minio.internal:9000")
	t.Setenv("TELEDROP_S3_BUCKET", "teledrop")
	t.Setenv("TELEDROP_S3_ACCESS_KEY", "key")
	t.Setenv("TELEDROP_S3_SECRET_KEY", "secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected s3 config to validate once credentials are set, got: %v", err)
	}
	if cfg.StorageBackend != "s3" {
		t.Fatalf("expected StorageBackend s3, got %q", cfg.StorageBackend)
	}
}

func TestValidPaths(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	valid := []string{
		"data",
		"/var/lib/teledrop",
		"./data",
		"relative/path/to/data",
		"nested/dir/structure",
	}
	for _, p := range valid {
		t.Setenv("TELEDROP_STORAGE_ROOT", p)
		cfg, err := Load()
		if err != nil {
			t.Errorf("expected valid path %q, got error: %v", p, err)
			continue
		}
		if cfg.StorageRoot != p {
			t.Errorf("expected StorageRoot %q, got %q", p, cfg.StorageRoot)
		}
	}
}

func TestInvalidPaths(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	invalid := []string{
		"",
		".",
		"/",
		"//",
		"../data",
		"data/..",
		"data/../../../etc",
	}
	for _, p := range invalid {
		t.Setenv("TELEDROP_STORAGE_ROOT", p)
		_, err := Load()
		if err == nil {
			t.Errorf("expected error for invalid path %q, got nil", p)
		}
	}
}

func TestValidIPPort(t *testing.T) {
	type sample struct {
		Addr string `validate:"ip_port"`
	}

	v := validator.New()
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		t.Fatalf("register validation: %v", err)
	}

	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{name: "empty", addr: "", valid: false},
		{name: "missing_port", addr: "127.0.0.1", valid: false},
		{name: "just_colon_port", addr: ":8080", valid: true},
		{name: "loopback_ipv4", addr: "127.0.0.1:8080", valid: true},
		{name: "ipv6_loopback", addr: "[::1]:8080", valid: true},
		{name: "hostname_not_ip", addr: "localhost:8080", valid: false},
		{name: "port_zero", addr: "127.0.0.1:0", valid: false},
		{name: "port_overflow", addr: "127.0.0.1:65536", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := sample{Addr: tc.addr}
			err := v.Struct(&s)
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestArgon2ParamsProjection(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p := cfg.Argon2Params()
	if p.Time != cfg.Argon2Time || p.MemoryKiB != cfg.Argon2MemoryKiB || p.Threads != cfg.Argon2Threads {
		t.Fatalf("Argon2Params() did not project flat fields correctly: %+v", p)
	}
}

func TestOperationDeadlineZeroMeansNone(t *testing.T) {
	orig := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, orig) })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.OperationDeadline() != 0 {
		t.Fatalf("expected zero deadline by default, got %v", cfg.OperationDeadline())
	}
}

func TestReservedSlugSet(t *testing.T) {
	c := &Config{ReservedSlugs: []string{"preview", "keycheck"}}
	set := c.ReservedSlugSet()
	if _, ok := set["preview"]; !ok {
		t.Fatal("expected preview in reserved set")
	}
	if _, ok := set["missing"]; ok {
		t.Fatal("did not expect missing in reserved set")
	}
}

func TestLoadDefaultError(t *testing.T) {
	origVars := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, origVars) })

	orig := defaultLoader
	t.Cleanup(func() { defaultLoader = orig })
	defaultLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestLoadEnvError(t *testing.T) {
	origVars := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, origVars) })

	orig := envLoader
	t.Cleanup(func() { envLoader = orig })
	envLoader = func(k *koanf.Koanf) error {
		assert.NotNil(t, k)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}

func TestRegisterValidationFails(t *testing.T) {
	origVars := cleanEnvVars(t)
	t.Cleanup(func() { restoreEnvVars(t, origVars) })
	orig := registerValidators
	t.Cleanup(func() { registerValidators = orig })
	registerValidators = func(v *validator.Validate) error {
		assert.NotNil(t, v)
		return assert.AnError
	}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, assert.AnError) {
		t.Fatalf("expected assert.AnError, got: %v", err)
	}
}
