package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haukened/teledrop/internal/config"
	"github.com/haukened/teledrop/internal/httpx"
)

func TestEnsureDirCreatesMissing(t *testing.T) {
	tmp := t.TempDir()
	dir := filepath.Join(tmp, "blobs")
	if err := ensureDir(dir); err != nil {
		t.Fatalf("ensureDir error: %v", err)
	}
	st, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !st.IsDir() {
		t.Fatalf("expected directory")
	}
}

func TestEnsureDirRejectsFilePath(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "notadir")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := ensureDir(file); err == nil {
		t.Fatal("expected error for file path")
	}
}

func TestNewIdentityResolverNilWithoutToken(t *testing.T) {
	cfg := &config.Config{OperatorToken: "", OperatorIdentity: "operator"}
	if r := newIdentityResolver(cfg); r != nil {
		t.Fatalf("expected nil resolver, got %v", r)
	}
}

func TestNewIdentityResolverResolvesConfiguredToken(t *testing.T) {
	cfg := &config.Config{OperatorToken: "s3cr3t", OperatorIdentity: "operator"}
	r := newIdentityResolver(cfg)
	if r == nil {
		t.Fatal("expected non-nil resolver")
	}
	bt, ok := r.(httpx.BearerTokenResolver)
	if !ok {
		t.Fatalf("expected httpx.BearerTokenResolver, got %T", r)
	}
	if identity := bt.Tokens["s3cr3t"]; identity != "operator" {
		t.Fatalf("expected token mapped to operator identity, got %q", identity)
	}
}
