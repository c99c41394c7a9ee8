package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	mysql "github.com/go-sql-driver/mysql"
)

func TestLoadConfig(t *testing.T) {
	yaml := `
version: "1.0"
mode: dev
server:
  addr: ":9090"
  jwt_secret: "s3cret"
database:
  host: localhost
  port: 3306
  user: app
  password: pw
  dbname: sherlock
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mode != "dev" || cfg.Server.Addr != ":9090" || cfg.Server.JWTSecret != "s3cret" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.DB.Host != "localhost" || cfg.DB.Port != 3306 || cfg.DB.DBName != "sherlock" {
		t.Errorf("unexpected database config: %+v", cfg.DB)
	}
}

func TestLoadConfigDefaultsAddr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: dev\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %q", cfg.Server.Addr)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&mysql.MySQLError{Number: 1205}, true}, // lock wait timeout
		{&mysql.MySQLError{Number: 1213}, true}, // deadlock
		{&mysql.MySQLError{Number: 1062}, false},
		{fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1213}), true},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsRetryable(c.err); got != c.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
