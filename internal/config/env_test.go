package config

import (
	"os"
	"path/filepath"
	"testing"
)

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
}

func TestLoadEnvFile_missing(t *testing.T) {
	err := LoadEnvFile(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("missing file should return nil: %v", err)
	}
}

func TestLoadEnvFile_setsEnv(t *testing.T) {
	unsetAfter(t, "VODKA_TEST_FOO", "VODKA_TEST_BAZ")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("VODKA_TEST_FOO=bar\n# comment\nVODKA_TEST_BAZ=quux\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("VODKA_TEST_FOO") != "bar" {
		t.Errorf("VODKA_TEST_FOO = %q", os.Getenv("VODKA_TEST_FOO"))
	}
	if os.Getenv("VODKA_TEST_BAZ") != "quux" {
		t.Errorf("VODKA_TEST_BAZ = %q", os.Getenv("VODKA_TEST_BAZ"))
	}
}

func TestLoadEnvFile_unquote(t *testing.T) {
	unsetAfter(t, "VODKA_TEST_X")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(`VODKA_TEST_X="hello world"`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("VODKA_TEST_X") != "hello world" {
		t.Errorf("VODKA_TEST_X = %q", os.Getenv("VODKA_TEST_X"))
	}
}

func TestLoadEnvFile_keepsExisting(t *testing.T) {
	unsetAfter(t, "VODKA_TEST_KEEP")
	os.Setenv("VODKA_TEST_KEEP", "from-env")
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("VODKA_TEST_KEEP=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("VODKA_TEST_KEEP"); got != "from-env" {
		t.Errorf("VODKA_TEST_KEEP = %q, want from-env", got)
	}
}
