package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv_MissingFileIsIgnored(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if err := loadEnv(""); err != nil {
		t.Fatalf("loadEnv empty: %v", err)
	}
}

func TestLoadEnv_DoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("POSSYNC_TEST_A=from-file\nPOSSYNC_TEST_B=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POSSYNC_TEST_A", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("POSSYNC_TEST_B") })

	if err := loadEnv(path); err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	if got := os.Getenv("POSSYNC_TEST_A"); got != "from-env" {
		t.Fatalf("A = %q", got)
	}
	if got := os.Getenv("POSSYNC_TEST_B"); got != "from-file" {
		t.Fatalf("B = %q", got)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{{"relay"}, {"terminal", "run"}, {"terminal", "sync"}, {"terminal", "status"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == nil || cmd.Name() != path[len(path)-1] {
			t.Fatalf("command %v not found: %v", path, err)
		}
	}
}

func TestRelayConfigErrorsSurface(t *testing.T) {
	t.Setenv("PULL_PAGE_SIZE", "0")
	root := newRootCmd()
	root.SetArgs([]string{"--env-file", "", "relay"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected configuration error")
	}
}
