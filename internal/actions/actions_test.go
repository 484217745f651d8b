package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	groveerrors "github.com/zafnz/grove/internal/errors"
	pexec "github.com/zafnz/grove/internal/exec"
)

func withMock(t *testing.T) *pexec.MockExecutor {
	t.Helper()
	mock := pexec.NewMockExecutor()
	old := GetExecutor()
	SetExecutor(mock)
	t.Cleanup(func() { SetExecutor(old) })
	return mock
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_AbsentFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Actions != nil {
		t.Error("absent file should leave Actions nil (defaults)")
	}
	if cfg.Names() != nil {
		t.Error("Names() should be nil for defaults")
	}
}

func TestLoad_Full(t *testing.T) {
	dir := writeConfig(t, `
actions:
  test: go test ./...
  lint: golangci-lint run
hooks:
  post_create: npm install
  pre_remove: make clean
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got, want := cfg.Names(), []string{"lint", "test"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if cfg.Hooks.PostCreate != "npm install" {
		t.Errorf("PostCreate = %q", cfg.Hooks.PostCreate)
	}
	if cfg.Hooks.PreCreate != "" {
		t.Errorf("PreCreate = %q, want unset", cfg.Hooks.PreCreate)
	}
}

func TestLoad_EmptyActionsMap(t *testing.T) {
	dir := writeConfig(t, "actions: {}\n")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Actions == nil {
		t.Error("explicit empty map should not be nil")
	}
	if names := cfg.Names(); names == nil || len(names) != 0 {
		t.Errorf("Names() = %v, want empty non-nil", names)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := writeConfig(t, "actions: [not: a: map\n")
	_, err := Load(dir)
	if err == nil {
		t.Fatal("malformed yaml should error")
	}
	if !groveerrors.Is(err, groveerrors.KindInvalid) {
		t.Errorf("error kind = %v, want KindInvalid", groveerrors.GetKind(err))
	}
}

func TestRunHook_Unset(t *testing.T) {
	mock := withMock(t)
	var cfg Config

	if err := cfg.RunHook(context.Background(), HookPreCreate, "/dir"); err != nil {
		t.Fatalf("unset hook should be a no-op, got %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Error("unset hook ran a command")
	}
}

func TestRunHook_FailurePropagates(t *testing.T) {
	mock := withMock(t)
	mock.Stub("sh -c make clean", pexec.MockResponse{
		Stderr: "make: *** [clean] Error 2",
		Err:    errors.New("exit status 2"),
	})

	cfg := Config{Hooks: Hooks{PreRemove: "make clean"}}
	err := cfg.RunHook(context.Background(), HookPreRemove, "/dir")
	if err == nil {
		t.Fatal("failing hook must propagate")
	}
	if !groveerrors.Is(err, groveerrors.KindIO) {
		t.Errorf("error kind = %v, want KindIO", groveerrors.GetKind(err))
	}
}

func TestRunAction(t *testing.T) {
	mock := withMock(t)
	mock.Stub("sh -c go test ./...", pexec.MockResponse{Stdout: "ok\n"})

	cfg := Config{Actions: map[string]string{"test": "go test ./..."}}
	output, err := cfg.RunAction(context.Background(), "test", "/dir")
	if err != nil {
		t.Fatalf("RunAction() error = %v", err)
	}
	if output != "ok\n" {
		t.Errorf("output = %q", output)
	}

	if _, err := cfg.RunAction(context.Background(), "missing", "/dir"); !groveerrors.Is(err, groveerrors.KindNotFound) {
		t.Errorf("unknown action kind = %v, want KindNotFound", groveerrors.GetKind(err))
	}
}
