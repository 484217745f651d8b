// Package actions loads the project-local grove.yaml: user-defined
// action buttons (name to shell command) and lifecycle hooks that run
// around worktree creation and removal.
package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	groveerrors "github.com/zafnz/grove/internal/errors"
	pexec "github.com/zafnz/grove/internal/exec"
	"github.com/zafnz/grove/internal/logger"
)

// FileName is the project-local config file, looked up in the
// repository root.
const FileName = "grove.yaml"

// Hook names.
const (
	HookPreCreate  = "pre_create"
	HookPostCreate = "post_create"
	HookPreRemove  = "pre_remove"
	HookPostRemove = "post_remove"
)

// Hooks are the lifecycle commands run around worktree operations.
type Hooks struct {
	PreCreate  string `yaml:"pre_create,omitempty"`
	PostCreate string `yaml:"post_create,omitempty"`
	PreRemove  string `yaml:"pre_remove,omitempty"`
	PostRemove string `yaml:"post_remove,omitempty"`
}

// Config is the parsed grove.yaml. A nil Actions map means the file
// had no actions key, so callers show the default action set; an empty
// map means the user explicitly configured none.
type Config struct {
	Actions map[string]string `yaml:"actions"`
	Hooks   Hooks             `yaml:"hooks,omitempty"`
}

// executor runs hook and action commands. Swappable for tests.
var executor pexec.CommandExecutor = pexec.NewRealExecutor()

// SetExecutor sets the command executor used by this package.
func SetExecutor(e pexec.CommandExecutor) {
	executor = e
}

// GetExecutor returns the current command executor.
func GetExecutor() pexec.CommandExecutor {
	return executor
}

// Load reads grove.yaml from a project root. A missing file yields the
// zero Config (defaults); a malformed file is an error the user should
// see, since a silently ignored config is worse than a parse message.
func Load(projectRoot string) (Config, error) {
	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, groveerrors.E(groveerrors.Op("actions.Load"), groveerrors.KindIO, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, groveerrors.E(groveerrors.Op("actions.Load"), groveerrors.KindInvalid,
			fmt.Sprintf("failed to parse %s", path), err)
	}
	return cfg, nil
}

// Names returns the configured action names, sorted. Nil when no
// actions key was present, so callers can distinguish "defaults" from
// "explicitly none".
func (c Config) Names() []string {
	if c.Actions == nil {
		return nil
	}
	names := make([]string, 0, len(c.Actions))
	for name := range c.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAction executes a named action in the given directory.
func (c Config) RunAction(ctx context.Context, name, dir string) (string, error) {
	command, ok := c.Actions[name]
	if !ok {
		return "", groveerrors.E(groveerrors.Op("actions.RunAction"), groveerrors.KindNotFound,
			fmt.Sprintf("no action named %q", name))
	}
	return runShell(ctx, command, dir)
}

// hookCommand returns the command for a hook name, empty when unset.
func (c Config) hookCommand(hook string) string {
	switch hook {
	case HookPreCreate:
		return c.Hooks.PreCreate
	case HookPostCreate:
		return c.Hooks.PostCreate
	case HookPreRemove:
		return c.Hooks.PreRemove
	case HookPostRemove:
		return c.Hooks.PostRemove
	}
	return ""
}

// RunHook executes a lifecycle hook in the given directory. An unset
// hook is a no-op; a failing hook is an error the caller must surface,
// never swallow.
func (c Config) RunHook(ctx context.Context, hook, dir string) error {
	command := c.hookCommand(hook)
	if command == "" {
		return nil
	}

	logger.Debug("Actions: running %s hook: %s", hook, command)
	output, err := runShell(ctx, command, dir)
	if err != nil {
		return groveerrors.E(groveerrors.Op("actions.RunHook"), groveerrors.KindIO,
			fmt.Sprintf("%s hook failed: %s", hook, strings.TrimSpace(output)), err)
	}
	return nil
}

func runShell(ctx context.Context, command, dir string) (string, error) {
	output, err := executor.CombinedOutput(ctx, dir, "sh", "-c", command)
	return string(output), err
}
