package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zafnz/grove/internal/actions"
	"github.com/zafnz/grove/internal/logger"
	"github.com/zafnz/grove/internal/store"
)

var (
	debugMode             bool
	quietMode             bool
	storeDir              string
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Orchestrate git worktrees and AI coding-agent chats",
	Long: `Grove manages git worktrees and the AI coding-agent chats that run
against them. Each ticket gets its own branch and worktree, with chat
transcripts persisted across restarts.`,
	RunE:          runTree,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Reduce logging to info level only")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store", "", "Override the state directory (default ~/.grove)")
}

func initLogging() {
	if quietMode {
		logger.SetDebug(false)
	} else if debugMode {
		logger.SetDebug(true)
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	defer logger.Close()
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("grove %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("grove %s\n", version)
}

// openStore resolves the state directory, honoring the --store flag.
func openStore() (*store.Store, error) {
	dir := storeDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".grove")
	}
	return store.New(dir), nil
}

// projectRoot resolves the repository root for the current directory.
func projectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return cwd, nil
}

// loadActions reads the project's grove.yaml, falling back to the
// defaults when the file is absent or malformed.
func loadActions(repoRoot string) actions.Config {
	cfg, err := actions.Load(repoRoot)
	if err != nil {
		logger.Warn("CLI: ignoring invalid %s: %v", actions.FileName, err)
		return actions.Config{}
	}
	return cfg
}
