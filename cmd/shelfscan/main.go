// Command shelfscan is the terminal client for the ShelfScan service:
// authentication, bookshelf and book management, friends, communities and
// bookshelf-photo recognition uploads.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/collection"
	"github.com/shelfscan/shelfscan/internal/config"
	"github.com/shelfscan/shelfscan/internal/gateway"
	"github.com/shelfscan/shelfscan/internal/logger"
	"github.com/shelfscan/shelfscan/internal/prompt"
	"github.com/shelfscan/shelfscan/internal/session"
)

var (
	version   string
	buildDate string
)

// app bundles the wired client components for the command handlers.
type app struct {
	cfg     config.Options
	log     *zap.Logger
	store   *session.Store
	manager *session.Manager
	gw      *gateway.Gateway
	confirm collection.Confirmer
}

var (
	flagConfig  string
	flagServer  string
	flagYes     bool
	flagVerbose bool

	current *app
)

func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagServer != "" {
		cfg.ServerURL = flagServer
	}
	if flagVerbose {
		cfg.LogLevel = "debug"
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	store, err := session.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(cfg.ServerURL, store, log)
	manager := session.NewManager(store, gw, log)
	gw.OnAuthRejected(manager.HandleAuthRejection)

	var confirm collection.Confirmer = prompt.New(os.Stdin, os.Stdout)
	if flagYes {
		confirm = prompt.Auto{}
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		manager: manager,
		gw:      gw,
		confirm: confirm,
	}, nil
}

// requireSession verifies a persisted session when one exists and fails when
// the user is not authenticated afterwards.
func (a *app) requireSession(ctx context.Context) error {
	if a.manager.Phase() == session.Verifying {
		if err := a.manager.VerifyOnStart(ctx); err != nil {
			return fmt.Errorf("session expired, please log in again")
		}
	}
	if a.manager.Phase() != session.Authenticated {
		return fmt.Errorf("not logged in; run `shelfscan login` first")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shelfscan",
		Short:         "Client for the ShelfScan bookshelf service",
		Version:       fmt.Sprintf("%s (built %s)", orNA(version), orNA(buildDate)),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			current = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil {
				_ = current.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to JSON config file")
	root.PersistentFlags().StringVar(&flagServer, "server", "", "server base URL (overrides config)")
	root.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "answer yes to every confirmation")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newThemeCmd(),
		newShelvesCmd(),
		newBooksCmd(),
		newFriendsCmd(),
		newCommunitiesCmd(),
		newUploadCmd(),
	)
	return root
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
