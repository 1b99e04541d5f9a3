// Package main is the entry point for the Workroom admin CLI.
// It manages user accounts directly against the credential store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/config"
	"github.com/prn-tf/workroom/internal/repository"
	"github.com/prn-tf/workroom/internal/repository/fsrepo"
	"github.com/prn-tf/workroom/internal/repository/postgres"
	"github.com/prn-tf/workroom/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("Workroom Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "user":
		if err := runUserCommand(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runUserCommand(args []string) error {
	if len(args) < 1 {
		return errors.New("user command requires a subcommand: list, disable, enable")
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("user list", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		limit := fs.Int("limit", 50, "maximum number of users to show")
		offset := fs.Int("offset", 0, "number of users to skip")
		fs.Parse(args[1:])
		return listUsers(*configPath, *limit, *offset)

	case "disable":
		fs := flag.NewFlagSet("user disable", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		username := fs.String("username", "", "username to disable")
		fs.Parse(args[1:])
		if *username == "" {
			return errors.New("--username is required")
		}
		return setDisabled(*configPath, *username, true)

	case "enable":
		fs := flag.NewFlagSet("user enable", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		username := fs.String("username", "", "username to enable")
		fs.Parse(args[1:])
		if *username == "" {
			return errors.New("--username is required")
		}
		return setDisabled(*configPath, *username, false)

	default:
		return fmt.Errorf("unknown user subcommand: %s", args[0])
	}
}

func listUsers(configPath string, limit, offset int) error {
	ctx := context.Background()
	repo, cleanup, err := openRepository(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tEMAIL\tDISABLED\tCREATED\tLAST LOGIN")
	for _, u := range result.Items {
		lastLogin := "-"
		if !u.LastLogin.IsZero() {
			lastLogin = u.LastLogin.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
			u.Username, u.Email, u.Disabled,
			u.CreatedAt.Format("2006-01-02 15:04:05"), lastLogin)
	}
	w.Flush()

	fmt.Printf("\n%d of %d users\n", len(result.Items), result.Total)
	return nil
}

// setDisabled flips the account flag directly on the record so the
// stored (possibly encrypted) API key round-trips untouched.
func setDisabled(configPath, username string, disabled bool) error {
	ctx := context.Background()
	repo, cleanup, err := openRepository(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}

	if user.Disabled == disabled {
		fmt.Printf("User %q already %s\n", username, statusWord(disabled))
		return nil
	}

	user.Disabled = disabled
	if err := repo.Update(ctx, user); err != nil {
		return err
	}

	fmt.Printf("User %q %s\n", username, statusWord(disabled))
	return nil
}

func statusWord(disabled bool) string {
	if disabled {
		return "disabled"
	}
	return "enabled"
}

// openRepository connects to the configured credential store.
func openRepository(ctx context.Context, configPath string) (repository.UserRepository, func(), error) {
	noop := func() {}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, noop, err
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel)

	switch cfg.Store.Driver {
	case "fs":
		repo, err := fsrepo.NewUserRepository(cfg.Store.UsersDir, logger)
		if err != nil {
			return nil, noop, err
		}
		return repo, noop, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.Config{
			Path:            cfg.Store.Path,
			JournalMode:     cfg.Store.JournalMode,
			BusyTimeout:     cfg.Store.BusyTimeout,
			SynchronousMode: cfg.Store.SynchronousMode,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return sqlite.NewUserRepository(db), func() { db.Close() }, nil

	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Store, logger)
		if err != nil {
			return nil, noop, err
		}
		return postgres.NewUserRepository(db), func() { db.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

func printUsage() {
	fmt.Println(`Workroom Admin CLI

Usage:
  workroom-admin <command> [arguments]

Commands:
  user        Manage users (list, disable, enable)
  version     Print version information
  help        Show this help message

Examples:
  workroom-admin user list --config config.yaml
  workroom-admin user disable --username alice_dev1
  workroom-admin user enable --username alice_dev1`)
}
