package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/fieldbase/fieldbase/cmd/fieldbase/cli"
	"github.com/fieldbase/fieldbase/internal/app"
	"github.com/fieldbase/fieldbase/internal/authz"
	"github.com/fieldbase/fieldbase/internal/platform/db"
	"github.com/fieldbase/fieldbase/jobs"
)

const usage = `usage: fieldbase [command]

commands:
  serve                                  run the HTTP server (default)
  catalog validate [--file path] [--json]
  catalog list [--file path] [--json]
  check --user id (--key key | --action a --subject s) [--json]
  jobs trigger [name]
  jobs inspect
`

// runCommand dispatches operator subcommands and returns the exit code.
func runCommand(ctx context.Context, args []string) int {
	switch args[0] {
	case "catalog":
		return runCatalog(args[1:], os.Stdout, os.Stderr)
	case "check":
		return runCheck(ctx, args[1:])
	case "jobs":
		return runJobs(ctx, args[1:])
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(os.Stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
}

func runCatalog(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("catalog "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("file", os.Getenv("AUTHZ_CATALOG_PATH"), "catalog YAML file; empty uses the embedded catalog")
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	opts := cli.CatalogOptions{Path: *path, JSONOutput: *asJSON, Stdout: stdout, Stderr: stderr}
	switch args[0] {
	case "validate":
		return cli.ValidateCatalogCommand(opts)
	case "list":
		return cli.ListCatalogCommand(opts)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown catalog command %q\n", args[0])
		return 2
	}
}

func runCheck(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	user := fs.String("user", "", "principal id")
	key := fs.String("key", "", "catalog key, e.g. role.manage")
	action := fs.String("action", "", "action when no key is given")
	subject := fs.String("subject", "", "subject when no key is given")
	asJSON := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "check: load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "check: connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	catalog, err := authz.LoadCatalog(cfg.AuthzCatalogPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "check: %v\n", err)
		return 1
	}
	checker := cli.NewCheckCLI(permissionStore(cfg, pool, logger, nil), catalog, cfg.AuthzStoreTimeout)
	return checker.CheckCommand(ctx, cli.CheckOptions{
		PrincipalID: *user,
		Key:         *key,
		Action:      *action,
		Subject:     *subject,
		JSONOutput:  *asJSON,
	})
}

func runJobs(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch args[0] {
	case "trigger":
		name := jobs.TaskRolesRefresh
		if len(args) > 1 {
			name = args[1]
		}
		info, err := jobsCLI.Trigger(ctx, name)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(os.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case "inspect":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		if err := json.NewEncoder(os.Stdout).Encode(stats); err != nil {
			return 1
		}
		return 0
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown jobs command %q\n", args[0])
		return 2
	}
}
