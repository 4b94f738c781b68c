// Command authctl offers operator utilities for the credential service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-auth/cmd/authctl/cli"
	"github.com/odyssey-erp/odyssey-auth/internal/app"
	"github.com/odyssey-erp/odyssey-auth/internal/auth"
	"github.com/odyssey-erp/odyssey-auth/internal/password"
	"github.com/odyssey-erp/odyssey-auth/internal/platform/db"
	"github.com/odyssey-erp/odyssey-auth/internal/shared"
	"github.com/odyssey-erp/odyssey-auth/internal/token"
	"github.com/odyssey-erp/odyssey-auth/internal/view"
	"github.com/odyssey-erp/odyssey-auth/jobs"
)

const usage = `usage: authctl <command> [flags]

commands:
  revoke      -user <id> [-json]             invalidate every token issued to a user
  resend      -user <id> [-json]             re-send the verification email
  role        -user <id> -role <role> [-json] change a user's role (revokes sessions)
  audit       -user <id> [-limit n] [-json]  show the account's audit trail
  jobs-stats  [-archived n] [-json]          show mail queue statistics
`

func main() {
	if app.InTestMode() {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	command, rest := args[0], args[1:]
	switch command {
	case "revoke", "resend", "role", "audit", "jobs-stats":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	userID := fs.String("user", "", "user id")
	role := fs.String("role", "", "role to assign (user or admin)")
	archived := fs.Int("archived", 0, "number of archived tasks to list")
	limit := fs.Int("limit", 20, "number of audit entries to show")
	jsonOutput := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	if command == "jobs-stats" {
		jobsCLI, err := cli.NewJobsCLI(redisOpts)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs cli: %v\n", err)
			return 1
		}
		defer func() { _ = jobsCLI.Close() }()
		return jobsCLI.StatsCommand(ctx, cli.StatsOptions{JSONOutput: *jsonOutput, Archived: *archived, Stdout: stdout, Stderr: stderr})
	}

	deps, err := buildDeps(ctx, cfg, logger, redisOpts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
	defer deps.close()

	if command == "audit" {
		auditCLI, err := cli.NewAuditCLI(deps.audit)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "audit: %v\n", err)
			return 1
		}
		return auditCLI.AuditCommand(ctx, cli.AuditOptions{UserID: *userID, Limit: *limit, JSONOutput: *jsonOutput, Stdout: stdout, Stderr: stderr})
	}

	accounts, err := cli.NewAccountsCLI(deps.service)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
	opts := cli.AccountOptions{UserID: *userID, Role: *role, JSONOutput: *jsonOutput, Stdout: stdout, Stderr: stderr}
	switch command {
	case "revoke":
		return accounts.RevokeCommand(ctx, opts)
	case "resend":
		return accounts.ResendCommand(ctx, opts)
	default:
		return accounts.RoleCommand(ctx, opts)
	}
}

type operatorDeps struct {
	service *auth.Service
	audit   *shared.AuditLogger
	close   func()
}

func buildDeps(ctx context.Context, cfg *app.Config, logger *slog.Logger, redisOpts asynq.RedisClientOpt) (*operatorDeps, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		pool.Close()
		return nil, err
	}
	cleanup := func() {
		_ = jobClient.Close()
		pool.Close()
	}
	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		cleanup()
		return nil, err
	}
	signer, err := token.NewSigner(cfg.TokenConfig())
	if err != nil {
		cleanup()
		return nil, err
	}
	templates, err := view.NewEngine()
	if err != nil {
		cleanup()
		return nil, err
	}
	auditLogger := shared.NewAuditLogger(pool)
	service := auth.NewService(auth.ServiceDeps{
		Repo:      auth.NewRepository(pool),
		Hasher:    hasher,
		Signer:    signer,
		Mailer:    jobClient,
		Templates: templates,
		Audit:     auditLogger,
		Logger:    logger,
		AppURL:    cfg.AppURL,
	})
	return &operatorDeps{service: service, audit: auditLogger, close: cleanup}, nil
}
