// reviewctl is the operator tool for the manuscript review service: it
// generates signing keys, issues tokens, applies migrations and verifies
// lifecycle event chains.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"manuscript-review/internal/auth"
	"manuscript-review/internal/config"
	"manuscript-review/internal/database"
	"manuscript-review/internal/models"
	"manuscript-review/internal/repository"
	"manuscript-review/internal/scheduler"
	"manuscript-review/internal/service"
	"manuscript-review/migrations"
)

const usage = `Usage: reviewctl <command> [flags]

Commands:
  keygen         generate an ES256 key pair for JWT_SECRET
  token          issue a bearer token for an actor
  migrate        apply pending database migrations
  verify-chain   verify lifecycle event chains
`

// exitError carries a non-default exit status
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(out, usage)
		return nil
	}

	command, rest := args[0], args[1:]
	switch command {
	case "keygen":
		return runKeygen(rest, out)
	case "token":
		return runToken(rest, out)
	case "migrate":
		return runMigrate(ctx, rest, out)
	case "verify-chain":
		return runVerifyChain(ctx, rest, out)
	default:
		return &exitError{code: 2, err: fmt.Errorf("unknown command %q\n\n%s", command, usage)}
	}
}

func parseFlags(flagSet *pflag.FlagSet, args []string) error {
	if err := flagSet.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	if flagSet.NArg() > 0 {
		return &exitError{code: 2, err: fmt.Errorf("unexpected arguments: %v", flagSet.Args())}
	}
	return nil
}

func runKeygen(args []string, out io.Writer) error {
	var outFile string
	flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	flagSet.StringVarP(&outFile, "out", "o", "", "also write the private key to this file")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	privatePEM, err := auth.GenerateKeyPEM()
	if err != nil {
		return err
	}
	publicPEM, err := auth.PublicKeyPEM(privatePEM)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "JWT_SECRET=%s\n", auth.EscapePEM(privatePEM))
	fmt.Fprintf(out, "\nVerification key for other services:\n%s", publicPEM)

	if outFile != "" {
		if err := os.WriteFile(outFile, privatePEM, 0o600); err != nil {
			return fmt.Errorf("failed to write private key file: %w", err)
		}
		fmt.Fprintf(out, "\nPrivate key saved to %s\n", outFile)
	}
	return nil
}

func runToken(args []string, out io.Writer) error {
	var id uint
	var role string
	flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flagSet.UintVar(&id, "id", 0, "actor id")
	flagSet.StringVar(&role, "role", "", "actor role (admin, editor, author, reviewer)")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	actor := models.Actor{ID: id, Role: models.Role(role)}
	if actor.ID == 0 || !actor.Role.Valid() {
		return &exitError{code: 2, err: errors.New("--id and a valid --role are required")}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tokens, err := auth.NewService(&cfg.JWT)
	if err != nil {
		return err
	}
	token, err := tokens.GenerateToken(actor)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func openDatabase(ctx context.Context) (*database.Database, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver != config.StoragePostgres {
		return nil, fmt.Errorf("storage driver %q has nothing to operate on", cfg.Storage.Driver)
	}
	return database.New(ctx, &cfg.Database)
}

func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	var status bool
	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.BoolVar(&status, "status", false, "list applied migrations instead of applying")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	executor := database.NewMigrationExecutor(db.DB)
	if !status {
		if err := executor.RunMigrations(ctx, migrations.FS); err != nil {
			return err
		}
	}

	applied, err := executor.Applied(ctx)
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(out, "%s  %s  %s\n", m.Version, m.Checksum, m.Title)
	}
	return nil
}

func runVerifyChain(ctx context.Context, args []string, out io.Writer) error {
	var submissionID uint
	flagSet := pflag.NewFlagSet("verify-chain", pflag.ContinueOnError)
	flagSet.UintVar(&submissionID, "submission", 0, "verify a single submission (default: all)")
	if err := parseFlags(flagSet, args); err != nil {
		return err
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return verifyChains(ctx, repository.NewPostgresStore(db.DB), submissionID, out)
}

func verifyChains(ctx context.Context, store repository.Reader, submissionID uint, out io.Writer) error {
	var broken []models.ChainVerification
	if submissionID != 0 {
		events, err := store.ListEvents(ctx, submissionID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("submission %d has no events", submissionID)
		}
		result := service.VerifyEvents(submissionID, events)
		if !result.Valid {
			broken = append(broken, result)
		}
	} else {
		var err error
		broken, err = scheduler.NewScheduler(store, nil, &config.SchedulerConfig{}).ValidateEventChains(ctx)
		if err != nil {
			return err
		}
	}

	if len(broken) == 0 {
		fmt.Fprintln(out, "all event chains are intact")
		return nil
	}
	for _, result := range broken {
		fmt.Fprintf(out, "submission %d: %d events\n", result.SubmissionID, result.Events)
		for _, problem := range result.Problems {
			fmt.Fprintf(out, "  %s\n", problem)
		}
	}
	return &exitError{code: 3, err: fmt.Errorf("%d broken event chain(s)", len(broken))}
}
