package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"expensetracker/internal/auth"
	"expensetracker/internal/backend"
	"expensetracker/internal/config"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"

	"github.com/google/subcommands"
	"golang.org/x/term"
)

type addUserCmd struct {
	username string
	password string

	cfg    *config.Config
	logger *log.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	open   func(ctx context.Context) (*backend.BackendResult, error)
}

func newAddUserCmd(cfg *config.Config, logger *log.Logger) *addUserCmd {
	c := &addUserCmd{
		cfg:    cfg,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	c.open = func(ctx context.Context) (*backend.BackendResult, error) {
		bc, err := backendConfig(c.cfg)
		if err != nil {
			return nil, err
		}
		return backend.NewFactory(c.logger).CreateBackend(ctx, bc)
	}
	return c
}

func (*addUserCmd) Name() string     { return "adduser" }
func (*addUserCmd) Synopsis() string { return "create a user allowed to call the API" }
func (*addUserCmd) Usage() string {
	return `expensectl adduser -user <username> [-password <password>]

  Creates a user in the configured backend. The password is prompted for
  when -password is omitted.
`
}

func (c *addUserCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.username, "user", "", "Username.")
	f.StringVar(&c.password, "password", "", "Password (optional, will prompt if omitted).")
}

func (c *addUserCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if strings.TrimSpace(c.username) == "" {
		fmt.Fprintln(c.stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}

	password := c.password
	if password == "" {
		fmt.Fprint(c.stdout, "Password: ")
		var err error
		password, err = readPassword(c.stdin)
		fmt.Fprintln(c.stdout)
		if err != nil {
			fmt.Fprintf(c.stderr, "Error: failed to read password: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	be, err := c.open(ctx)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: failed to open backend: %v\n", err)
		return subcommands.ExitFailure
	}
	defer be.Cleanup()

	if c.cfg != nil && c.cfg.DataBackend == config.BackendMemory {
		c.logger.WarnContext(ctx, "Memory backend selected, the user will not outlive this command; set BOOTSTRAP_USERNAME for the API instead")
	}

	authn := auth.NewAuthenticator(be.Store, 1, time.Minute, c.logger)
	u, err := authn.Register(ctx, c.username, password)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		fmt.Fprintf(c.stderr, "Error: user %s already exists\n", c.username)
		return subcommands.ExitFailure
	case err != nil:
		fmt.Fprintf(c.stderr, "Error: failed to create user: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Fprintf(c.stdout, "User %s created successfully with ID %s\n", u.Username, u.ID)
	return subcommands.ExitSuccess
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Fallback for non-terminal input (pipes, tests)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
