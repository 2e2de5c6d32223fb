package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"spendbook/internal/cli"
	"spendbook/internal/config"
	applog "spendbook/internal/log"
	"spendbook/internal/services"
)

// command is one subcommand. run receives the arguments after the
// subcommand name.
type command struct {
	summary string
	usage   string
	run     func(ctx context.Context, env *env, args []string) error
}

// env is what every subcommand gets: the opened app plus its output streams.
type env struct {
	*cli.App
	stdout io.Writer
	stderr io.Writer
}

var errUsage = errors.New("usage")

var commands = map[string]command{
	"init":     {summary: "create or repair the expense database", usage: "init", run: cmdInit},
	"add":      {summary: "record a new expense", usage: "add -title T -amount N [-category C] [-date YYYY-MM-DD] [-desc D]", run: cmdAdd},
	"list":     {summary: "list all expenses, newest first", usage: "list", run: cmdList},
	"show":     {summary: "show one expense", usage: "show ID", run: cmdShow},
	"edit":     {summary: "change fields of an expense", usage: "edit [-title T] [-amount N] [-category C] [-date D] [-desc D] ID", run: cmdEdit},
	"delete":   {summary: "delete an expense", usage: "delete ID", run: cmdDelete},
	"search":   {summary: "find expenses by title, description or category", usage: "search QUERY", run: cmdSearch},
	"range":    {summary: "list expenses between two dates", usage: "range [-from YYYY-MM-DD] [-to YYYY-MM-DD]", run: cmdRange},
	"stats":    {summary: "totals per category and month", usage: "stats [-months N]", run: cmdStats},
	"budget":   {summary: "this month's spending against the budget", usage: "budget", run: cmdBudget},
	"export":   {summary: "write all expenses as CSV", usage: "export [-o FILE]", run: cmdExport},
	"import":   {summary: "add expenses from a CSV export", usage: "import FILE", run: cmdImport},
	"clear":    {summary: "delete every expense", usage: "clear -yes", run: cmdClear},
	"reset":    {summary: "back up, delete and recreate the database", usage: "reset -yes", run: cmdReset},
	"settings": {summary: "show or change preferences", usage: "settings [-currency C] [-budget N] [-alert PCT] [-default-category C] [-budget-enabled BOOL]", run: cmdSettings},
	"doctor":   {summary: "report database and settings health", usage: "doctor", run: cmdDoctor},
	"watch":    {summary: "print budget status whenever settings change", usage: "watch", run: cmdWatch},
}

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	os.Exit(run(context.Background(), cfg, logger, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, cfg *config.Config, logger *applog.Logger, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stderr)
		if len(args) == 0 {
			return 2
		}
		return 0
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		printUsage(stderr)
		return 2
	}

	app, err := cli.Open(ctx, cfg, logger)
	if err != nil {
		logger.ErrorContext(ctx, "Startup failed", applog.FieldError, err)
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer app.Close()

	err = cmd.run(ctx, &env{App: app, stdout: stdout, stderr: stderr}, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		fmt.Fprintf(stderr, "usage: spendbook %s\n", cmd.usage)
		return 2
	case errors.Is(err, services.ErrWriteFailed):
		logger.ErrorContext(ctx, "Write failed", applog.FieldError, err)
		fmt.Fprintln(stderr, "error:", services.ErrWriteFailed)
		return 1
	default:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: spendbook <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "environment: "+strings.Join([]string{
		"SPENDBOOK_DB_PATH", "SPENDBOOK_SETTINGS_PATH", "SPENDBOOK_BACKUP_DIR", "LOG_LEVEL", "LOG_FORMAT",
	}, ", "))
}
