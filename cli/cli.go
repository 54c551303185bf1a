package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

var (
	HelpPatterns = []string{"--help", "-h", "help"} // HelpPatterns trigger the output of usage information from a [CommandSet].

	keyCleansePattern = regexp.MustCompile(`\s`)
)

// CommandFunc is a function that may be executed within a [Command].
// Flags have already been parsed, and positional arguments are available with [flag.FlagSet.Args].
type CommandFunc func(ctx context.Context, flags *flag.FlagSet, printer *Printer) error

// PreExec runs after a [Command]'s flags are parsed, but before it executes.
// The returned context is passed to the command, which allows a PreExec to attach values like a logger.
type PreExec func(ctx context.Context) (context.Context, error)

func cleanseKey(key string) string {
	return keyCleansePattern.ReplaceAllString(strings.ToLower(key), "")
}

// Command is an executable function in a CLI, created with [CommandSet.AddCommand].
type Command struct {
	key        string
	path       string
	shortUsage string
	usage      string
	aliases    []string
	flags      *flag.FlagSet
	exec       CommandFunc
	set        *CommandSet
}

// Does specifies the [CommandFunc] that should be executed by this [Command].
func (c *Command) Does(commandFunc CommandFunc) *Command {
	c.exec = commandFunc
	return c
}

// Usage specifies a longer description of the [Command], which is printed along with flag usage when help is requested.
func (c *Command) Usage(format string, args ...any) *Command {
	c.usage = fmt.Sprintf(format, args...)
	return c
}

// Flags returns the [flag.FlagSet] for this [Command], so flags can be defined before execution.
func (c *Command) Flags() *flag.FlagSet {
	return c.flags
}

// CommandPath returns the full invocation for this [Command], like "eventdemo serve".
func (c *Command) CommandPath() string {
	return c.path
}

// PrintUsage prints the usage text, flags, and aliases of this [Command].
func (c *Command) PrintUsage() {
	var buf strings.Builder
	buf.WriteString(c.shortUsage + "\n")
	buf.WriteString("\nUSAGE:\n  " + c.path)
	if len(c.usage) > 0 {
		buf.WriteString(" " + strings.TrimSuffix(c.usage, "\n"))
	}
	buf.WriteString("\n")
	if len(c.aliases) > 0 {
		buf.WriteString("\nALIASES:\n  " + strings.Join(c.aliases, ", ") + "\n")
	}
	if flags := c.flags.FlagUsages(); len(flags) > 0 {
		buf.WriteString("\nFLAGS:\n" + flags)
	}
	_, _ = io.WriteString(c.set.printer.Diagnostics(), buf.String())
}

func (c *Command) run(ctx context.Context, args []string) error {
	if err := c.flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintUsage()
			return nil
		}
		c.PrintUsage()
		return &UsageError{cause: err}
	}
	if c.exec == nil {
		c.PrintUsage()
		return nil
	}
	ctx, err := c.set.runBefore(ctx)
	if err != nil {
		return err
	}
	err = c.exec(ctx, c.flags, c.set.Printer())
	if errors.Is(err, &UsageError{}) {
		c.PrintUsage()
	}
	return err
}

// CommandSet is the root of a CLI, holding a group of [Command].
type CommandSet struct {
	name        string
	description string
	commands    map[string]*Command
	aliases     map[string]*Command
	before      []PreExec
	printer     *Printer
}

// NewCommandSet creates a [CommandSet] for the CLI invoked as name.
func NewCommandSet(name, description string) *CommandSet {
	return &CommandSet{
		name:        name,
		description: description,
		commands:    map[string]*Command{},
		aliases:     map[string]*Command{},
		printer:     NewPrinter(),
	}
}

// Printer returns the [Printer] shared by all commands in this set.
func (s *CommandSet) Printer() *Printer {
	return s.printer
}

// Before registers a [PreExec] that runs before any [Command] in the set.
// Passing a nil function will panic.
func (s *CommandSet) Before(fn PreExec) {
	if fn == nil {
		panic("nil pre-exec function")
	}
	s.before = append(s.before, fn)
}

// AddCommand adds a sub-command to this [CommandSet].
// The key will be cleansed to remove spaces, and normalized to lower-case.
// Aliases may be added as a way to support shorter variants of the same [Command].
func (s *CommandSet) AddCommand(key, shortUsage string, aliases ...string) *Command {
	key = cleanseKey(key)
	flags := flag.NewFlagSet(key, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(s.printer.Diagnostics())
	flags.Usage = func() {}
	cmd := &Command{
		key:        key,
		path:       strings.TrimSpace(s.name + " " + key),
		shortUsage: shortUsage,
		flags:      flags,
		set:        s,
	}
	s.commands[key] = cmd
	for _, alias := range aliases {
		alias = cleanseKey(alias)
		if len(alias) == 0 || slices.Contains(cmd.aliases, alias) {
			continue
		}
		s.aliases[alias] = cmd
		cmd.aliases = append(cmd.aliases, alias)
	}
	slices.Sort(cmd.aliases)
	return cmd
}

// Exec runs the [Command] named by the first argument, passing it the remaining arguments.
// With no arguments, or a help request, the set's usage is printed instead.
func (s *CommandSet) Exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		s.PrintUsage()
		return &UsageError{cause: ErrNoCommand}
	}
	if slices.Contains(HelpPatterns, args[0]) {
		s.PrintUsage()
		return nil
	}
	key := strings.ToLower(args[0])
	cmd, ok := s.commands[key]
	if !ok {
		cmd, ok = s.aliases[key]
	}
	if !ok {
		s.PrintUsage()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	return cmd.run(ctx, args[1:])
}

// PrintUsage prints the description of the CLI and its commands.
func (s *CommandSet) PrintUsage() {
	var buf strings.Builder
	buf.WriteString(s.name)
	if len(s.description) > 0 {
		buf.WriteString(" - " + s.description)
	}
	buf.WriteString("\n\nCOMMANDS:\n")
	buf.WriteString(s.CommandUsages())
	buf.WriteString(fmt.Sprintf("\nRun '%s COMMAND --help' for more information on a command.\n", s.name))
	_, _ = io.WriteString(s.printer.Diagnostics(), buf.String())
}

// CommandUsages returns the short usage of each [Command], sorted by key.
func (s *CommandSet) CommandUsages() string {
	keys := make([]string, 0, len(s.commands))
	names := map[string]string{}
	maxLen := 0
	for key, cmd := range s.commands {
		keys = append(keys, key)
		names[key] = strings.Join(append([]string{key}, cmd.aliases...), ", ")
		maxLen = max(maxLen, len(names[key]))
	}
	slices.Sort(keys)

	var buf strings.Builder
	for _, key := range keys {
		buf.WriteString(fmt.Sprintf("  %-*s  %s\n", maxLen, names[key], s.commands[key].shortUsage))
	}
	return buf.String()
}

func (s *CommandSet) runBefore(ctx context.Context) (context.Context, error) {
	for _, fn := range s.before {
		var err error
		ctx, err = fn(ctx)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}
