/*
Package cli provides a small framework for a CLI with sub-commands.

A few policies apply to every command.

  - User-visible output goes to STDERR by default, through a configurable [Printer].
  - Flags are posix style, using [pflag], and are not interspersed with arguments.
  - Flags apply to the command at hand. Shared setup belongs in a [PreExec] registered with [CommandSet.Before].
  - Sub-command aliases may be given as additional parameters to [CommandSet.AddCommand].

# Invocation

Invoking a CLI with sub-commands follows this form:

	CLI_NAME SUB-COMMAND [FLAGS...] [ARGS...]

Just calling CLI_NAME, or passing one of [HelpPatterns], will print usage information for the tool.
Passing -h or --help to a sub-command prints its usage, including its flags.

A [CommandFunc] that returns a [UsageError] will also have its usage printed.
*/
package cli
