package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoManifest is returned when no manifest path is provided after "run"
var ErrNoManifest = errors.New("no manifest provided: usage: figcheck run [flags] <manifest.yaml>")

// ErrNoRunSubcommand is returned when the "run" subcommand is not provided
var ErrNoRunSubcommand = errors.New("missing subcommand: usage: figcheck run [flags] <manifest.yaml>")

// ErrMissingFlagValue is returned when a flag requires a value but none is provided
var ErrMissingFlagValue = errors.New("flag requires a value")

// Subcommand represents the CLI subcommand
type Subcommand string

const (
	SubcommandRun Subcommand = "run"
)

// Command represents the parsed CLI input
type Command struct {
	Subcommand Subcommand
	Manifest   string // path to the suite manifest

	// Comparison flags
	BaselinePath string   // --baseline-path <dirs/urls, comma-separated>
	HashLibrary  string   // --hash-library <path>
	Tolerance    *float64 // --tolerance <number>

	// Generation flags
	GeneratePath        string // --generate-path <dir>
	GenerateHashLibrary string // --generate-hash-library <path>

	// Results flags
	ResultsPath     string // --results-path <dir>
	ResultsAlways   bool   // --results-always
	GenerateSummary string // --generate-summary <html|basic-html|json, comma-separated>

	// RenderOnly disables comparison entirely: tests are rendered and the
	// run passes or fails on rendering alone (pass-through mode).
	RenderOnly bool // --render-only

	JSONOutput bool // --json
}

// ParseArgs parses CLI arguments into a Command.
// It expects args to be os.Args[1:] (excluding the program name).
func ParseArgs(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, ErrNoRunSubcommand
	}

	if args[0] != string(SubcommandRun) {
		return Command{}, ErrNoRunSubcommand
	}

	cmd := Command{Subcommand: SubcommandRun}

	i := 1
	for i < len(args) {
		arg := args[i]

		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			switch flagName {
			case "baseline-path":
				if i+1 >= len(args) {
					return Command{}, ErrMissingFlagValue
				}
				i++
				cmd.BaselinePath = args[i]
			case "hash-library":
				if i+1 >= len(args) {
					return Command{}, ErrMissingFlagValue
				}
				i++
				cmd.HashLibrary = args[i]
			case "tolerance":
				if i+1 >= len(args) {
					return Command{}, ErrMissingFlagValue
				}
				i++
				tol, err := strconv.ParseFloat(args[i], 64)
				if err != nil || tol < 0 {
					return Command{}, fmt.Errorf("invalid tolerance '%s': must be a non-negative number", args[i])
				}
				cmd.Tolerance = &tol
			case "generate-path":
				if i+1 >= len(args) {
					return Command{}, ErrMissingFlagValue
				}
				i++
				cmd.GeneratePath = args[i]
			case "generate-hash-library":
				if i+1 >= len(args) {
					return Command{}, ErrMissingFlagValue
				}
				i++
				cmd.GenerateHashLibrary = args[i]
			case "results-path":
				if i+1 >= len(args) {
					return Command{}, ErrMissingFlagValue
				}
				i++
				cmd.ResultsPath = args[i]
			case "results-always":
				cmd.ResultsAlways = true
			case "generate-summary":
				if i+1 >= len(args) {
					return Command{}, ErrMissingFlagValue
				}
				i++
				cmd.GenerateSummary = args[i]
			case "render-only":
				cmd.RenderOnly = true
			case "json":
				cmd.JSONOutput = true
			default:
				return Command{}, fmt.Errorf("unknown flag --%s", flagName)
			}
			i++
			continue
		}

		// Not a flag - this is the manifest path
		if cmd.Manifest != "" {
			return Command{}, fmt.Errorf("unexpected argument '%s': only one manifest may be given", arg)
		}
		cmd.Manifest = arg
		i++
	}

	if cmd.Manifest == "" {
		return Command{}, ErrNoManifest
	}

	return cmd, nil
}
