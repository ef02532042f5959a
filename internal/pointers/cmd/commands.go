package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cosiner/argv"

	"pointers/internal/analysis"
	"pointers/internal/arch"
	"pointers/internal/pointers/styles"
	"pointers/internal/ui/colorize"
)

const (
	verbShow = "show"
	verbTo   = "to"

	usage = "pointers [show [<start_pc> <end_pc>]] \n\t [to <address> [<start_pc> <end_pc>]]"
)

// Evaluator turns an argument expression into an address.
type Evaluator interface {
	Eval(expr string) (uint64, error)
}

// app is everything a pointers command runs against: one target, its
// analysis session and where output goes.
type app struct {
	session *analysis.Session
	eval    Evaluator
	out     io.Writer
	errOut  io.Writer
	style   *styles.Output
	listing bool
	names   func() []string
	closer  io.Closer
}

func (a *app) Close() error {
	if names, hits, top := analysis.DemangleCacheStats(); names > 0 {
		slog.Debug("Demangled names", "names", names, "hits", hits, "top", top)
	}
	slog.Debug("Session closed", "ranges", a.session.Cache().Len())
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// command is a decoded pointers invocation.
type command interface {
	run(a *app) error
	isCommand()
}

// rangeArgs are the optional <start_pc> <end_pc> expressions.
type rangeArgs struct {
	start, end string
}

func (r rangeArgs) set() bool { return r.start != "" }

type showCommand struct {
	rng rangeArgs
}

type toCommand struct {
	value string
	rng   rangeArgs
}

func (showCommand) isCommand() {}
func (toCommand) isCommand()   {}

// tokenize splits a command line with shell quoting rules.
func tokenize(line string) ([]string, error) {
	v, err := argv.Argv(line,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrBadUsage, err)
	}
	if len(v) > 1 {
		return nil, fmt.Errorf("%w: pipes are not supported", analysis.ErrBadUsage)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v[0], nil
}

// parseCommand decodes the arguments of a pointers invocation. A leading
// "pointers" is accepted so lines typed for a debugger work unchanged.
func parseCommand(args []string) (command, error) {
	if len(args) > 0 && args[0] == "pointers" {
		args = args[1:]
	}
	if len(args) == 0 {
		return nil, analysis.ErrBadUsage
	}

	switch verb, rest := args[0], args[1:]; verb {
	case verbShow:
		switch len(rest) {
		case 0:
			return showCommand{}, nil
		case 2:
			return showCommand{rng: rangeArgs{rest[0], rest[1]}}, nil
		}
	case verbTo:
		switch len(rest) {
		case 1:
			return toCommand{value: rest[0]}, nil
		case 3:
			return toCommand{value: rest[0], rng: rangeArgs{rest[1], rest[2]}}, nil
		}
	}
	return nil, analysis.ErrBadUsage
}

// execute runs one command line. Usage errors print the usage text and are
// not returned; everything else is returned to the caller to report.
func (a *app) execute(line string) error {
	err := a.executeArgs(line)
	if errors.Is(err, analysis.ErrBadUsage) {
		slog.Debug("Bad usage", "line", line, "error", err)
		fmt.Fprintln(a.out, a.style.Usage(usage))
		return nil
	}
	return err
}

func (a *app) executeArgs(line string) error {
	args, err := tokenize(line)
	if err != nil {
		return err
	}
	c, err := parseCommand(args)
	if err != nil {
		return err
	}
	return c.run(a)
}

// scanRange evaluates the range arguments, defaulting to the mapping that
// holds the program counter.
func (a *app) scanRange(r rangeArgs) (analysis.ScanRange, error) {
	if !r.set() {
		return a.session.DefaultRange()
	}
	start, err := a.eval.Eval(r.start)
	if err != nil {
		return analysis.ScanRange{}, err
	}
	end, err := a.eval.Eval(r.end)
	if err != nil {
		return analysis.ScanRange{}, err
	}
	return analysis.ScanRange{Start: start, End: end}, nil
}

func (c showCommand) run(a *app) error {
	r, err := a.scanRange(c.rng)
	if err != nil {
		return err
	}
	recs, err := a.session.Show(r)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, a.style.Header(fmt.Sprintf("%d pointers found on %#x-%#x:", len(recs), r.Start, r.End)))
	for _, rec := range recs {
		fmt.Fprintln(a.out, a.style.Record(rec))
	}
	if a.listing {
		return a.printListing(r)
	}
	return nil
}

func (c toCommand) run(a *app) error {
	v, err := a.pointerValue(c.value)
	if err != nil {
		return err
	}
	r, err := a.scanRange(c.rng)
	if err != nil {
		return err
	}
	recs, err := a.session.FindPointersTo(v, r)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		fmt.Fprintln(a.out, a.style.Record(rec))
	}
	return nil
}

// pointerValue keeps the width of a hex literal as typed; any other
// expression is evaluated first and compared at its natural width.
func (a *app) pointerValue(arg string) (analysis.PointerValue, error) {
	if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
		if v, err := analysis.ParsePointerValue(arg); err == nil {
			return v, nil
		}
	}
	n, err := a.eval.Eval(arg)
	if err != nil {
		return analysis.PointerValue{}, err
	}
	return analysis.ParsePointerValue(fmt.Sprintf("%#x", n))
}

func (a *app) printListing(r analysis.ScanRange) error {
	insts, err := a.session.Listing(r)
	if err != nil {
		return err
	}
	arm := a.session.Arch().Decoder == arch.DecoderARM64
	for _, inst := range insts {
		line := inst.String()
		if a.style.Enabled() {
			line = colorize.Line(line, arm)
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}

// report prints a failed command the way the interactive session does and
// keeps going.
func (a *app) report(err error) {
	fmt.Fprintln(a.errOut, a.style.Failure(fmt.Sprintf("Command failed: %s", err)))
}
