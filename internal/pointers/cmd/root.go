package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"pointers/internal/analysis"
	"pointers/internal/config"
	"pointers/internal/disasm"
	"pointers/internal/pointers/log"
	"pointers/internal/pointers/styles"
	"pointers/internal/target"
	"pointers/internal/ui/colorize"
)

// settings is the loaded configuration file, set before any command runs.
var settings = config.Default()

func init() {
	rootCmd.PersistentFlags().IntP("pid", "p", 0, "Inspect a live process")
	rootCmd.PersistentFlags().StringP("exe", "e", "", "Inspect an ELF image on disk")
	rootCmd.PersistentFlags().String("pc", "", "Program counter expression, overriding the target's")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default $XDG_CONFIG_HOME/pointers/config.yml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().Int("pointer-width", 0, "Pointer width in bytes (4 or 8)")
	rootCmd.PersistentFlags().String("endian", "", "Byte order (little or big)")
	rootCmd.PersistentFlags().BoolP("listing", "l", false, "Print the instructions carrying the pointers after show")

	rootCmd.Flags().BoolP("help", "h", false, "Help")

	rootCmd.AddCommand(showCmd, toCmd)
}

var rootCmd = &cobra.Command{
	Use:   "pointers",
	Short: "Find the pointers a range of code refers to",
	Long: `Pointers disassembles a range of code, collects every address its
instructions mention and tells what each one is: a symbol, an anonymous
location in a section, or nothing known. Named addresses are followed one
level through memory.

Without a subcommand an interactive session is started on the target.`,
	Example: `
# Interactive session on a running process
pointers -p 1234

# Every pointer in the mapping holding the entry point of a binary
pointers show -e ./a.out

# Which named locations of main hold 0x404010
pointers to 0x404010 main main+0x200 -e ./a.out
  `,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		settings = c

		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug || settings.Debug)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		width := 80
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
			width = w
		}
		return newREPL(a, settings.HistoryFile, width).Run()
	},
}

var showCmd = &cobra.Command{
	Use:   "show [<start_pc> <end_pc>]",
	Short: "List every pointer in a range",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, append([]string{verbShow}, args...))
	},
}

var toCmd = &cobra.Command{
	Use:   "to <address> [<start_pc> <end_pc>]",
	Short: "List the named pointers whose memory holds an address",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, append([]string{verbTo}, args...))
	},
}

// runOnce executes one command against a freshly opened target. Malformed
// arguments print the usage without opening anything.
func runOnce(cmd *cobra.Command, args []string) error {
	c, err := parseCommand(args)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), styles.NewOutput(useColor(cmd.OutOrStdout())).Usage(usage))
		return nil
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	err = c.run(a)
	if errors.Is(err, analysis.ErrBadUsage) {
		fmt.Fprintln(a.out, a.style.Usage(usage))
		return nil
	}
	return err
}

// openApp opens the target named by the flags and builds its session.
func openApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()
	opts := target.Options{
		PointerWidth: settings.PointerWidth,
		Endian:       settings.Endian,
		CacheSize:    settings.ResolverCacheSize,
	}
	opts.PID, _ = flags.GetInt("pid")
	opts.Exe, _ = flags.GetString("exe")
	if flags.Changed("pointer-width") {
		opts.PointerWidth, _ = flags.GetInt("pointer-width")
	}
	if flags.Changed("endian") {
		opts.Endian, _ = flags.GetString("endian")
	}

	t, err := target.Open(opts)
	if err != nil {
		return nil, err
	}

	if expr, _ := flags.GetString("pc"); expr != "" {
		pc, err := target.NewEvaluator(t.Symbols(), t.Registers).Eval(expr)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("--pc: %w", err)
		}
		t = target.WithPC(t, pc)
	}

	listing := settings.Listing
	if flags.Changed("listing") {
		listing, _ = flags.GetBool("listing")
	}

	slog.Debug("Session ready", "arch", t.Arch().String(), "pid", opts.PID, "exe", opts.Exe)
	return &app{
		session: target.Session(t, disasm.New(t.Arch(), t)),
		eval:    target.NewEvaluator(t.Symbols(), t.Registers),
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		style:   styles.NewOutput(useColor(cmd.OutOrStdout())),
		listing: listing,
		names:   t.Symbols().Names,
		closer:  t,
	}, nil
}

// useColor applies the color setting. Like POINTERS_NO_COLOR, "never" and
// non-terminal output in "auto" mode turn listing highlighting off too.
func useColor(w io.Writer) bool {
	switch settings.Color {
	case "always":
		return true
	case "never":
		os.Setenv("POINTERS_NO_COLOR", "1")
		return false
	}
	if colorize.Disabled() {
		return false
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		os.Setenv("POINTERS_NO_COLOR", "1")
		return false
	}
	return true
}

var (
	exit     = os.Exit
	closeLog = log.Close
)

func Execute() {
	err := execute()
	closeLog()
	if err != nil {
		exit(1)
	}
}

func execute() error {
	// Use cobra directly when output is piped so fang does not style it.
	if !term.IsTerminal(os.Stdout.Fd()) {
		return rootCmd.Execute()
	}
	return fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	)
}
