package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a file of session commands against one target",
	Long: `Run every command of a script, one per line, against a single session.
Blank lines and lines starting with # are skipped. A failing command is
reported and the script continues.`,
	Example: `
# Scan two ranges of a stopped process
pointers run -p 1234 scan.txt
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		return runScript(a, f, args[0])
	},
}

// runScript executes the commands read from r. It fails when any command
// failed, after running all of them.
func runScript(a *app, r io.Reader, name string) error {
	failed := 0
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := a.execute(line); err != nil {
			a.report(fmt.Errorf("%s:%d: %w", name, n, err))
			failed++
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of the commands in %s failed", failed, name)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
