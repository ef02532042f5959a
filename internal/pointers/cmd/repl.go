package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"

	"pointers/internal/pointers/styles"
)

const (
	prompt = "(pointers) "

	maxCompletions = 64
)

var sessionVerbs = []string{verbShow, verbTo, "help", "exit", "quit"}

// repl is the interactive session: one target, commands read with liner.
type repl struct {
	app         *app
	line        *liner.State
	historyFile string
	width       int
}

func newREPL(a *app, historyFile string, width int) *repl {
	return &repl{app: a, historyFile: historyFile, width: width}
}

func (r *repl) Run() error {
	r.line = liner.NewLiner()
	defer r.line.Close()

	r.line.SetCtrlCAborts(true)
	r.line.SetCompleter(newCompleter(r.app.names))
	r.readHistory()
	defer r.writeHistory()

	fmt.Fprintln(r.app.out, "Type 'help' for list of commands.")
	for {
		l, err := r.line.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(r.app.out, "exit")
				return nil
			}
			return fmt.Errorf("prompt for input failed: %w", err)
		}

		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		r.line.AppendHistory(l)

		if quit := r.dispatch(l); quit {
			return nil
		}
	}
}

// dispatch runs one line and reports whether the session should end.
func (r *repl) dispatch(l string) bool {
	switch l {
	case "exit", "quit":
		return true
	case "help":
		r.help()
		return false
	}
	if err := r.app.execute(l); err != nil {
		r.app.report(err)
	}
	return false
}

func (r *repl) help() {
	if !r.app.style.Enabled() {
		fmt.Fprint(r.app.out, helpText)
		return
	}
	renderer, err := styles.MarkdownRenderer(r.width)
	if err != nil {
		slog.Debug("Help renderer unavailable", "error", err)
		fmt.Fprint(r.app.out, helpText)
		return
	}
	out, err := renderer.Render(helpText)
	if err != nil {
		fmt.Fprint(r.app.out, helpText)
		return
	}
	fmt.Fprint(r.app.out, out)
}

func (r *repl) readHistory() {
	if r.historyFile == "" {
		return
	}
	f, err := os.Open(r.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := r.line.ReadHistory(f); err != nil {
		slog.Debug("Could not read history", "path", r.historyFile, "error", err)
	}
}

func (r *repl) writeHistory() {
	if r.historyFile == "" {
		return
	}
	f, err := os.Create(r.historyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to open history file: %v. History will not be saved for this session.\n", err)
		return
	}
	defer f.Close()
	if _, err := r.line.WriteHistory(f); err != nil {
		slog.Debug("Could not write history", "path", r.historyFile, "error", err)
	}
}

// newCompleter completes the verb of an empty line and symbol names for
// every later word. The symbol trie is built on first use.
func newCompleter(names func() []string) liner.Completer {
	verbs := trie.New()
	for _, v := range sessionVerbs {
		verbs.Add(v, nil)
	}
	var symbols *trie.Trie

	return func(line string) []string {
		head, word := splitLastWord(line)
		var matches []string
		if strings.TrimSpace(head) == "" || strings.TrimSpace(head) == "pointers" {
			matches = verbs.PrefixSearch(word)
		} else {
			if symbols == nil {
				symbols = trie.New()
				if names != nil {
					for _, n := range names() {
						symbols.Add(n, nil)
					}
				}
			}
			if word == "" {
				return nil
			}
			matches = symbols.PrefixSearch(word)
		}
		sort.Strings(matches)
		if len(matches) > maxCompletions {
			matches = matches[:maxCompletions]
		}
		out := make([]string, len(matches))
		for i, m := range matches {
			out[i] = head + m
		}
		return out
	}
}

// splitLastWord splits line before its last space-separated word.
func splitLastWord(line string) (head, word string) {
	i := strings.LastIndexAny(line, " \t")
	return line[:i+1], line[i+1:]
}

const helpText = `# pointers

Find the addresses referenced by the instructions of a code range and
tell what each of them is.

## Commands

- ` + "`show [<start_pc> <end_pc>]`" + ` lists every address the range refers to.
  Named addresses are followed one level through memory.
- ` + "`to <address> [<start_pc> <end_pc>]`" + ` lists the named addresses whose
  memory holds *address*.
- ` + "`help`" + ` prints this text, ` + "`exit`" + ` or ` + "`quit`" + ` ends the session.

Without a range the mapping holding the program counter is scanned.

## Expressions

Range bounds and addresses may be numbers, symbol names, registers
(` + "`$pc`" + `, ` + "`$sp`" + `) and arithmetic, for example:

` + "```" + `
show main main+0x200
to $sp+8
` + "```" + `
`
