// repl.go - Interactive REPL for a parley session.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/parley/internal/commands"
	"github.com/jeranaias/parley/internal/orchestrator"
	"github.com/jeranaias/parley/internal/provider"
	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// Input provides line editing and persisted input history for the REPL.
type Input struct {
	line        *liner.State
	historyFile string
}

// NewInput creates an Input with history loaded from historyFile.
func NewInput(historyFile string) *Input {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &Input{
		line:        line,
		historyFile: historyFile,
	}
	in.loadHistory()
	return in
}

func (in *Input) loadHistory() {
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
}

// ReadLine reads one line of input with the given prompt. Non-empty input
// is added to the history.
func (in *Input) ReadLine(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists input history with owner-only permissions.
func (in *Input) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(in.historyFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	in.line.WriteHistory(f)
}

// Close saves history and releases the terminal.
func (in *Input) Close() {
	in.saveHistory()
	in.line.Close()
}

// =============================================================================
// OUTPUT
// =============================================================================

// termOutput writes orchestrator output to the terminal. When stdout is a
// TTY, content deltas are held back and the completed assistant reply is
// rendered as markdown; otherwise deltas stream through as they arrive.
type termOutput struct {
	markdown bool
	started  bool
}

func (t *termOutput) reset() {
	t.started = false
}

// Delta implements orchestrator.Output.
func (t *termOutput) Delta(d provider.Delta) {
	if !t.started {
		fmt.Println()
		t.started = true
	}
	if d.Thinking {
		fmt.Print(thinkingStyle.Render(d.Text))
		return
	}
	if !t.markdown {
		fmt.Print(d.Text)
	}
}

// Print implements orchestrator.Output.
func (t *termOutput) Print(text string) {
	fmt.Println(text)
}

// Assistant implements orchestrator.Output.
func (t *termOutput) Assistant(text string) {
	if t.markdown {
		fmt.Print(renderMarkdown(text))
	}
	fmt.Println()
}

// =============================================================================
// REPL
// =============================================================================

// REPL drives one interactive session over an orchestrator.
type REPL struct {
	orch  *orchestrator.Orchestrator
	input *Input
	out   *termOutput
	quiet bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewREPL creates a REPL with input history stored at historyFile.
func NewREPL(orch *orchestrator.Orchestrator, historyFile string, quiet bool) *REPL {
	return &REPL{
		orch:  orch,
		input: NewInput(historyFile),
		out:   &termOutput{markdown: IsStdoutTTY()},
		quiet: quiet,
	}
}

// Run executes the read-eval loop until the user quits. Ctrl+C cancels an
// in-flight exchange; at the prompt it exits, as does Ctrl+D.
func (r *REPL) Run() error {
	defer r.input.Close()

	if !r.quiet {
		r.printWelcome()
	}

	// While liner holds the terminal in raw mode Ctrl+C arrives as input,
	// so signals only fire during an in-flight exchange.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		for range sigCh {
			r.mu.Lock()
			if r.cancel != nil {
				r.cancel()
				r.cancel = nil
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[cancelled]"))
			}
			r.mu.Unlock()
		}
	}()

	for {
		line, err := r.readInput()
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println()
				return nil
			}
			// EOF (Ctrl+D) or terminal failure
			fmt.Println()
			return nil
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		r.out.reset()
		ctx := r.beginExchange()
		quit, err := r.orch.HandleInput(ctx, line, r.out)
		r.endExchange()

		if err != nil {
			r.printError(err)
		}
		if quit {
			return nil
		}
	}
}

// readInput reads one logical input, joining continuation lines marked by
// a trailing backslash.
func (r *REPL) readInput() (string, error) {
	line, err := r.input.ReadLine(r.prompt())
	if err != nil {
		return "", err
	}

	for strings.HasSuffix(line, "\\") {
		line = strings.TrimSuffix(line, "\\")
		next, err := r.input.ReadLine(infoStyle.Render("... "))
		if err != nil {
			return "", err
		}
		line = line + "\n" + next
	}
	return line, nil
}

// prompt renders the prompt, tagging any mode other than normal.
func (r *REPL) prompt() string {
	mode := r.orch.State().EffectiveMode()
	if mode == "normal" {
		return promptStyle.Render("parley> ")
	}
	return promptStyle.Render("parley") + modeStyle.Render("["+mode+"]") + promptStyle.Render("> ")
}

// beginExchange installs a cancellable context for the next exchange.
func (r *REPL) beginExchange() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	return ctx
}

func (r *REPL) endExchange() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
}

// printError reports a failure in user terms.
func (r *REPL) printError(err error) {
	var uerr *commands.UserInputError
	if errors.As(err, &uerr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", warningStyle.Render("[!]"), uerr.Message)
		return
	}

	var perr *storage.PersistenceError
	if errors.As(err, &perr) {
		fmt.Fprintf(os.Stderr, "%s conversation not saved: %v\n", errorStyle.Render("[persistence]"), perr)
		return
	}

	if pe := provider.AsError(err); pe != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("["+pe.Kind.String()+"]"), pe.Detail)
		return
	}

	fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[error]"), err)
}

// printWelcome prints the startup banner.
func (r *REPL) printWelcome() {
	state := r.orch.State()

	fmt.Println()
	fmt.Println(welcomeStyle.Render("parley"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Backend:"),
		commandStyle.Render(state.Backend()))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(state.Model()))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Chat:"),
		commandStyle.Render(r.orch.Path()))
	if t := state.Timeout(); t > 0 {
		fmt.Printf("%s %s\n", infoStyle.Render("Timeout:"), t.String())
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}
