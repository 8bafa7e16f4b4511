package convoflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/convoflow/pkg/domain"
)

// DefaultSimulatorAddress is the end-user address of simulated conversations.
const DefaultSimulatorAddress = "+1000000000"

// Runner chats with a bot over line-based IO using simulated sessions.
// It backs "convoflow simulate" and is easy to drive from tests.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	BotID    string
	Address  string
	Headless bool
	// SkipDelays resumes paused sessions immediately instead of waiting
	// for the scheduler.
	SkipDelays bool
	Renderer   ContentRenderer
}

// ContentRenderer transforms bot text before it is printed, e.g. markdown
// to ANSI, without coupling the core package to a terminal library.
type ContentRenderer func(string) (string, error)

// NewRunner creates a runner for botID. Input and Output must be set before Run.
func NewRunner(botID string) *Runner {
	return &Runner{BotID: botID, Address: DefaultSimulatorAddress, SkipDelays: true}
}

// Run reads one message per line until EOF or "exit".
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	address := r.Address
	if address == "" {
		address = DefaultSimulatorAddress
	}
	lines := bufio.NewReader(r.Input)

	if !r.Headless {
		fmt.Fprintf(r.Output, "--- convoflow simulator (%s) ---\n", r.BotID)
	}

	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		text, err := lines.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("input error: %w", err)
		}
		eof := errors.Is(err, io.EOF)
		text = strings.TrimSpace(text)

		if text == "exit" || text == "quit" {
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		}
		if text != "" {
			if err := r.send(ctx, engine, address, text); err != nil {
				return err
			}
		}
		if eof {
			return nil
		}
	}
}

func (r *Runner) send(ctx context.Context, engine *Engine, address, text string) error {
	res, err := engine.HandleInbound(ctx, domain.Inbound{BotID: r.BotID, Address: address, Text: text, Simulated: true})
	if errors.Is(err, domain.ErrSessionPaused) {
		fmt.Fprintln(r.Output, "(waiting on a delay)")
		return nil
	}
	if res != nil {
		r.print(res)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	for r.SkipDelays && res.Session.Status == domain.StatusPaused && res.Session.ResumeAt != nil {
		claimed, err := engine.Sessions().ClaimResume(ctx, res.Session.ID, *res.Session.ResumeAt)
		if err != nil || !claimed {
			return err
		}
		if res, err = engine.Resume(ctx, res.Session.ID); err != nil {
			return fmt.Errorf("resume failed: %w", err)
		}
		r.print(res)
	}

	if res.Session.Status.Terminal() && !r.Headless {
		fmt.Fprintf(r.Output, "(session %s)\n", strings.ToLower(string(res.Session.Status)))
	}
	return nil
}

func (r *Runner) print(res *domain.RunResult) {
	for _, msg := range res.Responses {
		out := msg.Text
		if r.Renderer != nil {
			if rendered, err := r.Renderer(out); err == nil {
				out = rendered
			}
		}
		fmt.Fprintln(r.Output, strings.TrimSpace(out))
		if msg.Choice == nil {
			continue
		}
		for _, c := range msg.Choice.Choices {
			fmt.Fprintf(r.Output, "  [%s] %s\n", c.ID, c.Title)
		}
		for _, sec := range msg.Choice.Sections {
			if sec.Title != "" {
				fmt.Fprintf(r.Output, "  %s\n", sec.Title)
			}
			for _, c := range sec.Choices {
				fmt.Fprintf(r.Output, "    [%s] %s\n", c.ID, c.Title)
			}
		}
	}
}
