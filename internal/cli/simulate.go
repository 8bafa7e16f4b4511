package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/convoflow"
	"github.com/aretw0/convoflow/internal/presentation/tui"
)

// SimulateOptions configures a terminal conversation with a bot.
type SimulateOptions struct {
	BotID    string
	FlowID   string
	Address  string
	Headless bool
	// WaitDelays leaves paused sessions to the scheduler instead of
	// resuming them at once.
	WaitDelays bool
	Input      io.Reader
	Output     io.Writer
}

// Simulate chats with a bot over the given streams using test sessions.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.BotID == "" {
		return fmt.Errorf("bot id is required")
	}
	if opts.FlowID != "" {
		if _, err := a.Flows.Resolve(ctx, opts.FlowID, true); err != nil {
			return err
		}
		a.Flows.SetMainFlow(opts.BotID, opts.FlowID)
	}

	r := convoflow.NewRunner(opts.BotID)
	r.Input = opts.Input
	r.Output = opts.Output
	r.Headless = opts.Headless
	r.SkipDelays = !opts.WaitDelays
	if opts.Address != "" {
		r.Address = opts.Address
	}

	if !opts.Headless {
		tui.PrintBanner(opts.Output, opts.BotID, strings.TrimSpace(convoflow.Version))
		r.Renderer = tui.NewRenderer()
	}

	if opts.WaitDelays {
		sched := a.Engine.Scheduler(a.cfg.ResumeInterval)
		schedCtx, stop := context.WithCancel(ctx)
		defer stop()
		go sched.Run(schedCtx)
		if !opts.Headless {
			printSystemMessage(opts.Output, "Delays resume every %s.", a.cfg.ResumeInterval)
		}
	}
	return r.Run(ctx, a.Engine)
}
