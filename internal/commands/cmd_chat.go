package commands

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/parley/internal/tui"
)

type ChatCmd struct {
	flags        *Flags
	conversation string
}

// NewChatCmd creates a new chat command
func NewChatCmd(flags *Flags) *ChatCmd {
	return &ChatCmd{
		flags: flags,
	}
}

// Flags returns the chat flags for registration on the root command
func (cmd *ChatCmd) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "open",
			Aliases:     []string{"o"},
			Usage:       "conversation ID to open on start",
			Destination: &cmd.conversation,
		},
	}
}

// Register adds the chat command to the application
func (cmd *ChatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "chat",
		Usage:       "Open the interactive chat client",
		UsageText:   "parley chat [--open <conversation>]",
		Description: "Opens the full-screen client with the conversation list, timeline and composer.",
		Flags:       cmd.Flags(),
		Action:      cmd.run,
	})
	return app
}

// Run executes the chat client. Exported for use as default command.
func (cmd *ChatCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

func (cmd *ChatCmd) run(ctx context.Context, _ *cli.Command) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("chat requires a terminal, use 'parley listen' or 'parley history' for scripted output")
	}

	svc, err := cmd.flags.Connect(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	m := tui.New(svc, tui.Options{Conversation: cmd.conversation})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	return nil
}
