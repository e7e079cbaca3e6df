package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hay-kot/parley/internal/printer"
	"github.com/hay-kot/parley/internal/styles"
)

type SendCmd struct {
	flags   *Flags
	attach  string
	replyTo string
	yes     bool
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a message to a conversation",
		UsageText: "parley send [options] <conversation> [text...]",
		Description: `Sends a message and waits for the server to accept it.

The text is taken from the remaining arguments, or from stdin when no text
is given and stdin is not a terminal.

Examples:
  parley send design "shipping today"
  parley send --attach screenshot.png design
  git log -1 --format=%s | parley send ops`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "attach",
				Aliases:     []string{"a"},
				Usage:       "image or video file to attach",
				Destination: &cmd.attach,
			},
			&cli.StringFlag{
				Name:        "reply",
				Aliases:     []string{"r"},
				Usage:       "message ID to reply to",
				Destination: &cmd.replyTo,
			},
			&cli.BoolFlag{
				Name:        "yes",
				Aliases:     []string{"y"},
				Usage:       "skip the attachment confirmation",
				Destination: &cmd.yes,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	if c.NArg() < 1 {
		return fmt.Errorf("expected a conversation")
	}

	text := strings.Join(c.Args().Tail(), " ")
	if text == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\n")
	}

	svc, err := cmd.flags.Connect(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	conv, err := findConversation(svc.Directory.Ordered(), svc.SelfID(), c.Args().First())
	if err != nil {
		return err
	}

	if _, err := svc.Activate(ctx, conv.ID); err != nil {
		return err
	}

	svc.Composer.SetText(text, len(text))

	if cmd.replyTo != "" {
		if err := svc.Reply(cmd.replyTo); err != nil {
			return fmt.Errorf("reply: %w", err)
		}
	}

	if cmd.attach != "" {
		if err := svc.StageFile(cmd.attach); err != nil {
			return err
		}

		ok, err := cmd.confirmAttachment(conv.DisplayName(svc.SelfID()), svc.Composer.Attachment().Name, svc.Composer.Attachment().Size)
		if err != nil {
			return err
		}
		if !ok {
			printer.Ctx(ctx).Infof("Cancelled")
			return nil
		}
	}

	msg, err := svc.Send(ctx)
	if err != nil {
		return err
	}

	printer.Ctx(ctx).Success(fmt.Sprintf("Sent to %s", conv.DisplayName(svc.SelfID())), msg.ID)
	return nil
}

func (cmd *SendCmd) confirmAttachment(conversation, name string, size int64) (bool, error) {
	if cmd.yes || !term.IsTerminal(int(os.Stdin.Fd())) {
		return true, nil
	}

	confirmed := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Send %s (%s) to %s?", name, humanize.IBytes(uint64(size)), conversation)).
			Affirmative("Send").
			Negative("Cancel").
			Value(&confirmed),
	)).WithTheme(styles.FormTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
