// Package printer writes the colored status and chat lines of the one-shot
// commands.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
)

// 24-bit colors matching the TUI palette.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[38;2;215;95;107m"
	green  = "\033[38;2;158;206;106m"
	yellow = "\033[38;2;224;175;104m"
	muted  = "\033[38;2;86;95;137m"
)

// Glyphs shared by command output.
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
	Star  = "★"
	Pin   = "⚑"
	Reply = "↳"
)

const stampLayout = "Jan 02 15:04"

type ctxKey struct{}

// Printer writes human readable command output.
type Printer struct {
	writer io.Writer
}

func New(w io.Writer) *Printer {
	return &Printer{writer: w}
}

// NewContext stores p in ctx for retrieval with Ctx.
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the printer stored in ctx, or one writing to stderr.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

func paint(color, text string) string {
	return color + text + reset
}

// line writes the concatenated parts followed by a newline.
func (p *Printer) line(parts ...string) {
	_, _ = io.WriteString(p.writer, strings.Join(parts, "")+"\n")
}

// Bold wraps text in the bold attribute.
func (p *Printer) Bold(text string) string {
	return paint(bold, text)
}

// FatalError renders err in a boxed block on the output. Config validation
// failures list one field per row. It does not exit.
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fields criterio.FieldErrors
	if !errors.As(err, &fields) {
		p.box("Error", []string{paint(muted, err.Error())})
		return
	}

	var rows []string
	if wrap, ok := strings.CutSuffix(err.Error(), fields.Error()); ok && wrap != "" {
		rows = append(rows, paint(muted, strings.TrimSuffix(wrap, ": ")), "")
	}
	for _, fe := range fields {
		row := paint(red, Cross) + " "
		if fe.Field != "" {
			row += paint(muted, fe.Field+": ")
		}
		rows = append(rows, row+fe.Err.Error())
	}
	p.box("Validation Error", rows)
}

func (p *Printer) box(title string, rows []string) {
	p.line(paint(red, "╭ "+title))
	for _, row := range rows {
		if row == "" {
			p.line(paint(red, "│"))
			continue
		}
		p.line(paint(red, "│"), " ", row)
	}
	p.line(paint(red, "╵"))
}

func (p *Printer) status(color, glyph, format string, args []any) {
	p.line(paint(color, glyph+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Errorf(format string, args ...any)   { p.status(red, Cross, format, args) }
func (p *Printer) Successf(format string, args ...any) { p.status(green, Check, format, args) }
func (p *Printer) Infof(format string, args ...any)    { p.status(muted, Dot, format, args) }
func (p *Printer) Warnf(format string, args ...any)    { p.status(yellow, Dot, format, args) }

// Success is Successf with a muted detail row underneath.
func (p *Printer) Success(message, details string) {
	p.line(paint(green, Check+" "+message))
	if details != "" {
		p.line("  ", paint(muted, details))
	}
}

// Printf writes an uncolored line.
func (p *Printer) Printf(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

// Section writes a bold heading with a muted rule under it.
func (p *Printer) Section(title string) {
	p.line(p.Bold(title))
	p.line(paint(muted, strings.Repeat("─", len([]rune(title)))))
}

func (p *Printer) CheckItem(label, detail string) { p.item(green, Check, label, detail) }
func (p *Printer) WarnItem(label, detail string)  { p.item(yellow, Dot, label, detail) }
func (p *Printer) FailItem(label, detail string)  { p.item(red, Cross, label, detail) }

func (p *Printer) item(color, glyph, label, detail string) {
	if detail != "" {
		label += ": " + detail
	}
	p.line("  ", paint(color, glyph), " ", label)
}

// Message prints one chat line: a muted timestamp, the bold sender and the
// text. Continuation lines of multi-line text are indented under the text.
func (p *Printer) Message(at time.Time, sender, text string) {
	lines := strings.Split(text, "\n")
	p.line(paint(muted, at.Local().Format(stampLayout)), " ", p.Bold(sender), " ", lines[0])

	indent := strings.Repeat(" ", len(stampLayout)+len([]rune(sender))+2)
	for _, l := range lines[1:] {
		p.line(indent, l)
	}
}

// Quote prints a reply reference under the message it belongs to.
func (p *Printer) Quote(sender, text string) {
	p.line("  ", paint(muted, Reply+" "+sender+": "+text))
}
