package control

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// LockSwitch is the part of session.Manager the console drives.
type LockSwitch interface {
	Lock()
	Unlock()
	Locked() bool
}

// Console reads operator lines: a line containing ON resumes recording,
// one containing OFF pauses it. Feedback is written to out in colour.
type Console struct {
	in     io.Reader
	out    io.Writer
	target LockSwitch
	log    zerolog.Logger

	on   *color.Color
	off  *color.Color
	warn *color.Color
}

func NewConsole(in io.Reader, out io.Writer, target LockSwitch, log zerolog.Logger) *Console {
	return &Console{
		in:     in,
		out:    out,
		target: target,
		log:    log,
		on:     color.New(color.FgGreen, color.Bold),
		off:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow),
	}
}

// Run consumes lines until in is exhausted or ctx is done. A read blocked
// on in is only released when in is closed.
func (c *Console) Run(ctx context.Context) error {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Apply(sc.Text())
	}
	return sc.Err()
}

// Apply handles one console line.
func (c *Console) Apply(line string) {
	line = strings.ToUpper(strings.TrimSpace(line))
	switch {
	case line == "":
	case strings.Contains(line, "OFF"):
		c.target.Lock()
		c.off.Fprintln(c.out, "recording OFF")
		c.log.Info().Str("source", "console").Msg("recording locked")
	case strings.Contains(line, "ON"):
		c.target.Unlock()
		c.on.Fprintln(c.out, "recording ON")
		c.log.Info().Str("source", "console").Msg("recording unlocked")
	case line == "STATUS":
		if c.target.Locked() {
			c.off.Fprintln(c.out, "recording is OFF")
		} else {
			c.on.Fprintln(c.out, "recording is ON")
		}
	default:
		c.warn.Fprintf(c.out, "unknown command %q (use ON, OFF or STATUS)\n", line)
	}
}
