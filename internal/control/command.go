// Package control implements the recording control vocabulary. Commands
// arrive as JSON over the websocket control channel or as ON/OFF lines on
// the console, and are applied to the session manager.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sencol/hub/internal/session"
)

// Command types.
const (
	TypeLog     = "LOG"
	TypeStopLog = "STOP_LOG"
)

// ErrUnknownCommand is returned for a command type outside the vocabulary.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one control message.
type Command struct {
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Prefix is the session prefix a LOG command starts: <subject>_<name>.
func (c Command) Prefix() string {
	return c.Subject + "_" + c.Name
}

// Validate checks that the command is complete.
func (c Command) Validate() error {
	switch c.Type {
	case TypeLog:
		if strings.TrimSpace(c.Subject) == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%s requires subject and name", TypeLog)
		}
		if strings.ContainsAny(c.Prefix(), `/\`) {
			return fmt.Errorf("%s subject and name must not contain path separators", TypeLog)
		}
		return nil
	case TypeStopLog:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
	}
}

// Parse decodes a JSON command.
func Parse(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return Command{}, fmt.Errorf("decoding control command: %w", err)
	}
	return c, nil
}

// Sessions is the part of session.Manager the dispatcher drives.
type Sessions interface {
	Lock()
	Unlock()
	Begin(prefix string) session.BeginResult
}

// Dispatcher applies commands to a session manager. It has no reply
// channel; outcomes are logged.
type Dispatcher struct {
	sessions Sessions
	log      zerolog.Logger
}

func NewDispatcher(sessions Sessions, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{sessions: sessions, log: log}
}

// Handle parses and executes one raw message. Errors are logged as well as
// returned so transports can ignore them.
func (d *Dispatcher) Handle(payload []byte) error {
	c, err := Parse(payload)
	if err != nil {
		d.log.Warn().Err(err).Msg("malformed control command")
		return err
	}
	return d.Execute(c)
}

// Execute applies c. LOG locks, starts a session named after the subject
// and test, then unlocks. STOP_LOG locks.
func (d *Dispatcher) Execute(c Command) error {
	if err := c.Validate(); err != nil {
		d.log.Warn().Err(err).Str("type", c.Type).Msg("rejected control command")
		return err
	}
	switch c.Type {
	case TypeLog:
		d.sessions.Lock()
		res := d.sessions.Begin(c.Prefix())
		d.sessions.Unlock()
		level := zerolog.InfoLevel
		if !res.OK() {
			level = zerolog.WarnLevel
		}
		d.log.WithLevel(level).
			Str("session", res.Info.ID).
			Str("dir", res.Info.Dir).
			Int("failed_streams", len(res.Failed)).
			Msg("logging started")
	case TypeStopLog:
		d.sessions.Lock()
		d.log.Info().Msg("logging stopped")
	}
	return nil
}
