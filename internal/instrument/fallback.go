package instrument

import (
	"errors"
	"strings"

	"labrelay/internal/transport"
)

var errNoCandidates = errors.New("no candidate commands")

// Fallback is an ordered list of command spellings for one action.
// Templates may use {ch}, {value} and {mode} placeholders.
type Fallback struct {
	Action   string
	Commands []string
	// Confirm is queried after an accepted write when set; its answer is ignored
	Confirm string
}

// Run writes candidates in order and stops at the first one accepted.
// It returns the command that was accepted.
func (f Fallback) Run(conn transport.Conn, oldnew ...string) (string, error) {
	r := strings.NewReplacer(oldnew...)

	attempts := make([]string, 0, len(f.Commands))
	last := errNoCandidates
	for _, tmpl := range f.Commands {
		cmd := r.Replace(tmpl)
		attempts = append(attempts, cmd)
		if err := conn.Write(cmd); err != nil {
			last = err
			continue
		}
		if f.Confirm != "" {
			_, _ = conn.Query(f.Confirm)
		}
		return cmd, nil
	}

	return "", &CommandRejectedError{Action: f.Action, Attempts: attempts, Err: last}
}

// Single is a fallback with exactly one spelling
func Single(action, cmd string) Fallback {
	return Fallback{Action: action, Commands: []string{cmd}}
}
