// Package directive turns manifest lines into callable statements.
//
// Two modes exist. Textual mode slices the line on the CALL keyword and the
// first parenthesis, exactly as manifests have always been interpreted; it
// never fails but mis-handles quoted or nested parentheses. Strict mode runs
// a small tokenizer and rejects lines that are not a single well-formed call.
package directive

import (
	"fmt"
	"strings"
)

const (
	Keyword    = "CALL"
	Terminator = ";"
)

// Directive is one normalized manifest line.
type Directive struct {
	Raw           string `json:"raw"`
	Statement     string `json:"statement"`
	ProcedureName string `json:"procedure_name"`
}

// Mode selects how lines are normalized.
type Mode string

const (
	ModeTextual Mode = "textual"
	ModeStrict  Mode = "strict"
)

// ParseMode validates a mode name. An empty name means ModeTextual.
func ParseMode(name string) (Mode, error) {
	switch Mode(strings.ToLower(name)) {
	case "", ModeTextual:
		return ModeTextual, nil
	case ModeStrict:
		return ModeStrict, nil
	}
	return "", fmt.Errorf("unknown directive mode %q (must be textual or strict)", name)
}

// Normalize converts a line using the mode's rules.
func (m Mode) Normalize(line string) (Directive, error) {
	if m == ModeStrict {
		return Parse(line)
	}
	return Normalize(line), nil
}

// Normalize applies the textual rules:
//  1. a line starting with CALL is kept, terminator appended if missing;
//  2. a line with both parentheses gets the CALL prefix and the terminator;
//  3. anything else is a bare name and becomes a zero-argument call.
func Normalize(line string) Directive {
	d := Directive{Raw: line}

	switch {
	case hasKeyword(line):
		d.Statement = ensureTerminator(line)
		name := line
		if i := strings.Index(name, "("); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimSpace(name[len(Keyword):])
		d.ProcedureName = strings.TrimSpace(strings.TrimSuffix(name, Terminator))

	case strings.Contains(line, "(") && strings.Contains(line, ")"):
		d.Statement = ensureTerminator(Keyword + " " + line)
		d.ProcedureName = strings.TrimSpace(line[:strings.Index(line, "(")])

	default:
		d.Statement = Keyword + " " + line + "()" + Terminator
		d.ProcedureName = line
	}
	return d
}

// hasKeyword reports whether line begins with CALL as a whole word.
func hasKeyword(line string) bool {
	if len(line) < len(Keyword) || !strings.EqualFold(line[:len(Keyword)], Keyword) {
		return false
	}
	if len(line) == len(Keyword) {
		return true
	}
	switch line[len(Keyword)] {
	case ' ', '\t':
		return true
	}
	return false
}

func ensureTerminator(s string) string {
	if strings.HasSuffix(s, Terminator) {
		return s
	}
	return s + Terminator
}
