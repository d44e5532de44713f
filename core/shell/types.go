package shell

import "strings"

// Operator characters recognised outside of quotes.
const (
	OpPipe          = "|"
	OpRedirectIn    = "<"
	OpRedirectOut   = ">"
	OpBackground    = "&"
	operatorCharset = OpPipe + OpRedirectIn + OpRedirectOut + OpBackground
)

// TokenKind distinguishes words from operators.
type TokenKind int

const (
	// Word is argument text with quote characters removed.
	Word TokenKind = iota
	// Operator is one of | < > &, always a single character.
	Operator
)

func (k TokenKind) String() string {
	switch k {
	case Word:
		return "word"
	case Operator:
		return "operator"
	default:
		return "unknown"
	}
}

// Token is a single lexical unit of a command line.
type Token struct {
	Kind TokenKind
	Text string
}

// IsOp reports whether the token is the operator op.
func (t Token) IsOp(op string) bool {
	return t.Kind == Operator && t.Text == op
}

// Command is one stage of a pipeline. Args[0] is the program name.
type Command struct {
	Args    []string
	InFile  string
	OutFile string
}

func (c *Command) empty() bool {
	return len(c.Args) == 0 && c.InFile == "" && c.OutFile == ""
}

// Name returns the program name, or the empty string for a stage that only
// carries redirections.
func (c *Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

func (c *Command) String() string {
	var parts []string
	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}
	if c.InFile != "" {
		parts = append(parts, OpRedirectIn, quote(c.InFile))
	}
	if c.OutFile != "" {
		parts = append(parts, OpRedirectOut, quote(c.OutFile))
	}
	return strings.Join(parts, " ")
}

// Pipeline is an ordered list of commands, each feeding the next.
type Pipeline struct {
	Commands   []Command
	Background bool
}

// String renders the pipeline in a form that tokenizes and parses back to
// an equivalent pipeline.
func (p *Pipeline) String() string {
	var stages []string
	for i := range p.Commands {
		stages = append(stages, p.Commands[i].String())
	}
	out := strings.Join(stages, " "+OpPipe+" ")
	if p.Background {
		out += " " + OpBackground
	}
	return out
}

// quote wraps s in quotes when it would not survive tokenizing as a bare
// word. Single quotes are preferred; text holding a single quote is double
// quoted, and text holding both kinds is single quoted piecewise with each
// single quote in double quotes.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\v\f\r'\""+operatorCharset) {
		return s
	}
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	for i, part := range parts {
		if part != "" {
			parts[i] = "'" + part + "'"
		}
	}
	return strings.Join(parts, `"'"`)
}
