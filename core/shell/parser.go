// Package shell turns command lines into pipelines.
//
// Loosely follows the first steps of
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
//  1. The shell breaks the input into tokens: words and operators.
//  2. The shell parses the tokens into simple commands joined by pipes.
//  3. The shell removes redirection operators and their operands from the
//     parameter list.
//
// Expansions, compound commands and here-documents are not supported.
package shell

import "errors"

// ErrNoPipeline is returned when a line holds nothing to run.
var ErrNoPipeline = errors.New("no pipeline")

// ParseLine tokenizes and parses a line.
func ParseLine(line string) (*Pipeline, error) {
	return Parse(Tokenize(line))
}

// Parse folds tokens into a pipeline.
//
// A trailing & marks the pipeline as background. | ends the current stage
// unless it has no arguments yet, in which case it is skipped and the stage
// keeps accumulating. < and > take the next token as the input or output
// path; a redirect with nothing after it is ignored. Every other token,
// including a & that is not last, becomes an argument.
func Parse(tokens []Token) (*Pipeline, error) {
	if len(tokens) == 0 {
		return nil, ErrNoPipeline
	}

	p := &Pipeline{}
	if tokens[len(tokens)-1].IsOp(OpBackground) {
		p.Background = true
		tokens = tokens[:len(tokens)-1]
	}

	var cur Command
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.IsOp(OpPipe):
			if len(cur.Args) == 0 {
				continue
			}
			p.Commands = append(p.Commands, cur)
			cur = Command{}
		case tok.IsOp(OpRedirectIn):
			if i+1 < len(tokens) {
				i++
				cur.InFile = tokens[i].Text
			}
		case tok.IsOp(OpRedirectOut):
			if i+1 < len(tokens) {
				i++
				cur.OutFile = tokens[i].Text
			}
		default:
			cur.Args = append(cur.Args, tok.Text)
		}
	}
	if !cur.empty() {
		p.Commands = append(p.Commands, cur)
	}

	if len(p.Commands) == 0 {
		return nil, ErrNoPipeline
	}
	return p, nil
}
