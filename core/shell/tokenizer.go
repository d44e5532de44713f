package shell

import "strings"

// blankCharset holds the bytes that separate words, the C locale isspace set.
const blankCharset = " \t\n\v\f\r"

// Tokenize splits a line into words and operators.
//
// Single and double quotes group text, including whitespace and operator
// characters, into a word and are themselves dropped. A quote of one kind is
// literal inside the other kind. Outside quotes, whitespace separates words
// and each of | < > & is emitted as its own operator token even when it
// touches other text. An unterminated quote runs to the end of the line.
//
// The line is scanned byte by byte, so text that isn't valid UTF-8 is kept
// as is.
func Tokenize(line string) []Token {
	var (
		tokens          []Token
		cur             strings.Builder
		inSingle, inDbl bool
	)

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, Token{Kind: Word, Text: cur.String()})
			cur.Reset()
		}
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'' && !inDbl:
			inSingle = !inSingle
			continue
		case c == '"' && !inSingle:
			inDbl = !inDbl
			continue
		}

		if !inSingle && !inDbl {
			if strings.IndexByte(blankCharset, c) >= 0 {
				flush()
				continue
			}
			if strings.IndexByte(operatorCharset, c) >= 0 {
				flush()
				tokens = append(tokens, Token{Kind: Operator, Text: string(c)})
				continue
			}
		}

		cur.WriteByte(c)
	}
	flush()

	return tokens
}

// TrimBlanks removes the word separators from both ends of line.
func TrimBlanks(line string) string {
	return strings.Trim(line, blankCharset)
}

// Words returns the text of every word token, skipping operators.
func Words(tokens []Token) []string {
	var out []string
	for _, tok := range tokens {
		if tok.Kind == Word {
			out = append(out, tok.Text)
		}
	}
	return out
}
