package replsession

import "strings"

// blockOpeners are keywords that open a block body requiring a matching
// blockCloser later in the input. The table is language-agnostic on
// purpose: the REPL doesn't know what language the attached kernel runs,
// so it leans on the common do/end-style block shape (Lua, and close
// enough to most scripting languages' block keywords) rather than a real
// grammar. The "do" that ends a for/while header is not counted as a second
// opener, so "for ... do ... end" closes with a single "end".
var blockOpeners = map[string]bool{
	"do":       true,
	"function": true,
	"if":       true,
	"while":    true,
	"for":      true,
	"repeat":   true,
	"begin":    true,
}

var blockClosers = map[string]bool{
	"end":   true,
	"until": true,
}

// IsComplete reports whether buf forms a syntactically complete unit that
// can be sent to the kernel, using a bracket/quote-balance heuristic plus a
// table of known block-opening and -closing tokens. It never parses the
// language itself, so it can be fooled by unusual keyword reuse; that's an
// accepted tradeoff for staying language-agnostic.
func IsComplete(buf string) bool {
	trimmed := strings.TrimSpace(buf)
	if trimmed == "" {
		return true
	}

	parenDepth := 0
	blockDepth := 0
	var quote rune
	escaped := false
	var word strings.Builder
	loopAwaitingDo := false

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		w := word.String()
		word.Reset()
		switch {
		case w == "do" && loopAwaitingDo:
			loopAwaitingDo = false
		case blockOpeners[w]:
			blockDepth++
			loopAwaitingDo = w == "for" || w == "while"
		case blockClosers[w]:
			blockDepth--
			loopAwaitingDo = false
		}
	}

	for _, r := range trimmed {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch {
		case r == '\'' || r == '"' || r == '`':
			flushWord()
			quote = r
		case r == '(' || r == '[' || r == '{':
			flushWord()
			parenDepth++
		case r == ')' || r == ']' || r == '}':
			flushWord()
			parenDepth--
		case isWordRune(r):
			word.WriteRune(r)
		default:
			flushWord()
		}
	}
	flushWord()

	return quote == 0 && parenDepth == 0 && blockDepth <= 0
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
