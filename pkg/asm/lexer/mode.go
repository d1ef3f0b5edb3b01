package lexer

import "strings"

// Mode is the lexer's current scanning discipline (spec.md §4.1).
// CaptureBody and SkipTo below do raw capture and skipping directly;
// nothing sets Lexer.mode away from ModeNormal.
type Mode int

const (
	// ModeNormal tokenizes every line fully.
	ModeNormal Mode = iota
	// ModeRaw captures lines verbatim, without tokenizing, until a
	// terminator keyword is seen at nesting depth zero — used while
	// capturing a MACRO or REPT/FOR body.
	ModeRaw
	// ModeSkipToElif/ModeSkipToEndc/ModeSkipToEndr scan for a structural
	// keyword without tokenizing skipped lines' contents, used to fast-
	// forward past a false IF/ELIF branch or a body the parser decided
	// not to assemble.
	ModeSkipToElif
	ModeSkipToEndc
	ModeSkipToEndr
)

// firstWord returns the upper-cased first whitespace-delimited word of a
// line, ignoring a leading label and comment, which is all the
// skip-scanner needs to recognize structural keywords.
func firstWord(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	i := strings.IndexFunc(line, func(r rune) bool { return r == ' ' || r == '\t' })
	word := line
	if i >= 0 {
		word = line[:i]
		if strings.HasSuffix(word, ":") {
			return firstWord(line[i:])
		}
	}
	return strings.ToUpper(strings.TrimSuffix(word, ":"))
}

// CaptureBody reads raw lines from the stack until a line whose first
// word is in terminators at nesting depth zero, tracking nesting via
// opener (any of which increments depth) and the same terminators
// (which, before depth zero, only decrement). The terminator line itself
// is not included in the returned body and is left consumed.
func (l *Lexer) CaptureBody(openers, terminators []string) ([]string, string, error) {
	depth := 0
	var body []string

	for {
		line, ok := l.stack.NextLine()
		if !ok {
			return nil, "", errUnterminatedBlock(terminators)
		}

		word := firstWord(line)
		if contains(openers, word) {
			depth++
		} else if contains(terminators, word) {
			if depth == 0 {
				return body, word, nil
			}
			depth--
		}

		body = append(body, line)
	}
}

// SkipTo fast-forwards the stack past lines until one whose first word is
// in stopWords at nesting depth zero, tracking IF/ENDC nesting so a
// nested conditional's ELIF/ELSE don't end the skip early. The stopping
// line itself is handed back to the tokenizer via requeueLine rather than
// discarded, since ELIF carries a condition expression the caller still
// needs to parse.
func (l *Lexer) SkipTo(openers []string, stopWords ...string) (string, error) {
	depth := 0
	for {
		line, ok := l.stack.NextLine()
		if !ok {
			return "", errUnterminatedBlock(stopWords)
		}
		word := firstWord(line)
		if contains(openers, word) {
			depth++
			continue
		}
		if depth > 0 {
			if word == "ENDC" || word == "ENDR" {
				depth--
			}
			continue
		}
		if contains(stopWords, word) {
			if err := l.requeueLine(line); err != nil {
				return "", err
			}
			return word, nil
		}
	}
}

func contains(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
