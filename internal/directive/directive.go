// Package directive recognizes embedded commands in conversation text.
//
// User input is treated as a command line: a directive must be the leading
// token sequence of the message. Assistant output is treated as prose: a
// directive may appear anywhere in it. Matching is case-sensitive.
package directive

import (
	"strings"
	"unicode"
)

// Kind identifies what a directive asks for.
type Kind string

const (
	KindLaunchProgram    Kind = "launch_program"
	KindRunSandboxedCode Kind = "run_sandboxed_code"
	KindScrapeWebsite    Kind = "scrape_website"
	KindProgramUpdate    Kind = "program_update"
)

// Keywords as they appear in text.
const (
	LaunchKeyword  = "launch_program"
	SandboxKeyword = "run_code_in_virtual_env"
	ScrapeKeyword  = "scrape_website"
)

// Program lifecycle notifications recognized as program_update.
const (
	FileModified      = "file modified."
	ProgramTerminated = "program terminated."
)

// Directive is a recognized command.
//
// Args by kind:
//   - launch_program: [program, arguments]; arguments may be empty
//   - program_update: [literal]
//   - run_sandboxed_code, scrape_website: [command text from the keyword on]
type Directive struct {
	Kind Kind
	Raw  string
	Args []string
}

// Program returns the program of a launch_program directive.
func (d Directive) Program() string {
	if d.Kind != KindLaunchProgram || len(d.Args) == 0 {
		return ""
	}
	return d.Args[0]
}

// Arguments returns the argument string of a launch_program directive.
func (d Directive) Arguments() string {
	if d.Kind != KindLaunchProgram || len(d.Args) < 2 {
		return ""
	}
	return d.Args[1]
}

// Command returns the text handed to the command executor or, for
// program_update, the literal notification.
func (d Directive) Command() string {
	if d.Kind == KindLaunchProgram || len(d.Args) == 0 {
		return ""
	}
	return d.Args[0]
}

// ParseUser classifies user-typed input. The directive must start the
// message; a launch_program without a program token is plain dialogue.
func ParseUser(text string) (Directive, bool) {
	line := strings.TrimSpace(text)

	if d, ok := parseUpdate(text, line); ok {
		return d, true
	}

	switch {
	case hasKeywordPrefix(line, LaunchKeyword):
		return parseLaunch(text, line[len(LaunchKeyword):])
	case strings.HasPrefix(line, SandboxKeyword):
		return Directive{Kind: KindRunSandboxedCode, Raw: text, Args: []string{line}}, true
	case strings.HasPrefix(line, ScrapeKeyword):
		return Directive{Kind: KindScrapeWebsite, Raw: text, Args: []string{line}}, true
	}
	return Directive{}, false
}

// ParseAssistant scans model output for an embedded directive. When several
// keywords occur, the earliest one wins.
func ParseAssistant(text string) (Directive, bool) {
	if d, ok := parseUpdate(text, strings.TrimSpace(text)); ok {
		return d, true
	}

	best := Directive{}
	bestAt := -1
	consider := func(at int, d Directive) {
		if bestAt == -1 || at < bestAt {
			best, bestAt = d, at
		}
	}

	if at := indexLaunch(text); at >= 0 {
		if d, ok := parseLaunch(text, text[at+len(LaunchKeyword):]); ok {
			consider(at, d)
		}
	}
	if at := strings.Index(text, SandboxKeyword); at >= 0 {
		consider(at, Directive{Kind: KindRunSandboxedCode, Raw: text, Args: []string{strings.TrimSpace(text[at:])}})
	}
	if at := strings.Index(text, ScrapeKeyword); at >= 0 {
		consider(at, Directive{Kind: KindScrapeWebsite, Raw: text, Args: []string{firstLine(text[at:])}})
	}

	return best, bestAt >= 0
}

func parseUpdate(raw, line string) (Directive, bool) {
	if line == FileModified || line == ProgramTerminated {
		return Directive{Kind: KindProgramUpdate, Raw: raw, Args: []string{line}}, true
	}
	return Directive{}, false
}

// parseLaunch reads "<program> [arguments...]" from rest, which starts right
// after the keyword. Arguments run to the end of the line.
func parseLaunch(raw, rest string) (Directive, bool) {
	rest = firstLine(rest)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Directive{}, false
	}
	program := fields[0]
	arguments := strings.TrimSpace(rest[len(program):])
	return Directive{Kind: KindLaunchProgram, Raw: raw, Args: []string{program, arguments}}, true
}

// hasKeywordPrefix reports whether s starts with keyword as a whole token.
func hasKeywordPrefix(s, keyword string) bool {
	if !strings.HasPrefix(s, keyword) {
		return false
	}
	return len(s) == len(keyword) || unicode.IsSpace(rune(s[len(keyword)]))
}

// indexLaunch finds launch_program as a standalone word followed by whitespace.
func indexLaunch(text string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], LaunchKeyword)
		if i < 0 {
			return -1
		}
		at := offset + i
		end := at + len(LaunchKeyword)
		boundaryBefore := at == 0 || !isWordByte(text[at-1])
		boundaryAfter := end < len(text) && unicode.IsSpace(rune(text[end]))
		if boundaryBefore && boundaryAfter {
			return at
		}
		offset = end
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
