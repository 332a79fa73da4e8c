// errors.go - Diagnostics for the Indent compiler
//
// Compile errors never travel as Go errors. They accumulate in a
// DiagnosticCollector, get sorted for deterministic output, and render
// in the familiar compiler style: severity, message, location, the
// offending source line with a caret underline, and an optional help
// line. The collector is the diagnostics sink the rest of the pipeline
// reports into.

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// DiagLevel is the severity of a diagnostic
type DiagLevel int

const (
	LevelWarning DiagLevel = iota
	LevelError
	LevelFatal
)

func (l DiagLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelFatal:
		return "fatal error"
	default:
		return "error"
	}
}

// DiagCategory groups diagnostics by pipeline stage
type DiagCategory int

const (
	CategorySyntax DiagCategory = iota
	CategoryType
	CategoryConst
	CategoryCodegen
	CategoryInternal
)

func (c DiagCategory) String() string {
	switch c {
	case CategorySyntax:
		return "syntax"
	case CategoryType:
		return "type"
	case CategoryConst:
		return "const"
	case CategoryCodegen:
		return "codegen"
	default:
		return "internal"
	}
}

// SourceLocation points at a span of source text. Length is the caret
// underline width; zero means a bare single caret.
type SourceLocation struct {
	File   string
	Line   int
	Col    int
	Length int
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Diagnostic is one reported problem
type Diagnostic struct {
	Level      DiagLevel
	Category   DiagCategory
	Loc        SourceLocation
	Message    string
	SourceLine string
	Help       string
}

// Error satisfies the error interface for the rare paths that bubble a
// diagnostic through Go error plumbing (fatal internal errors).
func (d *Diagnostic) Error() string {
	if d.Loc.File == "" {
		return fmt.Sprintf("%s: %s", d.Level, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Level, d.Message)
}

// ANSI escapes for colored terminal output
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[1;31m"
	ansiYellow = "\x1b[1;33m"
	ansiBlue   = "\x1b[1;34m"
)

// Format renders the diagnostic for the terminal
func (d *Diagnostic) Format(useColor bool) string {
	var b strings.Builder

	levelColor := ansiRed
	if d.Level == LevelWarning {
		levelColor = ansiYellow
	}
	if useColor {
		fmt.Fprintf(&b, "%s%s%s%s: %s%s\n", levelColor, d.Level, ansiReset, ansiBold, d.Message, ansiReset)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", d.Level, d.Message)
	}

	if d.Loc.File != "" {
		arrow := "  --> "
		if useColor {
			fmt.Fprintf(&b, "%s%s%s%s\n", ansiBlue, arrow, ansiReset, d.Loc)
		} else {
			fmt.Fprintf(&b, "%s%s\n", arrow, d.Loc)
		}
	}

	if d.SourceLine != "" && d.Loc.Line > 0 {
		gutter := fmt.Sprintf("%4d", d.Loc.Line)
		blank := strings.Repeat(" ", len(gutter))
		fmt.Fprintf(&b, "%s |\n", blank)
		fmt.Fprintf(&b, "%s | %s\n", gutter, d.SourceLine)

		width := d.Loc.Length
		if width < 1 {
			width = 1
		}
		pad := d.Loc.Col - 1
		if pad < 0 {
			pad = 0
		}
		caret := strings.Repeat(" ", pad) + strings.Repeat("^", width)
		if useColor {
			fmt.Fprintf(&b, "%s | %s%s%s\n", blank, levelColor, caret, ansiReset)
		} else {
			fmt.Fprintf(&b, "%s | %s\n", blank, caret)
		}
	}

	if d.Help != "" {
		fmt.Fprintf(&b, "  = help: %s\n", d.Help)
	}

	return b.String()
}

// defaultMaxErrors caps reporting so a single broken file does not
// scroll hundreds of cascading diagnostics past the real one.
const defaultMaxErrors = 10

// DiagnosticCollector accumulates diagnostics across units. It is safe
// for concurrent use; units compile in parallel.
type DiagnosticCollector struct {
	mu        sync.Mutex
	diags     []*Diagnostic
	numErrors int
	maxErrors int
	sources   map[string][]string
}

// NewDiagnosticCollector returns a collector with the default error cap
func NewDiagnosticCollector() *DiagnosticCollector {
	return &DiagnosticCollector{
		maxErrors: defaultMaxErrors,
		sources:   map[string][]string{},
	}
}

// SetSource registers a file's text so diagnostics can show the
// offending line.
func (c *DiagnosticCollector) SetSource(file, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[file] = strings.Split(text, "\n")
}

func (c *DiagnosticCollector) sourceLine(file string, line int) string {
	lines, ok := c.sources[file]
	if !ok || line < 1 || line > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[line-1], "\r")
}

// Add records a diagnostic, attaching the source line when known
func (c *DiagnosticCollector) Add(d *Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.SourceLine == "" {
		d.SourceLine = c.sourceLine(d.Loc.File, d.Loc.Line)
	}
	c.diags = append(c.diags, d)
	if d.Level >= LevelError {
		c.numErrors++
	}
}

// Errorf records an error diagnostic at a location
func (c *DiagnosticCollector) Errorf(cat DiagCategory, loc SourceLocation, format string, args ...any) {
	c.Add(&Diagnostic{
		Level:    LevelError,
		Category: cat,
		Loc:      loc,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Warnf records a warning diagnostic at a location
func (c *DiagnosticCollector) Warnf(cat DiagCategory, loc SourceLocation, format string, args ...any) {
	c.Add(&Diagnostic{
		Level:    LevelWarning,
		Category: cat,
		Loc:      loc,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any error-level diagnostic was recorded
func (c *DiagnosticCollector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numErrors > 0
}

// ErrorCount returns the number of error-level diagnostics
func (c *DiagnosticCollector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numErrors
}

// ShouldStop reports whether the error cap has been reached
func (c *DiagnosticCollector) ShouldStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numErrors >= c.maxErrors
}

// Diagnostics returns all diagnostics sorted by file, line, column.
// Parallel compilation makes arrival order nondeterministic; sorted
// output keeps runs reproducible.
func (c *DiagnosticCollector) Diagnostics() []*Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Diagnostic, len(c.diags))
	copy(out, c.diags)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Loc, out[j].Loc
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Col < b.Col
	})
	return out
}

// Report writes every diagnostic plus a summary line
func (c *DiagnosticCollector) Report(w io.Writer, useColor bool) {
	diags := c.Diagnostics()
	shown := 0
	for _, d := range diags {
		fmt.Fprint(w, d.Format(useColor))
		fmt.Fprintln(w)
		if d.Level >= LevelError {
			shown++
			if shown >= c.maxErrors {
				break
			}
		}
	}

	errs := c.ErrorCount()
	if errs > c.maxErrors {
		fmt.Fprintf(w, "error: too many errors emitted, showing the first %d\n", c.maxErrors)
	} else if errs == 1 {
		fmt.Fprintf(w, "error: aborting due to previous error\n")
	} else if errs > 1 {
		fmt.Fprintf(w, "error: aborting due to %d previous errors\n", errs)
	}
}

// Clear drops all recorded diagnostics. Watch mode reuses one
// collector across rebuild cycles.
func (c *DiagnosticCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags = nil
	c.numErrors = 0
}

// Common diagnostic constructors used by the checker

func undefinedNameError(name string, loc SourceLocation, suggestion string) *Diagnostic {
	help := "names must be declared with 'let', 'var', or as a parameter before use"
	if suggestion != "" {
		help = fmt.Sprintf("did you mean '%s'?", suggestion)
	}
	return &Diagnostic{
		Level:    LevelError,
		Category: CategoryType,
		Loc:      loc,
		Message:  fmt.Sprintf("undefined name '%s'", name),
		Help:     help,
	}
}

// closestName picks the candidate within a small edit distance of name,
// for "did you mean" help lines. Returns "" when nothing is close; the
// allowed distance shrinks with the name so short identifiers do not
// attract unrelated suggestions.
func closestName(name string, candidates []string) string {
	maxDist := len(name)/3 + 1
	best, bestDist := "", maxDist+1
	for _, cand := range candidates {
		if cand == name {
			continue
		}
		d := levenshtein(name, cand)
		if d < bestDist || (d == bestDist && cand < best) {
			best, bestDist = cand, d
		}
	}
	if bestDist > maxDist {
		return ""
	}
	return best
}

// levenshtein is the classic two-row edit distance over bytes;
// identifiers are ASCII so byte positions match rune positions.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func typeMismatchError(expected, found *Type, loc SourceLocation) *Diagnostic {
	return &Diagnostic{
		Level:    LevelError,
		Category: CategoryType,
		Loc:      loc,
		Message:  fmt.Sprintf("type mismatch: expected %s, found %s", expected, found),
	}
}

func syntaxError(loc SourceLocation, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Level:    LevelError,
		Category: CategorySyntax,
		Loc:      loc,
		Message:  fmt.Sprintf(format, args...),
	}
}

func unexpectedTokenError(expected string, found Token) *Diagnostic {
	return &Diagnostic{
		Level:    LevelError,
		Category: CategorySyntax,
		Loc: SourceLocation{
			Line:   found.Pos.Line,
			Col:    found.Pos.Col,
			Length: len(found.Lexeme),
		},
		Message: fmt.Sprintf("expected %s, found %s", expected, found),
	}
}
