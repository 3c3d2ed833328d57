// Package repair recovers a JSON object from unreliable model output.
//
// Repair never fails: text that cannot be turned into an object under any
// step yields the caller-supplied fallback object instead.
package repair

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Stage reports which step produced the repaired object.
type Stage int

const (
	// StageDirect means the input already was a single JSON object.
	StageDirect Stage = iota
	// StageCleaned means the object parsed after brace trimming and
	// trailing-comma cleanup, with quote normalization when needed.
	StageCleaned
	// StageSpan means only the largest brace-matched span parsed.
	StageSpan
	// StageFallback means nothing parsed and the fallback object was used.
	StageFallback
)

func (s Stage) String() string {
	switch s {
	case StageDirect:
		return "direct"
	case StageCleaned:
		return "cleaned"
	case StageSpan:
		return "span"
	case StageFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Result is the outcome of Repair.
type Result struct {
	Object map[string]any
	Stage  Stage
}

// Repaired reports whether any cleanup was needed.
func (r Result) Repaired() bool {
	return r.Stage != StageDirect
}

// JSON returns the object serialized as compact JSON with sorted keys.
// Feeding it back into Repair yields an equal object.
func (r Result) JSON() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.Object); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}

// Repair converts text that should contain one JSON object into that object.
// Steps, in order: parse the trimmed text strictly; keep only the text
// between the first '{' and the last '}' and drop commas that precede a
// closer; then also normalize quote variants used as string delimiters; and
// if none of that parses, parse the largest brace-matched span. Quote
// normalization only runs once the text failed to parse without it, so
// apostrophes inside valid strings survive. When every step fails the
// fallback object is returned. fallback may be nil, in which case an empty
// object is used.
func Repair(text string, fallback func() map[string]any) Result {
	if obj, ok := parseObject(strings.TrimSpace(text)); ok {
		return Result{Object: obj, Stage: StageDirect}
	}

	stripped := StripTrailingCommas(TrimToBraces(text))
	if obj, ok := parseObject(stripped); ok {
		return Result{Object: obj, Stage: StageCleaned}
	}
	normalized := StripTrailingCommas(NormalizeQuotes(stripped))
	if obj, ok := parseObject(normalized); ok {
		return Result{Object: obj, Stage: StageCleaned}
	}

	for _, candidate := range []string{stripped, normalized} {
		if span, ok := LargestSpan(candidate); ok {
			if obj, ok := parseObject(StripTrailingCommas(span)); ok {
				return Result{Object: obj, Stage: StageSpan}
			}
		}
	}

	return Result{Object: fallbackObject(fallback), Stage: StageFallback}
}

// Clean applies every textual step of Repair without parsing.
func Clean(text string) string {
	s := StripTrailingCommas(TrimToBraces(text))
	return StripTrailingCommas(NormalizeQuotes(s))
}

// TrimToBraces drops everything before the first '{' and after the last '}'.
// It returns "" when the text holds no such pair.
func TrimToBraces(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}

// StripTrailingCommas removes every comma outside a double-quoted string
// whose next non-space character is '}' or ']' (runs of commas included).
func StripTrailingCommas(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case c == '"':
			inString = true
		case c == ',' && closerFollows(s, i+1):
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closerFollows reports whether only whitespace and commas separate s[i:]
// from a '}' or ']'.
func closerFollows(s string, i int) bool {
	for ; i < len(s); i++ {
		switch c := s[i]; {
		case c == '}' || c == ']':
			return true
		case c == ',' || isSpace(rune(c)):
		default:
			return false
		}
	}
	return false
}

// quoteVariants are characters models emit in place of '"'.
var quoteVariants = map[rune]bool{
	'\'': true, '‘': true, '’': true, '‚': true, '‛': true, '′': true,
	'“': true, '”': true, '„': true, '‟': true, '″': true, '«': true, '»': true, '＂': true,
}

// NormalizeQuotes replaces quote variants with '"' where they act as string
// delimiters: opening right after '{', '[', ',' or ':' (or at the start), and
// closing right before '}', ']', ',' or ':' (or at the end). Text inside
// double-quoted strings is left alone, as are apostrophes inside words. A '"'
// inside a string delimited by a variant is escaped.
func NormalizeQuotes(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	changed := false

	const (
		outside = iota
		inDouble
		inVariant
	)
	state, escaped := outside, false
	for i, r := range runes {
		switch state {
		case inDouble:
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				state = outside
			}
		case inVariant:
			switch {
			case quoteVariants[r] && isCloser(nextNonSpace(runes, i)):
				r = '"'
				state = outside
				changed = true
			case r == '"':
				out = append(out, '\\')
				changed = true
			}
		default:
			switch {
			case r == '"':
				state = inDouble
			case quoteVariants[r] && isOpener(prevNonSpace(runes, i)):
				r = '"'
				state = inVariant
				changed = true
			}
		}
		out = append(out, r)
	}
	if !changed {
		return s
	}
	return string(out)
}

// LargestSpan returns the longest substring that starts with '{' and ends
// with its matching '}', skipping braces inside double-quoted strings.
func LargestSpan(s string) (string, bool) {
	var stack []int
	bestStart, bestEnd := -1, -1
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if i-start > bestEnd-bestStart {
				bestStart, bestEnd = start, i
			}
		}
	}

	if bestStart == -1 {
		return "", false
	}
	return s[bestStart : bestEnd+1], true
}

// parseObject strictly parses s as a single JSON object. Numbers are kept as
// json.Number so values round-trip unchanged.
func parseObject(s string) (map[string]any, bool) {
	if s == "" || !gjson.Valid(s) || !gjson.Parse(s).IsObject() {
		return nil, false
	}

	decoder := json.NewDecoder(strings.NewReader(s))
	decoder.UseNumber()

	var obj map[string]any
	if err := decoder.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// fallbackObject normalizes the fallback through JSON so it has the same
// value types as a parsed object and shares no memory with the caller.
func fallbackObject(fallback func() map[string]any) map[string]any {
	if fallback == nil {
		return map[string]any{}
	}
	src := fallback()
	if src == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(src)
	if err != nil {
		return src
	}
	if obj, ok := parseObject(string(data)); ok {
		return obj
	}
	return src
}

func prevNonSpace(runes []rune, i int) rune {
	for j := i - 1; j >= 0; j-- {
		if !isSpace(runes[j]) {
			return runes[j]
		}
	}
	return 0
}

func nextNonSpace(runes []rune, i int) rune {
	for j := i + 1; j < len(runes); j++ {
		if !isSpace(runes[j]) {
			return runes[j]
		}
	}
	return 0
}

func isOpener(r rune) bool {
	return r == 0 || r == '{' || r == '[' || r == ',' || r == ':'
}

func isCloser(r rune) bool {
	return r == 0 || r == '}' || r == ']' || r == ',' || r == ':'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
