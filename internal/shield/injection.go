package shield

import (
	"bytes"
	"strings"
)

// inputInjectionPhrases covers shell metacharacters, path traversal,
// HTML/JS sinks, and SQL-injection phrases that should never appear in
// user-supplied input reaching the session or LLM stages.
var inputInjectionPhrases = []string{
	"$(",
	"`",
	"&&",
	"||",
	";",
	"../",
	"\\",
	"<script",
	"javascript:",
	"eval(",
	"drop table",
	"union select",
	"or 1=1",
	"' or '",
}

// outputInjectionPhrases is a narrower list focused on prompt-injection
// phrasing and raw HTML/JS sinks; shell and SQL fragments are
// intentionally not flagged here since they occur in legitimate assistant
// output (code blocks, shell help text, etc).
var outputInjectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"system prompt:",
	"admin override",
	"<script",
	"javascript:",
}

// CheckInputInjection reports whether content looks like an injection
// attempt from a user. Returns false (rejected) on the first matching
// phrase or on any embedded NUL byte.
func CheckInputInjection(content []byte) bool {
	if bytes.IndexByte(content, 0) != -1 {
		return false
	}
	return !containsAnyFold(content, inputInjectionPhrases)
}

// CheckOutputInjection applies the narrower assistant-output variant.
func CheckOutputInjection(content []byte) bool {
	if bytes.IndexByte(content, 0) != -1 {
		return false
	}
	return !containsAnyFold(content, outputInjectionPhrases)
}

func containsAnyFold(content []byte, phrases []string) bool {
	lower := strings.ToLower(string(content))
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// CheckURL requires content to start with "https://" and pass the URL
// grammar.
func CheckURL(url string) bool {
	if !strings.HasPrefix(url, "https://") {
		return false
	}
	return Check([]byte(url), URL).Valid
}

// MagicByteKind names a recognised file signature.
type MagicByteKind int

const (
	MagicUnknown MagicByteKind = iota
	MagicPDF
	MagicPNG
	MagicJSON
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ProbeMagicBytes recognises PDF, PNG, and JSON (first non-whitespace
// byte is '{' or '[') signatures.
func ProbeMagicBytes(data []byte) MagicByteKind {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return MagicPDF
	}
	if bytes.HasPrefix(data, pngSignature) {
		return MagicPNG
	}
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return MagicJSON
		default:
			return MagicUnknown
		}
	}
	return MagicUnknown
}
