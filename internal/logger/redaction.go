package logger

import (
	"io"
	"regexp"
)

// Session logs carry prompts and tool arguments, either of which can contain
// a pasted credential. Every log writer is filtered through these rules
// before bytes reach disk.
type scrubRule struct {
	label   string
	pattern *regexp.Regexp
}

func defaultScrubRules() []scrubRule {
	return []scrubRule{
		// Anthropic and OpenAI keys share the sk- prefix.
		{"api_key", regexp.MustCompile(`sk-(?:ant-)?[A-Za-z0-9_-]{20,}`)},
		{"bearer", regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]+`)},
		{"aws_key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{"password", regexp.MustCompile(`(?i)(?:password|pwd)["\s:=]+[^\s"]+`)},
		{"token", regexp.MustCompile(`(?i)token["\s:=]+[A-Za-z0-9._-]{20,}`)},
		{"secret", regexp.MustCompile(`(?i)secret["\s:=]+[^\s"]+`)},
	}
}

// Scrubber rewrites credential-shaped substrings to a labeled placeholder.
type Scrubber struct {
	rules []scrubRule
}

func NewScrubber() *Scrubber {
	return &Scrubber{rules: defaultScrubRules()}
}

// AddRule registers an extra pattern under the given label.
func (s *Scrubber) AddRule(label, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.rules = append(s.rules, scrubRule{label: label, pattern: re})
	return nil
}

// Clean rewrites every match in text.
func (s *Scrubber) Clean(text string) string {
	for _, rule := range s.rules {
		text = rule.pattern.ReplaceAllString(text, "[redacted:"+rule.label+"]")
	}
	return text
}

// Writer filters w so nothing credential-shaped reaches it.
func (s *Scrubber) Writer(w io.Writer) io.Writer {
	return scrubWriter{dst: w, scrubber: s}
}

type scrubWriter struct {
	dst      io.Writer
	scrubber *Scrubber
}

// Write reports the input length even though the scrubbed output may be
// shorter or longer; zerolog treats a mismatched count as a write error.
func (w scrubWriter) Write(p []byte) (int, error) {
	if _, err := w.dst.Write([]byte(w.scrubber.Clean(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
