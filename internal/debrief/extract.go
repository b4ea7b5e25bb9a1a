package debrief

import (
	"regexp"
	"strings"
)

var fence = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)```")

// ExtractJSON finds the JSON object in a model reply. A fenced block wins;
// otherwise the first balanced {...} is used.
func ExtractJSON(text string) (string, bool) {
	for _, m := range fence.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if obj, ok := firstObject(body); ok {
			return obj, true
		}
	}
	return firstObject(text)
}

// firstObject scans for the first balanced object, skipping braces inside
// strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
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
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}
