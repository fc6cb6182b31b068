package provider

import "strings"

// extractJSON returns the first top-level JSON object or array embedded in
// model output. Models fenced on JSON still wrap replies in markdown
// fences or surrounding prose often enough that schema decoding has to
// tolerate it.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	// Strip a markdown code fence if present.
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
			s = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}

	openChar := s[start]
	var closeChar byte
	if openChar == '{' {
		closeChar = '}'
	} else {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
