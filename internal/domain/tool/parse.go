package tool

import "encoding/json"

// Call is an inline tool call extracted from agent output.
type Call struct {
	Tool       string         `json:"tool"`
	Arguments  map[string]any `json:"arguments"`
	ApprovalID string         `json:"approval_id,omitempty"`
}

// ExtractCall finds the first balanced JSON object in free text that carries
// both a non-empty "tool" and an "arguments" key. Agents emit tool calls as
// inline JSON surrounded by prose; everything else is treated as plain text.
func ExtractCall(text string) *Call {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end, ok := balancedObjectEnd(text, start)
		if !ok {
			// A stray opener in prose never closes; the next opener may
			// still start a valid call.
			continue
		}
		if call := decodeCall(text[start : end+1]); call != nil {
			return call
		}
		start = end
	}
	return nil
}

// balancedObjectEnd returns the index of the brace closing the object that
// opens at start, honoring JSON string literals and escapes.
func balancedObjectEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i, true
			}
		}
	}
	return 0, false
}

func decodeCall(candidate string) *Call {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil
	}
	toolRaw, hasTool := raw["tool"]
	argsRaw, hasArgs := raw["arguments"]
	if !hasTool || !hasArgs {
		return nil
	}

	call := &Call{}
	if err := json.Unmarshal(toolRaw, &call.Tool); err != nil || call.Tool == "" {
		return nil
	}
	if err := json.Unmarshal(argsRaw, &call.Arguments); err != nil {
		return nil
	}
	if idRaw, ok := raw["approval_id"]; ok {
		// Tolerate both string and numeric approval ids.
		var s string
		if err := json.Unmarshal(idRaw, &s); err == nil {
			call.ApprovalID = s
		} else {
			var n json.Number
			if err := json.Unmarshal(idRaw, &n); err == nil {
				call.ApprovalID = n.String()
			}
		}
	}
	return call
}
