package webhook

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// AnswerKeys are the object keys that may carry the answer text, in priority order.
// When a responder sets more than one, the earliest key wins.
var AnswerKeys = []string{"text", "response", "answer", "output", "chatInput"}

// DefaultRemediation replaces the default body of an unconfigured
// "Respond to Webhook" node.
const DefaultRemediation = "Connection successful, but the n8n 'Respond to Webhook' node is currently set to return the default { myField: 'value' }.\n\n" +
	"Fix in n8n: Open your 'Respond to Webhook' node and change the 'Respond With' parameter to output the AI Agent's text instead."

// Kind tags the shape of a normalized response.
type Kind int

const (
	KindRawText Kind = iota
	KindRecognizedText
	KindUnrecognizedJSON
	KindSentinelConfigError
)

func (k Kind) String() string {
	switch k {
	case KindRecognizedText:
		return "recognized_text"
	case KindUnrecognizedJSON:
		return "unrecognized_json"
	case KindSentinelConfigError:
		return "sentinel_config_error"
	default:
		return "raw_text"
	}
}

// Answer is a response body reduced to one of four shapes.
type Answer struct {
	Kind Kind
	// Text is the recognized value, the raw body, or the pretty-printed JSON dump.
	// Empty for KindSentinelConfigError.
	Text string
	// Key names the field Text was taken from (KindRecognizedText only).
	Key string
}

// Display returns the text shown to the user. remediation replaces the sentinel
// body; an empty remediation falls back to DefaultRemediation.
func (a Answer) Display(remediation string) string {
	if a.Kind == KindSentinelConfigError {
		if remediation == "" {
			return DefaultRemediation
		}
		return remediation
	}
	return a.Text
}

// Normalize reduces a raw response body to an Answer. It performs no I/O.
func Normalize(body []byte) Answer {
	text := strings.ToValidUTF8(string(body), "\uFFFD")
	if !gjson.Valid(text) {
		return Answer{Kind: KindRawText, Text: text}
	}

	doc := gjson.Parse(text)
	switch {
	case doc.IsObject():
		fields := lastValues(doc)
		for _, key := range AnswerKeys {
			v, ok := fields[key]
			if ok && v.Type == gjson.String && v.Str != "" {
				return Answer{Kind: KindRecognizedText, Text: v.Str, Key: key}
			}
		}
		if isSentinel(doc) {
			return Answer{Kind: KindSentinelConfigError}
		}
	case doc.Type == gjson.String:
		return Answer{Kind: KindRawText, Text: doc.Str}
	case doc.Type == gjson.Null:
		return Answer{Kind: KindRawText, Text: text}
	}
	return Answer{Kind: KindUnrecognizedJSON, Text: prettyJSON(text)}
}

// lastValues indexes the top-level members of an object. A repeated key keeps its
// last value, as a JSON decoder would.
func lastValues(doc gjson.Result) map[string]gjson.Result {
	out := make(map[string]gjson.Result)
	doc.ForEach(func(key, value gjson.Result) bool {
		out[key.Str] = value
		return true
	})
	return out
}

// isSentinel reports whether doc is exactly {"myField":"value"}.
func isSentinel(doc gjson.Result) bool {
	n := 0
	match := false
	doc.ForEach(func(key, value gjson.Result) bool {
		n++
		match = key.Str == "myField" && value.Type == gjson.String && value.Str == "value"
		return n < 2
	})
	return n == 1 && match
}

func prettyJSON(text string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(text)), "", "  "); err != nil {
		return text
	}
	return buf.String()
}
