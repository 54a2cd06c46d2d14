// Package codec implements the PokeProtocol wire framing: newline-delimited
// "key: value" text, one message per datagram.
//
// It deliberately knows nothing about message semantics: it does not parse
// JSON, it does not know which fields a given message_type requires. Nested
// JSON (creature snapshots, stat-boost maps) is left as an opaque string for
// the caller to parse.
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Fields is a decoded message: an ordered-insensitive key/value mapping.
// Keys and values are always strings; numeric/boolean fields are carried
// as decimal text.
type Fields map[string]string

// Encode renders fields as the wire format, writing message_type as the
// first line when present (a convention, not a requirement of Decode).
// Embedded newlines in values are replaced with spaces so the result
// remains one message per datagram.
func Encode(fields Fields) []byte {
	var b strings.Builder
	first := true
	writeLine := func(k, v string) {
		if !first {
			b.WriteByte('\n')
		}
		first = false
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(v, "\n", " "))
	}
	if v, ok := fields["message_type"]; ok {
		writeLine("message_type", v)
	}
	for k, v := range fields {
		if k == "message_type" {
			continue
		}
		writeLine(k, v)
	}
	return []byte(b.String())
}

// ErrMalformedLine is returned when a non-blank line has no colon separator.
type ErrMalformedLine struct {
	Line string
}

func (e *ErrMalformedLine) Error() string {
	return fmt.Sprintf("codec: malformed line %q: missing colon", e.Line)
}

// Decode parses raw datagram bytes into Fields. A blank line is skipped.
// Each non-blank line must be "key: value" or the more permissive
// "key:value" (no space). Keys never contain a colon; the first colon in a
// line separates key from value.
func Decode(data []byte) (Fields, error) {
	text := string(data)
	lines := strings.Split(text, "\n")
	fields := make(Fields, len(lines))

	for _, rawLine := range lines {
		line := strings.TrimRight(rawLine, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, &ErrMalformedLine{Line: line}
		}

		key := line[:idx]
		value := line[idx+1:]
		if strings.HasPrefix(value, " ") {
			value = value[1:]
		}
		fields[key] = value
	}

	return fields, nil
}

// RequireFields reports whether every key in required is present in fields,
// returning the first missing key otherwise.
func RequireFields(fields Fields, required []string) (ok bool, missing string) {
	for _, key := range required {
		if _, present := fields[key]; !present {
			return false, key
		}
	}
	return true, ""
}

// ParseIntField parses fields[key] as a base-10 int64. It returns an error
// that names the field on failure so callers can log a useful diagnostic.
func ParseIntField(fields Fields, key string) (int64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("codec: field %q absent", key)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("codec: field %q not an integer: %w", key, err)
	}
	return n, nil
}
