package mi

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders a record back into backend wire grammar:
// [token]<class><keyword>[,key=value...]
func Format(class RecordClass, keyword string, payload *Dict, token *uint64) string {
	var b strings.Builder
	if token != nil {
		b.WriteString(strconv.FormatUint(*token, 10))
	}
	b.WriteString(classChar(class))
	b.WriteString(keyword)
	if payload != nil && payload.Len() > 0 {
		b.WriteByte(',')
		b.WriteString(FormatDict(payload))
	}
	return b.String()
}

func classChar(c RecordClass) string {
	switch c {
	case RecordResult:
		return "^"
	case RecordNotify:
		return "="
	case RecordExec:
		return "*"
	default:
		return "~"
	}
}

// FormatDict renders a Dict's key=value pairs comma-joined, without
// surrounding braces (the top-level payload grammar).
func FormatDict(d *Dict) string {
	if d == nil {
		return ""
	}
	parts := make([]string, 0, d.Len())
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		parts = append(parts, fmt.Sprintf("%s=%s", k, FormatValue(v)))
	}
	return strings.Join(parts, ",")
}

// FormatValue renders a single Value in wire grammar.
func FormatValue(v Value) string {
	switch v.Kind {
	case KindString:
		return quoteString(v.Str)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindDict:
		return "{" + formatBracedDict(v.Dict) + "}"
	default:
		return `""`
	}
}

func formatBracedDict(d *Dict) string {
	parts := make([]string, 0, d.Len())
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		parts = append(parts, fmt.Sprintf("%s=%s", k, FormatValue(v)))
	}
	return strings.Join(parts, ",")
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// FormatStreamText renders a console stream-text record ("~\"...\"")
// carrying a free-form human-readable line, used by formatters that
// report a summary rather than structured MI fields.
func FormatStreamText(text string) string {
	return "~" + quoteString(text)
}

// FormatContext serializes a register context dict as "name=value ..."
// space-joined pairs, the wire form spec.md §4.5/§4.6 use for
// switch-context-custom arguments. Both bool and numeric register values
// are carried as plain decimal strings on the wire.
func FormatContext(ctx map[string]uint64) string {
	parts := make([]string, 0, len(ctx))
	for k, v := range ctx {
		parts = append(parts, fmt.Sprintf("%s=%d", k, v))
	}
	return strings.Join(parts, " ")
}
