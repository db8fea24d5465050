package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stevemurr/termstore/document"
)

const (
	pairSeparator  = "__"
	fieldSeparator = ":"
)

// HashTerms builds the composite key for terms over fields. Fields are
// visited in the given order and fields absent from terms are skipped, so
// two payloads share a key only when they carry the same fields with the
// same values. Field names and string values are quoted, which keeps the
// key unambiguous whatever the values contain.
func HashTerms(fields []string, terms document.Payload) string {
	var b strings.Builder
	first := true
	for _, field := range fields {
		v, ok := terms[field]
		if !ok {
			continue
		}
		if !first {
			b.WriteString(pairSeparator)
		}
		first = false
		b.WriteString(strconv.Quote(field))
		b.WriteString(fieldSeparator)
		b.WriteString(renderValue(v))
	}
	return b.String()
}

func renderValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		// Payloads are normalized before they reach the index.
		return fmt.Sprintf("%v", x)
	}
}
