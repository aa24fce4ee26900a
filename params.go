package golemsql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Named-parameter binding. The canonical style is pyformat,
// %(name)s; the :name style is normalized to it before binding.
// Parameters are rendered into the statement as safely quoted SQL
// literals — the backing store has no serverside bind protocol.

// BindParameters substitutes every placeholder in query with the
// rendered literal for its named parameter.
func BindParameters(query string, params map[string]any) (string, error) {
	normalized, err := normalizeParamStyle(query)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	i := 0
	for i < len(normalized) {
		c := normalized[i]

		if c == '\'' {
			end, err := skipStringLiteral(normalized, i)
			if err != nil {
				return "", err
			}
			b.WriteString(normalized[i:end])
			i = end
			continue
		}

		if c == '%' && i+1 < len(normalized) && normalized[i+1] == '(' {
			end := strings.Index(normalized[i:], ")s")
			if end < 0 {
				return "", NewInterfaceError(ErrCodeBadParamStyle,
					"unterminated %%(name)s placeholder")
			}
			name := normalized[i+2 : i+end]
			value, ok := params[name]
			if !ok {
				return "", NewProgrammingError(ErrCodeUnboundParameter,
					"no value bound for parameter %q", name)
			}
			literal, err := renderLiteral(value)
			if err != nil {
				return "", err
			}
			b.WriteString(literal)
			i += end + 2
			continue
		}

		if c == '?' {
			return "", NewInterfaceError(ErrCodeBadParamStyle,
				"positional '?' parameters are not supported; use %%(name)s")
		}

		b.WriteByte(c)
		i++
	}
	return b.String(), nil
}

// normalizeParamStyle rewrites :name placeholders to %(name)s,
// leaving string literals untouched.
func normalizeParamStyle(query string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(query) {
		c := query[i]

		if c == '\'' {
			end, err := skipStringLiteral(query, i)
			if err != nil {
				return "", err
			}
			b.WriteString(query[i:end])
			i = end
			continue
		}

		if c == ':' && i+1 < len(query) && isParamNameByte(query[i+1]) {
			j := i + 1
			for j < len(query) && isParamNameByte(query[j]) {
				j++
			}
			b.WriteString("%(")
			b.WriteString(query[i+1 : j])
			b.WriteString(")s")
			i = j
			continue
		}

		b.WriteByte(c)
		i++
	}
	return b.String(), nil
}

func isParamNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// skipStringLiteral returns the index just past a single-quoted
// literal starting at start, honoring '' doubling and backslash
// escapes.
func skipStringLiteral(query string, start int) (int, error) {
	i := start + 1
	for i < len(query) {
		switch query[i] {
		case '\\':
			i += 2
		case '\'':
			if i+1 < len(query) && query[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1, nil
		default:
			i++
		}
	}
	return 0, NewProgrammingError(ErrCodeParseFailed, "unterminated string literal")
}

// renderLiteral turns a bound Go value into SQL literal text.
func renderLiteral(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteSQLString(v), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case time.Time:
		return "'" + v.UTC().Format("2006-01-02 15:04:05") + "'", nil
	case []byte:
		return "X'" + fmt.Sprintf("%x", v) + "'", nil
	}
	return "", NewInterfaceError(ErrCodeUnsupportedParams,
		"cannot bind parameter of type %T", value)
}

func quoteSQLString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(s[i])
		}
	}
	b.WriteByte('\'')
	return b.String()
}
