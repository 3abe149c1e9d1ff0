package queryir

import (
	"net/url"
	"strings"
)

// Raw is the caller-supplied flat parameter set. Values are string,
// []string, []any, map[string]any or JSON scalars. Raw is read once and
// never modified by the compiler.
type Raw map[string]any

// RawFromValues converts decoded URL parameters. Single values become
// strings; repeated keys keep their []string form.
func RawFromValues(values url.Values) Raw {
	raw := make(Raw, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
			raw[k] = ""
		case 1:
			raw[k] = vs[0]
		default:
			raw[k] = append([]string(nil), vs...)
		}
	}
	return raw
}

// ParseRaw parses a URL query string ("name=x&sort=-createdAt"). A leading
// "?" is ignored.
func ParseRaw(query string) (Raw, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return nil, WrapParserError("", err, "malformed query string")
	}
	return RawFromValues(values), nil
}
