package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var reMoneyNoise = regexp.MustCompile(`(?i)\b(usd|cad|eur|gbp)\b|[$£€,\s]`)

// SanitizeLenient reshapes model output toward the schema: it renames
// known synonyms, coerces money strings to numbers, turns blank values
// into null where null is allowed and drops keys the schema forbids.
// Required fields are never invented.
func SanitizeLenient(def map[string]any, raw []byte, synonyms map[string]string) ([]byte, []string, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	var changes []string
	v = sanitizeNode(def, v, "$", synonyms, &changes)
	out, err := json.Marshal(v)
	if err != nil {
		return nil, changes, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, changes, nil
}

func sanitizeNode(node map[string]any, v any, path string, synonyms map[string]string, changes *[]string) any {
	types := schemaTypes(node)
	switch t := v.(type) {
	case map[string]any:
		props, _ := node["properties"].(map[string]any)
		for from, to := range synonyms {
			val, ok := t[from]
			if !ok || props[to] == nil || props[from] != nil {
				continue
			}
			if _, exists := t[to]; !exists {
				t[to] = val
				*changes = append(*changes, path+"."+from+"->"+to)
			}
			delete(t, from)
		}
		closed := node["additionalProperties"] == false
		for k, val := range t {
			child, ok := props[k].(map[string]any)
			if !ok {
				if closed {
					delete(t, k)
					*changes = append(*changes, path+"."+k+"(unknown)")
				}
				continue
			}
			t[k] = sanitizeNode(child, val, path+"."+k, synonyms, changes)
		}
		return t
	case []any:
		items, _ := node["items"].(map[string]any)
		if items == nil {
			return t
		}
		for i := range t {
			t[i] = sanitizeNode(items, t[i], fmt.Sprintf("%s[%d]", path, i), synonyms, changes)
		}
		return t
	case string:
		s := strings.TrimSpace(t)
		blank := s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a")
		if blank && slices.Contains(types, "null") {
			*changes = append(*changes, path+"(null)")
			return nil
		}
		if slices.Contains(types, "string") {
			return t
		}
		if slices.Contains(types, "number") || slices.Contains(types, "integer") {
			if f, ok := parseMoney(s); ok {
				*changes = append(*changes, path+"(number)")
				if slices.Contains(types, "integer") && !slices.Contains(types, "number") {
					return json.Number(strconv.FormatInt(int64(f), 10))
				}
				return json.Number(strconv.FormatFloat(f, 'f', -1, 64))
			}
		}
		if slices.Contains(types, "boolean") {
			if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
				*changes = append(*changes, path+"(bool)")
				return b
			}
		}
		return t
	case json.Number:
		if slices.Contains(types, "string") && !slices.Contains(types, "number") && !slices.Contains(types, "integer") {
			*changes = append(*changes, path+"(string)")
			return t.String()
		}
		return t
	}
	return v
}

func schemaTypes(node map[string]any) []string {
	switch t := node["type"].(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	}
	return nil
}

// parseMoney accepts "$1,200.50", "1200.5 USD", "(25.00)".
func parseMoney(s string) (float64, bool) {
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = reMoneyNoise.ReplaceAllString(s, "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}
