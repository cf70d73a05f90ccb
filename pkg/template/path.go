package template

import (
	"strconv"
	"strings"
)

type segment struct {
	key     string
	indexes []int
}

// ValueFromPath resolves a dotted path such as "data.items[0].details" against
// context. When a step reaches a string holding encoded JSON, the remaining
// segments are resolved against the decoded value, and a decoded value reached
// on the last segment is returned as is.
func ValueFromPath(context any, path string) (any, bool) {
	return resolve(context, path, true)
}

// resolve walks path. With decodeLast unset a string reached on the final
// segment is returned untouched.
func resolve(context any, path string, decodeLast bool) (any, bool) {
	current := context
	segments := strings.Split(path, ".")

	for i, raw := range segments {
		seg, ok := parseSegment(raw)
		if !ok {
			return nil, false
		}

		current, ok = step(current, seg)
		if !ok {
			return nil, false
		}

		if i == len(segments)-1 && !decodeLast {
			break
		}

		if s, isString := current.(string); isString {
			if decoded, ok := decodeEmbedded(s); ok {
				current = decoded
			}
		}
	}

	return current, true
}

// parseSegment splits "items[2]" into the key "items" and the index 2.
// Chained indexes ("grid[1][0]") are accepted.
func parseSegment(raw string) (segment, bool) {
	bracket := strings.IndexByte(raw, '[')
	if bracket < 0 {
		return segment{key: raw}, true
	}

	seg := segment{key: raw[:bracket]}
	rest := raw[bracket:]

	for rest != "" {
		if rest[0] != '[' {
			return segment{}, false
		}

		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return segment{}, false
		}

		index, err := strconv.Atoi(rest[1:end])
		if err != nil || index < 0 {
			return segment{}, false
		}

		seg.indexes = append(seg.indexes, index)
		rest = rest[end+1:]
	}

	return seg, true
}

func step(current any, seg segment) (any, bool) {
	if seg.key != "" || len(seg.indexes) == 0 {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = object[seg.key]
		if !ok {
			return nil, false
		}
	}

	for _, index := range seg.indexes {
		array, ok := current.([]any)
		if !ok || index >= len(array) {
			return nil, false
		}

		current = array[index]
	}

	return current, true
}

func decodeEmbedded(s string) (any, bool) {
	decoded, err := Decode([]byte(s))
	if err != nil {
		return nil, false
	}

	return decoded, true
}
