package rest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)

// collectionProps are sent wrapped in a verbose OData string collection.
var collectionProps = map[string]bool{"Choices": true}

// entityBody builds a verbose OData entity of type typ from props. Keys are
// written in sorted order so bodies are stable.
func entityBody(typ string, props map[string]any) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "__metadata.type", typ)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := props[k]
		if collectionProps[k] {
			v = collection(v)
		}
		body, err = sjson.SetBytes(body, pathEscaper.Replace(k), v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
	}
	return body, nil
}

// wrapBody nests an entity under a named parameter, as the addfield and
// similar service operations expect.
func wrapBody(param string, entity []byte) ([]byte, error) {
	return sjson.SetRawBytes([]byte(`{}`), param, entity)
}

func collection(v any) map[string]any {
	var items []string
	switch x := v.(type) {
	case []string:
		items = x
	case []any:
		for _, item := range x {
			items = append(items, fmt.Sprint(item))
		}
	}
	if items == nil {
		items = []string{}
	}
	return map[string]any{
		"__metadata": map[string]any{"type": "Collection(Edm.String)"},
		"results":    items,
	}
}

// properties returns every plain property of a verbose OData entity,
// skipping metadata, deferred navigation links and the named keys.
func properties(entity gjson.Result, skip ...string) map[string]any {
	skipped := make(map[string]bool, len(skip)+1)
	skipped["__metadata"] = true
	for _, k := range skip {
		skipped[k] = true
	}

	props := make(map[string]any)
	entity.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if skipped[k] || value.Get("__deferred").Exists() {
			return true
		}
		props[k] = value.Value()
		return true
	})
	return props
}

// results returns the items of a verbose OData collection response.
func results(body []byte) []gjson.Result {
	return gjson.GetBytes(body, "d.results").Array()
}

// entity returns the single entity of a verbose OData response.
func entity(body []byte) gjson.Result {
	return gjson.GetBytes(body, "d")
}
