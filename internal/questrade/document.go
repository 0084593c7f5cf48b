package questrade

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/PaesslerAG/jsonpath"
)

// document is a decoded response body. Numbers stay json.Number so that
// re-encoding a sub-tree does not go through float64.
type document struct {
	op   string
	body []byte
	root any
}

func parseDocument(op string, body []byte) (*document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, malformed(op, "$", body, err)
	}
	return &document{op: op, body: body, root: root}, nil
}

// get evaluates a JSON path. A missing key is a MalformedResponseError.
func (d *document) get(path string) (any, error) {
	v, err := jsonpath.Get(path, d.root)
	if err != nil {
		return nil, malformed(d.op, path, d.body, nil)
	}
	return v, nil
}

// decode evaluates path and decodes the value into out.
func (d *document) decode(path string, out any) error {
	v, err := d.get(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return malformed(d.op, path, d.body, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return malformed(d.op, path, d.body, err)
	}
	return nil
}

// list evaluates path and requires a JSON array whose objects all carry keys.
func (d *document) list(path string, keys ...string) ([]any, error) {
	v, err := d.get(path)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, malformed(d.op, path, d.body, fmt.Errorf("expected array, got %T", v))
	}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(d.op, fmt.Sprintf("%s[%d]", path, i), d.body, fmt.Errorf("expected object, got %T", item))
		}
		for _, k := range keys {
			if _, ok := obj[k]; !ok {
				return nil, malformed(d.op, fmt.Sprintf("%s[%d].%s", path, i, k), d.body, nil)
			}
		}
	}
	return items, nil
}

// toInt64 converts a decoded JSON scalar (number or numeric string) to int64.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
