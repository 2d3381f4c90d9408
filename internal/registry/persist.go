package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// storeFile is the on-disk envelope. Scripts is kept as a raw message so
// that key order (the flat display order) survives the round trip; Go maps
// would otherwise serialize sorted.
type storeFile struct {
	Scripts      json.RawMessage     `json:"scripts"`
	Groups       map[string]Group    `json:"groups"`
	ScriptGroups map[string]string   `json:"script_groups"`
	ScriptOrder  map[string][]string `json:"script_order"`
}

// scanKeyOrder returns the keys of a JSON object in document order.
func scanKeyOrder(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// marshalScriptsOrdered writes the scripts map as a JSON object whose keys
// follow the flat display order. Ids missing from the order (should not
// happen, but guard against data loss) are appended sorted.
func marshalScriptsOrdered(order []string, scripts map[string]ScriptConfig) (json.RawMessage, error) {
	seen := make(map[string]bool, len(order))
	ids := make([]string, 0, len(scripts))
	for _, id := range order {
		if _, ok := scripts[id]; ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	var missing []string
	for id := range scripts {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	ids = append(ids, missing...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(scripts[id])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeFileAtomic writes via a temp file and rename so a crash mid-save
// never leaves a truncated store.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func indentJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
