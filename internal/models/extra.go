package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// declaredKeys caches the lower-cased JSON member names of struct types.
var declaredKeys sync.Map

func jsonKeys(t reflect.Type) map[string]bool {
	if v, ok := declaredKeys.Load(t); ok {
		return v.(map[string]bool)
	}
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[strings.ToLower(name)] = true
	}
	declaredKeys.Store(t, keys)
	return keys
}

// decodeExtra unmarshals data into v, a pointer to a struct, and returns the
// object members v does not declare.
func decodeExtra(data []byte, v any) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	keys := jsonKeys(reflect.TypeOf(v).Elem())
	for k := range all {
		if keys[strings.ToLower(k)] {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeExtra marshals v, a pointer to a struct, and appends the members of
// extra that v does not declare, in key order.
func encodeExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	keys := jsonKeys(reflect.TypeOf(v).Elem())
	names := make([]string, 0, len(extra))
	for k := range extra {
		if !keys[strings.ToLower(k)] {
			names = append(names, k)
		}
	}
	if len(names) == 0 {
		return data, nil
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range names {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if raw := extra[k]; len(raw) > 0 {
			buf.Write(raw)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// joinObjects concatenates the members of two compact JSON objects.
func joinObjects(a, b []byte) []byte {
	if len(b) <= 2 {
		return a
	}
	if len(a) <= 2 {
		return b
	}
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a[:len(a)-1]...)
	out = append(out, ',')
	return append(out, b[1:]...)
}

type taskFields Task

// MarshalJSON writes the declared fields followed by Extra.
func (t Task) MarshalJSON() ([]byte, error) {
	return encodeExtra((*taskFields)(&t), t.Extra)
}

// UnmarshalJSON keeps members the struct does not declare in Extra.
func (t *Task) UnmarshalJSON(data []byte) error {
	var f taskFields
	extra, err := decodeExtra(data, &f)
	if err != nil {
		return err
	}
	*t = Task(f)
	t.Extra = extra
	return nil
}

type stateFields AppState

func (s AppState) MarshalJSON() ([]byte, error) {
	return encodeExtra((*stateFields)(&s), s.Extra)
}

func (s *AppState) UnmarshalJSON(data []byte) error {
	var f stateFields
	extra, err := decodeExtra(data, &f)
	if err != nil {
		return err
	}
	*s = AppState(f)
	s.Extra = extra
	return nil
}

// syncEnvelope holds the members a SyncDocument adds to the state.
type syncEnvelope struct {
	Timestamp time.Time    `json:"timestamp"`
	Version   string       `json:"version"`
	Metadata  SyncMetadata `json:"metadata"`
}

func (d SyncDocument) MarshalJSON() ([]byte, error) {
	state := d.AppState
	if len(state.Extra) > 0 {
		envKeys := jsonKeys(reflect.TypeOf(syncEnvelope{}))
		state.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			if !envKeys[strings.ToLower(k)] {
				state.Extra[k] = v
			}
		}
	}
	body, err := state.MarshalJSON()
	if err != nil {
		return nil, err
	}
	env, err := json.Marshal(syncEnvelope{Timestamp: d.Timestamp, Version: d.Version, Metadata: d.Metadata})
	if err != nil {
		return nil, err
	}
	return joinObjects(body, env), nil
}

func (d *SyncDocument) UnmarshalJSON(data []byte) error {
	var env syncEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	var state AppState
	if err := state.UnmarshalJSON(data); err != nil {
		return err
	}
	for k := range state.Extra {
		if jsonKeys(reflect.TypeOf(env))[strings.ToLower(k)] {
			delete(state.Extra, k)
		}
	}
	if len(state.Extra) == 0 {
		state.Extra = nil
	}
	*d = SyncDocument{AppState: state, Timestamp: env.Timestamp, Version: env.Version, Metadata: env.Metadata}
	return nil
}
