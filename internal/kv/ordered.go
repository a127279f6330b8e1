package kv

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ordered is a string-keyed map that remembers insertion order and keeps it
// through JSON round trips. The zero value is ready to use.
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

func (o *Ordered[V]) Len() int { return len(o.keys) }

func (o *Ordered[V]) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Set appends key when it is new and replaces the value in place otherwise.
func (o *Ordered[V]) Set(key string, v V) {
	if o.values == nil {
		o.values = make(map[string]V)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Delete removes key and reports whether it was present.
func (o *Ordered[V]) Delete(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// PopFirst removes and returns the oldest entry.
func (o *Ordered[V]) PopFirst() (string, V, bool) {
	var zero V
	if len(o.keys) == 0 {
		return "", zero, false
	}
	k := o.keys[0]
	v := o.values[k]
	o.keys = o.keys[1:]
	delete(o.values, k)
	return k, v, true
}

// Last returns the newest entry.
func (o *Ordered[V]) Last() (string, V, bool) {
	var zero V
	if len(o.keys) == 0 {
		return "", zero, false
	}
	k := o.keys[len(o.keys)-1]
	return k, o.values[k], true
}

// Keys returns a copy of the keys in insertion order.
func (o *Ordered[V]) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Range calls fn for every entry in insertion order until fn returns false.
func (o *Ordered[V]) Range(fn func(key string, v V) bool) {
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

func (o *Ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, fmt.Errorf("kv: marshal %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Ordered[V]) UnmarshalJSON(data []byte) error {
	o.keys = nil
	o.values = make(map[string]V)
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("kv: expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("kv: expected object key, got %v", tok)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("kv: decode %q: %w", key, err)
		}
		o.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
