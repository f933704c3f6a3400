package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"pathology-records-server/internal/docpath"
)

// Keys owned by the store rather than by the document data.
const (
	KeyID        = "id"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
)

var metaKeys = []string{KeyID, KeyCreatedAt, KeyUpdatedAt}

// Converter maps a typed record to and from its stored document form.
//
// Records are encoded through their JSON tags. Values at TimestampPaths are
// stored as time.Time so backends with a native timestamp type keep them as
// timestamps; on the way back any time.Time in the document is rendered as
// RFC 3339 before decoding.
//
// Values at BytesPaths ([]byte fields, base64 in JSON) are stored as raw
// []byte so a backend with a native bytes type does not pay the base64
// overhead against its document size limit.
type Converter[T any] struct {
	TimestampPaths []string
	BytesPaths     []string
}

// ToData encodes v as document data without the store-owned meta keys.
func (c Converter[T]) ToData(v T) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decoding record fields: %w", err)
	}
	for _, k := range metaKeys {
		delete(data, k)
	}

	for _, path := range c.TimestampPaths {
		val, ok := docpath.Get(data, path)
		if !ok || val == nil {
			continue
		}
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("timestamp field %s: unexpected %T", path, val)
		}
		if s == "" {
			docpath.Delete(data, path)
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("timestamp field %s: %w", path, err)
		}
		if err := docpath.Set(data, path, ts.UTC()); err != nil {
			return nil, err
		}
	}

	for _, path := range c.BytesPaths {
		val, ok := docpath.Get(data, path)
		if !ok || val == nil {
			continue
		}
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("bytes field %s: unexpected %T", path, val)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("bytes field %s: %w", path, err)
		}
		if err := docpath.Set(data, path, b); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// FromDocument decodes doc into a T, filling id, createdAt and updatedAt from the document.
func (c Converter[T]) FromDocument(doc *Document) (T, error) {
	var out T
	data, _ := jsonSafe(doc.Data).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	data[KeyID] = doc.ID
	data[KeyCreatedAt] = formatTime(doc.CreatedAt)
	data[KeyUpdatedAt] = formatTime(doc.UpdatedAt)

	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("encoding document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding document %s: %w", doc.ID, err)
	}
	return out, nil
}

// FromDocuments decodes a result set in order.
func (c Converter[T]) FromDocuments(docs []*Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := c.FromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// jsonSafe deep-copies v, rendering time values as RFC 3339 strings.
// []byte values are left for encoding/json, which writes them as base64.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonSafe(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonSafe(e)
		}
		return out
	case time.Time:
		return formatTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return formatTime(*t)
	default:
		return v
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
