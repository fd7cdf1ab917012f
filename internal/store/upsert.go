package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"oshirase/internal/services"
)

// fanOut runs write for every document with at most limit in flight. The first
// error cancels the remaining writes.
func fanOut(ctx context.Context, docs []Document, limit int, write func(context.Context, Document) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return write(gctx, doc)
		})
	}
	return g.Wait()
}

func validateWrite(collection, idKey string) error {
	if collection == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert", "collection name is required", nil)
	}
	if idKey == "" {
		return services.Wrap(services.ErrValidation, "store", "upsert", "identity key is required", nil)
	}
	return nil
}

// jsonDocument is a document flattened into a JSON object with the store
// bookkeeping fields merged in.
type jsonDocument struct {
	id   string
	hash string
	body []byte
}

func encodeJSON(doc Document, idKey string, modified time.Time) (jsonDocument, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return jsonDocument{}, fmt.Errorf("marshal document: %w", err)
	}
	fields := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return jsonDocument{}, fmt.Errorf("decode document fields: %w", err)
	}
	idValue, ok := fields[idKey]
	if !ok || idValue == nil {
		return jsonDocument{}, fmt.Errorf("%w: %s", ErrMissingID, idKey)
	}
	hash := doc.ContentHash()
	fields[FieldHash] = hash
	fields[FieldModified] = modified.UTC().Format(time.RFC3339Nano)
	body, err := json.Marshal(fields)
	if err != nil {
		return jsonDocument{}, fmt.Errorf("marshal document body: %w", err)
	}
	return jsonDocument{id: idString(idValue), hash: hash, body: body}, nil
}

func idString(v any) string {
	switch value := v.(type) {
	case json.Number:
		return value.String()
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}
