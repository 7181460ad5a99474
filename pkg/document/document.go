// Package document defines the unit of indexing shared by every search
// strategy, together with the metadata filter applied after matching.
//
// A [SearchableDocument] carries the text that strategies match against,
// scalar metadata used for AND-filtering, and an opaque payload that is handed
// back to the caller untouched when the document matches.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// SearchableDocument is one indexed chunk of text.
type SearchableDocument struct {
	// ChunkID identifies the chunk inside a strategy's index. It is the only
	// key used for replace-on-upsert. Generated when empty.
	ChunkID string `json:"chunk_id"`

	// ParentDocID identifies the owning domain record (message id, file id).
	ParentDocID string `json:"parent_doc_id"`

	// TextContent is the text matched and scored by strategies.
	TextContent string `json:"text_content"`

	// Metadata holds scalar values used by search filters.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Original is returned as-is by Search. Strategies never inspect it.
	Original any `json:"original_json_obj,omitempty"`

	// OriginalHash fingerprints Original for payload de-duplication.
	OriginalHash string `json:"original_json_obj_hash,omitempty"`
}

// Prepare fills in a generated ChunkID and the payload hash when missing and
// copies Metadata so later caller mutations cannot reach into an index.
func (d SearchableDocument) Prepare() SearchableDocument {
	if d.ChunkID == "" {
		d.ChunkID = uuid.NewString()
	}
	if d.OriginalHash == "" {
		d.OriginalHash = PayloadHash(d.Original)
	}
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

// PrepareAll applies Prepare to every document. When the batch repeats a
// ChunkID, only the last occurrence is kept, at the position of the first.
func PrepareAll(docs []SearchableDocument) []SearchableDocument {
	out := make([]SearchableDocument, 0, len(docs))
	pos := make(map[string]int, len(docs))
	for _, d := range docs {
		d = d.Prepare()
		if i, ok := pos[d.ChunkID]; ok {
			out[i] = d
			continue
		}
		pos[d.ChunkID] = len(out)
		out = append(out, d)
	}
	return out
}

// SameContent reports whether two documents would index identically:
// same text and same metadata. Payload changes do not count.
func (d SearchableDocument) SameContent(other SearchableDocument) bool {
	if d.TextContent != other.TextContent || len(d.Metadata) != len(other.Metadata) {
		return false
	}
	for k, v := range d.Metadata {
		ov, ok := other.Metadata[k]
		if !ok || !scalarEqual(v, ov) {
			return false
		}
	}
	return true
}

// PayloadHash returns a stable fingerprint of an arbitrary payload.
// encoding/json sorts map keys, so equal maps hash equally.
func PayloadHash(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChunkIDs returns the chunk ids of docs in order.
func ChunkIDs(docs []SearchableDocument) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ChunkID
	}
	return ids
}

// UniquePayloads returns the Original payloads of docs in order, skipping
// payloads whose hash was already emitted. A limit <= 0 means no limit.
// Documents without a payload hash are never collapsed.
func UniquePayloads(docs []SearchableDocument, limit int) []any {
	out := make([]any, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if limit > 0 && len(out) >= limit {
			break
		}
		h := d.OriginalHash
		if h == "" {
			h = PayloadHash(d.Original)
		}
		if h != "" {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
		}
		out = append(out, d.Original)
	}
	return out
}
