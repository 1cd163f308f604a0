package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DocHash content-addresses a document's review-relevant inputs. The hash is
// computed over canonical JSON (sorted keys, no whitespace) so logically
// identical inputs always map to the same key.
func DocHash(sourceType, text string, ingestionMetadata map[string]any) (string, error) {
	canonical, err := json.Marshal(map[string]any{
		"ingestion_metadata": ingestionMetadata,
		"source_type":        sourceType,
		"text":               text,
	})
	if err != nil {
		return "", fmt.Errorf("canonicalizing document inputs: %w", err)
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

// Key derives the pipeline cache key. Both the prompt revision and the chunk
// schema version participate so prompt or chunker changes invalidate cached
// results.
func Key(docHash, promptRev, chunkSchemaVersion string) string {
	return "review:" + docHash + ":" + promptRev + ":" + chunkSchemaVersion
}
