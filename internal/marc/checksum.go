package marc

import (
	"fmt"

	"github.com/openbiblio/zotero-harvester/internal/hash/sha256"
)

// BookkeepingTags are excluded from the content checksum so that re-harvests
// of unchanged content hash identically: 001 embeds the previous hash and
// URL/ZID/JOU only describe provenance.
var BookkeepingTags = map[string]bool{
	"001": true,
	"URL": true,
	"ZID": true,
	"JOU": true,
}

// Checksum hashes every field except the excluded tags, in record order,
// using the wire-format rendering of each field.
func Checksum(r *Record, exclude map[string]bool) (string, error) {
	var buf []byte
	for i := range r.fields {
		f := &r.fields[i]
		if exclude[f.Tag] {
			continue
		}
		buf = append(buf, f.Tag...)
		buf = append(buf, f.contents()...)
		buf = append(buf, fieldTerminator)
	}
	digest, err := sha256.New().Hash(buf)
	if err != nil {
		return "", fmt.Errorf("hash record: %w", err)
	}
	return digest, nil
}
