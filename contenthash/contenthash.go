// Package contenthash computes content digests used to deduplicate uploads
// and to detect that an identical design record already exists.
package contenthash

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"tshirt-designer/core"
)

// Bytes returns the hex-encoded BLAKE2b-256 digest of data.
func Bytes(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DesignSet returns the digest of the canonical serialization of set.
// Views are visited in core.Views order, so equal content always hashes
// equally regardless of how the set was assembled.
func DesignSet(set core.DesignSet) string {
	return Bytes(Canonical(set))
}

// Canonical serializes the colour and, per view, the image token, position
// and size. An empty view contributes an empty token.
func Canonical(set core.DesignSet) []byte {
	var b strings.Builder
	b.WriteString("color=")
	b.WriteString(set.TshirtColor)
	for _, v := range core.Views {
		b.WriteByte('|')
		b.WriteString(v.String())
		b.WriteByte('=')
		d := set.Designs[v]
		if d == nil {
			continue
		}
		b.WriteString(imageToken(d.Image))
		for _, f := range []float64{d.Position.X, d.Position.Y, d.Size.Width, d.Size.Height} {
			b.WriteByte(',')
			b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
	}
	return []byte(b.String())
}

// imageToken hashes a local reference by its content digest and a durable
// one by its URL. Only the URL of a durable reference is persisted, so a
// set decoded from storage hashes the same as the one that was written.
func imageToken(ref core.ImageRef) string {
	if ref.Local && ref.Digest != "" {
		return "sha:" + ref.Digest
	}
	return "url:" + ref.URL
}
