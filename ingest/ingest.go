// Package ingest turns user-supplied image files into compact JPEGs that are
// cheap to display and upload.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/anthonynsimon/bild/transform"
	"github.com/h2non/filetype"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"tshirt-designer/contenthash"
	"tshirt-designer/core"
)

const (
	// MaxDimension caps the larger side of an ingested image.
	MaxDimension = 800
	// Quality is the JPEG quality of re-encoded images.
	Quality = 80
	// OutputMIMEType is the type of every re-encoded image.
	OutputMIMEType = "image/jpeg"
)

type (
	// File is an uploaded file as received from the user.
	File struct {
		Name     string
		MIMEType string
		Data     []byte
	}

	// CompactImage is the result of ingestion: a transient local reference
	// for immediate display and the re-encoded bytes for later upload.
	CompactImage struct {
		Ref    core.ImageRef
		Asset  *core.Asset
		Width  int
		Height int
	}

	Ingester struct {
		refs         *LocalRefs
		maxDimension int
		quality      int
	}

	Option func(*Ingester)
)

// WithMaxDimension overrides MaxDimension.
func WithMaxDimension(px int) Option {
	return func(in *Ingester) { in.maxDimension = px }
}

// WithQuality overrides Quality.
func WithQuality(q int) Option {
	return func(in *Ingester) { in.quality = q }
}

func New(refs *LocalRefs, opts ...Option) *Ingester {
	in := &Ingester{refs: refs, maxDimension: MaxDimension, quality: Quality}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Refs returns the registry backing the local references this ingester issues.
func (in *Ingester) Refs() *LocalRefs {
	return in.refs
}

// Ingest decodes f, downsamples it so neither side exceeds the configured cap
// and re-encodes it as JPEG. Nothing is registered unless every step succeeds.
func (in *Ingester) Ingest(ctx context.Context, f File) (*CompactImage, error) {
	const op = "ingest"
	log := logrus.WithFields(logrus.Fields{"file": f.Name, "mime_type": f.MIMEType, "size": len(f.Data)})

	if err := checkMedia(f); err != nil {
		log.WithError(err).Warn("Rejected upload")
		return nil, core.E(core.UnsupportedMedia, op, err)
	}

	src, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		log.WithError(err).Warn("Failed to decode image")
		return nil, core.E(core.InvalidImage, op, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), in.maxDimension)
	if w == 0 || h == 0 {
		return nil, core.E(core.InvalidImage, op, errors.New("image has no pixels"))
	}

	var out image.Image = src
	if w != b.Dx() || h != b.Dy() {
		out = transform.Resize(src, w, h, transform.Linear)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(out), &jpeg.Options{Quality: in.quality}); err != nil {
		log.WithError(err).Error("Failed to encode image")
		return nil, core.E(core.InvalidImage, op, err)
	}

	data := buf.Bytes()
	digest := contenthash.Bytes(data)
	ref := in.refs.Create(data, OutputMIMEType)

	log.WithFields(logrus.Fields{
		"format":  format,
		"width":   w,
		"height":  h,
		"encoded": len(data),
	}).Info("Image ingested successfully")

	return &CompactImage{
		Ref:    core.ImageRef{URL: ref, Local: true, Digest: digest},
		Asset:  &core.Asset{Data: data, MIMEType: OutputMIMEType, Digest: digest},
		Width:  w,
		Height: h,
	}, nil
}

// checkMedia requires a declared image type and, when the content is
// recognisable, a sniffed image type as well.
func checkMedia(f File) error {
	if !strings.HasPrefix(strings.ToLower(f.MIMEType), "image/") {
		return fmt.Errorf("declared type %q is not an image", f.MIMEType)
	}
	kind, err := filetype.Match(f.Data)
	if err == nil && kind != filetype.Unknown && !filetype.IsImage(f.Data) {
		return fmt.Errorf("content is %s, not an image", kind.MIME.Value)
	}
	return nil
}

// ScaledSize returns w x h scaled down so that the larger side equals limit,
// preserving the aspect ratio. Images within the cap are returned unchanged.
func ScaledSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, atLeastOne((h*limit + w/2) / w)
	}
	return atLeastOne((w*limit + h/2) / h), limit
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// flatten composites img over white; JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
