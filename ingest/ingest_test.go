package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"tshirt-designer/core"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() failed: %v", err)
	}
	return buf.Bytes()
}

func TestIngest_DownscalesLargeImage(t *testing.T) {
	refs := NewLocalRefs()
	in := New(refs)

	out, err := in.Ingest(context.Background(), File{Name: "big.png", MIMEType: "image/png", Data: pngBytes(t, 1600, 1200)})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if out.Width != 800 || out.Height != 600 {
		t.Errorf("Ingest() size: got %dx%d, want 800x600", out.Width, out.Height)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out.Asset.Data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("encoded size: got %dx%d, want 800x600", b.Dx(), b.Dy())
	}
	if out.Asset.MIMEType != OutputMIMEType {
		t.Errorf("MIME type: got %q, want %q", out.Asset.MIMEType, OutputMIMEType)
	}
}

func TestIngest_TallImageKeepsAspect(t *testing.T) {
	in := New(NewLocalRefs())

	out, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: pngBytes(t, 500, 1000)})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	if out.Width != 400 || out.Height != 800 {
		t.Errorf("Ingest() size: got %dx%d, want 400x800", out.Width, out.Height)
	}
}

func TestIngest_NeverUpscales(t *testing.T) {
	in := New(NewLocalRefs())

	out, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: pngBytes(t, 120, 60)})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	if out.Width != 120 || out.Height != 60 {
		t.Errorf("Ingest() size: got %dx%d, want 120x60", out.Width, out.Height)
	}
}

func TestIngest_RegistersLocalRef(t *testing.T) {
	refs := NewLocalRefs()
	in := New(refs)

	out, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: pngBytes(t, 10, 10)})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if !out.Ref.Local || !strings.HasPrefix(out.Ref.URL, core.LocalRefScheme) {
		t.Errorf("Ingest() ref is not local: %+v", out.Ref)
	}
	if out.Ref.Digest == "" || out.Ref.Digest != out.Asset.Digest {
		t.Errorf("digest mismatch: ref %q, asset %q", out.Ref.Digest, out.Asset.Digest)
	}

	data, mimeType, ok := refs.Resolve(out.Ref.URL)
	if !ok {
		t.Fatal("Resolve() did not find the new reference")
	}
	if !bytes.Equal(data, out.Asset.Data) || mimeType != OutputMIMEType {
		t.Error("Resolve() returned different bytes than the asset")
	}

	refs.Release(out.Ref.URL)
	if refs.Len() != 0 {
		t.Errorf("Len() after Release: got %d, want 0", refs.Len())
	}
}

func TestIngest_IdenticalInputIdenticalDigest(t *testing.T) {
	in := New(NewLocalRefs())
	data := pngBytes(t, 64, 64)

	a, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	b, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}

	if a.Asset.Digest != b.Asset.Digest {
		t.Error("identical files produced different digests")
	}
	if a.Ref.URL == b.Ref.URL {
		t.Error("identical files share a local reference")
	}
}

func TestIngest_RejectsNonImageMIME(t *testing.T) {
	refs := NewLocalRefs()
	in := New(refs)

	_, err := in.Ingest(context.Background(), File{MIMEType: "text/plain", Data: pngBytes(t, 4, 4)})
	if !errors.Is(err, core.ErrUnsupportedMedia) {
		t.Errorf("Ingest() error: got %v, want UnsupportedMedia", err)
	}
	if refs.Len() != 0 {
		t.Error("a failed ingest registered a local reference")
	}
}

func TestIngest_RejectsSniffedNonImage(t *testing.T) {
	in := New(NewLocalRefs())

	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
	_, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: pdf})
	if !errors.Is(err, core.ErrUnsupportedMedia) {
		t.Errorf("Ingest() error: got %v, want UnsupportedMedia", err)
	}
}

func TestIngest_UndecodableImage(t *testing.T) {
	refs := NewLocalRefs()
	in := New(refs)

	_, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: []byte("definitely not pixels")})
	if !errors.Is(err, core.ErrInvalidImage) {
		t.Errorf("Ingest() error: got %v, want InvalidImage", err)
	}
	if refs.Len() != 0 {
		t.Error("a failed ingest registered a local reference")
	}
}

func TestIngest_Options(t *testing.T) {
	in := New(NewLocalRefs(), WithMaxDimension(100), WithQuality(50))

	out, err := in.Ingest(context.Background(), File{MIMEType: "image/png", Data: pngBytes(t, 400, 200)})
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	if out.Width != 100 || out.Height != 50 {
		t.Errorf("Ingest() size: got %dx%d, want 100x50", out.Width, out.Height)
	}
}

func TestScaledSize(t *testing.T) {
	cases := []struct {
		w, h, wantW, wantH int
	}{
		{800, 800, 800, 800},
		{801, 400, 800, 400},
		{1600, 1200, 800, 600},
		{1200, 1600, 600, 800},
		{10000, 1, 800, 1},
		{300, 200, 300, 200},
	}
	for _, c := range cases {
		w, h := ScaledSize(c.w, c.h, 800)
		if w != c.wantW || h != c.wantH {
			t.Errorf("ScaledSize(%d, %d) = %dx%d, want %dx%d", c.w, c.h, w, h, c.wantW, c.wantH)
		}
	}
}

func TestLocalRefs_ReleaseDurableIsNoop(t *testing.T) {
	refs := NewLocalRefs()
	ref := refs.Create([]byte("x"), "image/jpeg")

	refs.Release("https://cdn.example/x.jpg")
	refs.Release(core.LocalRefScheme + "unknown")

	if _, _, ok := refs.Resolve(ref); !ok {
		t.Error("unrelated Release() dropped a live reference")
	}
}
