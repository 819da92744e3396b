package format

import (
	"bytes"
	"net/http"
	"path/filepath"
	"strings"
)

// Format identifies an image container.
type Format int

const (
	Unknown Format = iota
	JPEG
	PNG
	GIF
	WebP
	AVIF
	HEIC
	SVG
)

type entry struct {
	mime       string
	name       string
	ext        string
	aliases    []string
	lossy      bool
	palette    bool
	output     bool
	vector     bool
	heif       bool
	deflatable bool
}

var table = map[Format]entry{
	JPEG: {mime: "image/jpeg", name: "jpeg", ext: ".jpg", aliases: []string{"jpg", "image/jpg", ".jpeg"}, lossy: true, output: true},
	PNG:  {mime: "image/png", name: "png", ext: ".png", output: true, deflatable: true},
	GIF:  {mime: "image/gif", name: "gif", ext: ".gif", palette: true, output: true, deflatable: true},
	WebP: {mime: "image/webp", name: "webp", ext: ".webp", lossy: true, output: true},
	AVIF: {mime: "image/avif", name: "avif", ext: ".avif", lossy: true, output: true},
	HEIC: {mime: "image/heic", name: "heic", ext: ".heic", aliases: []string{"heif", "image/heif", ".heif"}, lossy: true, output: true, heif: true},
	SVG:  {mime: "image/svg+xml", name: "svg", ext: ".svg", aliases: []string{"image/svg"}, vector: true, deflatable: true},
}

var ordered = []Format{JPEG, PNG, GIF, WebP, AVIF, HEIC, SVG}

var lookup = func() map[string]Format {
	m := make(map[string]Format, len(table)*4)
	for f, e := range table {
		m[e.mime] = f
		m[e.name] = f
		m[e.ext] = f
		m[strings.TrimPrefix(e.ext, ".")] = f
		for _, alias := range e.aliases {
			m[alias] = f
		}
	}
	return m
}()

// All returns every known format in display order.
func All() []Format {
	out := make([]Format, len(ordered))
	copy(out, ordered)
	return out
}

// Outputs returns the formats a conversion may target.
func Outputs() []Format {
	out := make([]Format, 0, len(ordered))
	for _, f := range ordered {
		if table[f].output {
			out = append(out, f)
		}
	}
	return out
}

// Parse accepts a MIME type ("image/webp"), a short name ("webp", "jpg") or an
// extension (".png").
func Parse(value string) (Format, bool) {
	key := strings.ToLower(strings.TrimSpace(value))
	if key == "" {
		return Unknown, false
	}
	if idx := strings.IndexByte(key, ';'); idx >= 0 {
		key = strings.TrimSpace(key[:idx])
	}
	f, ok := lookup[key]
	return f, ok
}

// ParseOutput is Parse restricted to conversion targets.
func ParseOutput(value string) (Format, bool) {
	f, ok := Parse(value)
	if !ok || !f.IsOutput() {
		return Unknown, false
	}
	return f, true
}

func (f Format) String() string {
	if e, ok := table[f]; ok {
		return e.name
	}
	return "unknown"
}

// MIME returns the canonical MIME type, or "" for Unknown.
func (f Format) MIME() string { return table[f].mime }

// Extension returns the file extension including the dot (".jpg" for JPEG).
func (f Format) Extension() string { return table[f].ext }

// Lossy reports whether encoding takes a quality factor.
func (f Format) Lossy() bool { return table[f].lossy }

// Palette reports whether the format requires color reduction before export.
func (f Format) Palette() bool { return table[f].palette }

// IsOutput reports whether the format may be requested as a target.
func (f Format) IsOutput() bool { return table[f].output }

// IsVector reports whether sources must be rasterized before processing.
func (f Format) IsVector() bool { return table[f].vector }

// IsHEIF reports whether sources need the proprietary decoder.
func (f Format) IsHEIF() bool { return table[f].heif }

// Deflatable reports whether archive entries benefit from deflate.
func (f Format) Deflatable() bool { return table[f].deflatable }

// Known reports whether f is a member of the table.
func (f Format) Known() bool {
	_, ok := table[f]
	return ok
}

// Detect resolves the format of a blob from its declared MIME type, then its
// leading bytes, then its file name. The declared type wins when it names a
// known format, mirroring how uploads are typed by the client.
func Detect(name, declared string, head []byte) Format {
	if f, ok := Parse(declared); ok {
		return f
	}
	if f := Sniff(head); f != Unknown {
		return f
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if f, ok := Parse(ext); ok {
			return f
		}
	}
	return Unknown
}

// Sniff inspects magic numbers.
func Sniff(head []byte) Format {
	switch {
	case len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF:
		return JPEG
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return PNG
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return GIF
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return WebP
	case len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")):
		switch string(head[8:12]) {
		case "avif", "avis":
			return AVIF
		case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
			return HEIC
		}
	}
	if looksLikeSVG(head) {
		return SVG
	}
	if f, ok := Parse(http.DetectContentType(head)); ok {
		return f
	}
	return Unknown
}

func looksLikeSVG(head []byte) bool {
	trimmed := bytes.TrimSpace(head)
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	lower := bytes.ToLower(trimmed)
	if bytes.HasPrefix(lower, []byte("<svg")) {
		return true
	}
	return bytes.HasPrefix(lower, []byte("<?xml")) && bytes.Contains(lower, []byte("<svg"))
}
