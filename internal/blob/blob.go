// Package blob holds binary image content and the explicit ownership records
// for derived resources (previews and converted outputs).
//
// A Handle is the process-local equivalent of an object URL: it is acquired
// for an owner (a queue item id), resolved to bytes while live, and released
// only by an explicit Release call. Nothing is released by
// reachability; a handle that is never released is counted as live and shows
// up in Registry.Live.
package blob

import (
	"strings"

	"pixelbatch/internal/format"
	"pixelbatch/internal/textutil"
)

// File is an immutable named blob with a resolved format.
type File struct {
	Name     string
	Declared string
	Format   format.Format
	Data     []byte
}

// Size returns the content length in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Empty reports whether the file carries no content.
func (f File) Empty() bool { return len(f.Data) == 0 }

// Type returns the effective MIME type.
func (f File) Type() string {
	if mime := f.Format.MIME(); mime != "" {
		return mime
	}
	return f.Declared
}

// WithFormat returns a copy carrying new content, renamed to the format's
// extension.
func (f File) WithFormat(target format.Format, data []byte) File {
	return File{
		Name:     ReplaceExtension(f.Name, target),
		Declared: target.MIME(),
		Format:   target,
		Data:     data,
	}
}

// New detects the format of data and wraps it.
func New(name, declared string, data []byte) File {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return File{
		Name:     name,
		Declared: strings.TrimSpace(declared),
		Format:   format.Detect(name, declared, head),
		Data:     data,
	}
}

// ReplaceExtension swaps the extension of name for the one implied by f. A
// name without an extension gets one appended; a bare extension such as
// ".png" has an empty stem.
func ReplaceExtension(name string, f format.Format) string {
	base, _ := textutil.SplitExt(strings.TrimSpace(name))
	if base == "" {
		base = "image"
	}
	return base + f.Extension()
}
