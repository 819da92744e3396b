package textutil

import "strconv"

// UniqueNamer hands out names that were not handed out before. A repeated
// name gets "_1", "_2", ... inserted before its extension.
type UniqueNamer struct {
	used map[string]struct{}
}

// NewUniqueNamer returns an empty namer.
func NewUniqueNamer() *UniqueNamer {
	return &UniqueNamer{used: make(map[string]struct{})}
}

// Claim returns name, or the first free suffixed variant of it, and records
// the result as used.
func (u *UniqueNamer) Claim(name string) string {
	if _, taken := u.used[name]; !taken {
		u.used[name] = struct{}{}
		return name
	}
	stem, ext := SplitExt(name)
	for n := 1; ; n++ {
		candidate := stem + "_" + strconv.Itoa(n) + ext
		if _, taken := u.used[candidate]; !taken {
			u.used[candidate] = struct{}{}
			return candidate
		}
	}
}

// Len returns how many names were claimed.
func (u *UniqueNamer) Len() int { return len(u.used) }
