package output

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the timestamp part of request directory names.
const TimestampLayout = "20060102_150405"

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	underscores = regexp.MustCompile(`_+`)
)

// ShortHash returns the first 8 hex digits of the SHA-1 of key.
func ShortHash(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:8]
}

// DirName builds <tag>_<timestamp>_<hash>.
func DirName(tag, filterKey string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", tag, now.Format(TimestampLayout), ShortHash(filterKey))
}

// NewRequestDir creates the directory for one request under base.
func NewRequestDir(base, tag, filterKey string) (string, error) {
	dir := filepath.Join(base, DirName(tag, filterKey, time.Now()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// Truncate cuts tag to at most maxLen bytes on a rune boundary, returning
// def when the result is empty.
func Truncate(tag string, maxLen int, def string) string {
	if len(tag) > maxLen {
		tag = tag[:maxLen]
		for len(tag) > 0 && !utf8.ValidString(tag) {
			tag = tag[:len(tag)-1]
		}
	}
	if tag == "" {
		return def
	}
	return tag
}

// SafeBasename turns arbitrary text into a short filename stem.
func SafeBasename(text string, maxLen int, def string) string {
	r := strings.NewReplacer("/", "_", `\`, "_", " ", "_")
	text = r.Replace(text)
	text = unsafeChars.ReplaceAllString(text, "_")
	text = underscores.ReplaceAllString(text, "_")
	text = strings.Trim(text, "_")
	return Truncate(text, maxLen, def)
}

// FilterKey renders v as JSON with sorted map keys for hashing.
func FilterKey(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// FormatFloat renders a float the way it reads in a filter, keeping a
// trailing ".0" on integral values so 1 and 1.5 stay distinguishable in tags.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// Range renders an optional [min, max] pair as "min-max" with blank open ends.
func Range(min, max *float64) string {
	var lo, hi string
	if min != nil && *min != 0 {
		lo = FormatFloat(*min)
	}
	if max != nil && *max != 0 {
		hi = FormatFloat(*max)
	}
	return lo + "-" + hi
}
