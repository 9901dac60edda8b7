package models

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"
)

// taskIDTimeLayout is the timestamp prefix of a task id / directory name.
const taskIDTimeLayout = "2006-01-02_15-04-05"

// NewTaskID builds a task id from a creation time and the source media
// filename, e.g. "2025-08-25_14-03-07_holiday_video". The id is also the
// task's directory name under the tasks root.
func NewTaskID(t time.Time, sourceName string) string {
	return t.Format(taskIDTimeLayout) + "_" + SanitizeBaseName(sourceName)
}

// SanitizeBaseName strips the extension from a filename and replaces every
// character that is unsafe in a directory name or artifact prefix.
func SanitizeBaseName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "media"
	}
	return b.String()
}

// ValidTaskID reports whether id looks like a NewTaskID result and contains
// no path separators. Used to reject traversal attempts at the boundary.
func ValidTaskID(id string) bool {
	if len(id) < len(taskIDTimeLayout)+2 {
		return false
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return false
	}
	_, err := time.Parse(taskIDTimeLayout, id[:len(taskIDTimeLayout)])
	return err == nil && id[len(taskIDTimeLayout)] == '_'
}

// ValidateLang checks a language code: either the auto sentinel or a
// parseable BCP-47 tag such as "en", "zh", "pt-BR".
func ValidateLang(code string) error {
	if code == "" {
		return ErrInvalidLanguage
	}
	if code == LangAuto {
		return nil
	}
	if _, err := language.Parse(code); err != nil {
		return Errorf(KindInvalidRequest, "invalid language code %q: %v", code, err)
	}
	return nil
}
