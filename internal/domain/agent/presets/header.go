package presets

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// isoTime renders t the way the prompts carry timestamps.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// frontMatter renders v as a YAML block fenced by "---" lines.
func frontMatter(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		// Header structs are plain strings and ints.
		panic(fmt.Sprintf("presets: marshal header: %v", err))
	}
	return "---\n" + strings.TrimRight(string(data), "\n") + "\n---"
}

func quote(s string) string {
	return "`" + s + "`"
}
