package summarizer

import (
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Formatter renders a Summary as report text.
type Formatter interface {
	Format(summary *Summary) string
}

// FormatFunc adapts a function to Formatter.
type FormatFunc func(summary *Summary) string

func (f FormatFunc) Format(summary *Summary) string {
	return f(summary)
}

// FormatterFor picks the report format from the extension of path: YAML for
// .yaml and .yml, report otherwise.
func FormatterFor(path string, report Formatter) Formatter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatFunc(FormatYAML)
	}
	return report
}

// FormatYAML renders the summary as a YAML document for scripts that
// compare runs.
func FormatYAML(summary *Summary) string {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return "# " + err.Error() + "\n"
	}
	return string(data)
}
