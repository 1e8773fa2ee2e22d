package output

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// JSONFormatter renders reports as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatReport renders a usage report as JSON.
func (f *JSONFormatter) FormatReport(report *Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// YAMLFormatter renders reports as YAML.
type YAMLFormatter struct{}

// FormatReport renders a usage report as YAML.
func (f *YAMLFormatter) FormatReport(report *Report) (string, error) {
	if report == nil {
		return "", nil
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
