package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"sigs.k8s.io/yaml"
)

// Output formats.
const (
	OutputYAML = "yaml"
	OutputJSON = "json"
)

// stdout receives command output. Replaced in tests.
var stdout io.Writer = os.Stdout

// printValue writes v in the requested format.
func printValue(w io.Writer, v any, format string) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case OutputJSON:
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	case OutputYAML, "":
		data, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, OutputYAML, OutputJSON)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = w.Write(data)
	return err
}
