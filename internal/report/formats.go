package report

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Formats lists the supported export formats
var Formats = []string{"csv", "parquet", "yaml"}

// Meta identifies the session an export was produced from
type Meta struct {
	Annotator     string    `yaml:"annotator"`
	RootDirectory string    `yaml:"root_directory"`
	GeneratedAt   time.Time `yaml:"generated_at"`
}

type yamlReport struct {
	Session Meta    `yaml:"session"`
	Summary Summary `yaml:"summary"`
	Rows    []Row   `yaml:"rows"`
}

// WriteParquet writes rows as a single Parquet file
func WriteParquet(w io.Writer, rows []Row) error {
	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// WriteYAML writes the session metadata, the summary and the rows
func WriteYAML(w io.Writer, meta Meta, summary Summary, rows []Row) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(yamlReport{Session: meta, Summary: summary, Rows: rows}); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return encoder.Close()
}

// Render produces an export in the named format
func Render(format string, meta Meta, summary Summary, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case "csv":
		err = WriteCSV(&buf, rows)
	case "parquet":
		err = WriteParquet(&buf, rows)
	case "yaml":
		err = WriteYAML(&buf, meta, summary, rows)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type for an export format
func ContentType(format string) string {
	switch format {
	case "parquet":
		return "application/vnd.apache.parquet"
	case "yaml":
		return "application/yaml"
	default:
		return "text/csv"
	}
}
