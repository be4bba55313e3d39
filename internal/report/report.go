// Package report flattens final responses into one row per target for CSV,
// Parquet and YAML output.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

// Header lists the tabular columns in output order
var Header = []string{
	"bbox_file",
	"crop_file",
	"source_folder",
	"label_initial",
	"label_choisi",
	"status",
	"commentaire",
	"annotated",
}

// Row is one exported target
type Row struct {
	BBoxFile     string `json:"bbox_file" yaml:"bbox_file" parquet:"bbox_file"`
	CropFile     string `json:"crop_file" yaml:"crop_file" parquet:"crop_file"`
	SourceFolder string `json:"source_folder" yaml:"source_folder" parquet:"source_folder"`
	LabelInitial string `json:"label_initial" yaml:"label_initial" parquet:"label_initial"`
	LabelChoisi  string `json:"label_choisi" yaml:"label_choisi" parquet:"label_choisi"`
	Status       string `json:"status" yaml:"status" parquet:"status"`
	Commentaire  string `json:"commentaire" yaml:"commentaire" parquet:"commentaire"`
	Annotated    bool   `json:"annotated" yaml:"annotated" parquet:"annotated"`
}

func (r Row) record() []string {
	return []string{
		r.BBoxFile,
		r.CropFile,
		r.SourceFolder,
		r.LabelInitial,
		r.LabelChoisi,
		r.Status,
		r.Commentaire,
		strconv.FormatBool(r.Annotated),
	}
}

// Rows returns exactly one row per target, in target order
func Rows(targets []models.Target, responses map[int]models.Response) []Row {
	rows := make([]Row, 0, len(targets))
	for i, t := range targets {
		r := responses[i]

		row := Row{
			BBoxFile:     t.BBoxFile(),
			CropFile:     t.CropFile(),
			SourceFolder: t.Folder,
			LabelInitial: t.LabelInitial,
			Status:       r.Status.String(),
			Commentaire:  r.Comment,
			Annotated:    r.Annotated(),
		}
		switch r.Status {
		case models.StatusIgnored:
			row.LabelChoisi = models.IgnoredLabel
		case models.StatusAnnotated:
			row.LabelChoisi = r.Label
		}

		rows = append(rows, row)
	}
	return rows
}

// Summary aggregates the counters sent with the completion notice
type Summary struct {
	Total     int            `json:"total" yaml:"total"`
	Annotated int            `json:"annotated" yaml:"annotated"`
	Ignored   int            `json:"ignored" yaml:"ignored"`
	Pending   int            `json:"pending" yaml:"pending"`
	ByLabel   map[string]int `json:"by_label" yaml:"by_label"`
	// Confirmed counts annotated targets whose label matches the folder they came from
	Confirmed int `json:"confirmed" yaml:"confirmed"`
	Relabeled int `json:"relabeled" yaml:"relabeled"`
}

// AgreementRate returns the share of annotated targets that kept their folder label
func (s Summary) AgreementRate() float64 {
	if s.Annotated == 0 {
		return 0
	}
	return float64(s.Confirmed) / float64(s.Annotated)
}

// Labels returns the labels of ByLabel in sorted order
func (s Summary) Labels() []string {
	labels := make([]string, 0, len(s.ByLabel))
	for label := range s.ByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Summarize counts statuses and label choices over the target list
func Summarize(targets []models.Target, responses map[int]models.Response) Summary {
	summary := Summary{Total: len(targets), ByLabel: make(map[string]int)}
	for i, t := range targets {
		r := responses[i]
		switch r.Status {
		case models.StatusAnnotated:
			summary.Annotated++
			summary.ByLabel[r.Label]++
			if models.NormalizeLabel(r.Label) == models.NormalizeLabel(t.LabelInitial) {
				summary.Confirmed++
			} else {
				summary.Relabeled++
			}
		case models.StatusIgnored:
			summary.Ignored++
		default:
			summary.Pending++
		}
	}
	return summary
}

// WriteCSV writes the header and one record per row
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.record()); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// FileName builds the export file name for an annotator at a point in time
func FileName(annotator string, at time.Time, ext string) string {
	key, err := storage.Key(annotator)
	if err != nil {
		key = "anonymous"
	}
	return fmt.Sprintf("annotations_%s_%s.%s", key, at.Format("20060102_150405"), strings.TrimPrefix(ext, "."))
}
