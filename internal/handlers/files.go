package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/preview"
	"github.com/lehigh-university-libraries/annotator/internal/report"
	"github.com/lehigh-university-libraries/annotator/internal/session"
)

// HandleReport downloads the annotations. A finished session returns the
// exact CSV that was delivered.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if !slices.Contains(report.Formats, format) {
		h.writeError(w, fmt.Sprintf("Unsupported format %q", format), http.StatusBadRequest)
		return
	}

	h.withRunner(w, r, func(runner *session.Runner) {
		var (
			data []byte
			name string
			err  error
		)
		if o := runner.Outcome(); o != nil && format == "csv" {
			data, name = o.Report, o.ReportName
		} else {
			data, err = runner.Export(format)
			if err != nil {
				h.writeFailure(w, err)
				return
			}
			name = report.FileName(runner.Session().Annotator, time.Now(), format)
		}

		w.Header().Set("Content-Type", report.ContentType(format))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	})
}

// HandleTargetImage serves the bbox or crop image of a target, optionally
// enlarged (?zoom=2) or bounded (?max=800).
func (h *Handler) HandleTargetImage(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil {
		h.writeError(w, "Invalid target index", http.StatusBadRequest)
		return
	}
	kind := r.PathValue("kind")
	if kind != "bbox" && kind != "crop" {
		h.writeError(w, "Image kind must be bbox or crop", http.StatusBadRequest)
		return
	}

	var zoom float64
	if v := r.URL.Query().Get("zoom"); v != "" {
		if zoom, err = strconv.ParseFloat(v, 64); err != nil || zoom <= 0 {
			h.writeError(w, "Invalid zoom", http.StatusBadRequest)
			return
		}
	}
	var maxDim int
	if v := r.URL.Query().Get("max"); v != "" {
		if maxDim, err = strconv.Atoi(v); err != nil || maxDim <= 0 {
			h.writeError(w, "Invalid max", http.StatusBadRequest)
			return
		}
	}

	var path string
	h.withRunner(w, r, func(runner *session.Runner) {
		targets := runner.Targets()
		if idx < 0 || idx >= len(targets) {
			h.writeFailure(w, fmt.Errorf("%w: %d", session.ErrOutOfRange, idx))
			return
		}
		path = targets[idx].CropPath
		if kind == "bbox" {
			path = targets[idx].BBoxPath
		}
	})
	if path == "" {
		return
	}

	if zoom <= 1 && maxDim == 0 {
		w.Header().Set("Content-Type", preview.ContentType(path))
		http.ServeFile(w, r, path)
		return
	}

	img, err := preview.Zoom(path, zoom)
	if err != nil {
		h.writeError(w, "Failed to render image: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if maxDim > 0 {
		img = preview.Bound(img, maxDim)
	}

	var buf bytes.Buffer
	if err := preview.Encode(&buf, img, path); err != nil {
		h.writeError(w, "Failed to encode image: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", preview.ContentType(path))
	_, _ = w.Write(buf.Bytes())
}
