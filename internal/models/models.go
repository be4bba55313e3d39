package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

// FormatVersion is written into every persisted session document.
const FormatVersion = "2.0"

// IgnoredLabel is the label exported for targets that fit no class.
const IgnoredLabel = "IGNORED"

// Target is one bbox/crop image pair found by the scanner
type Target struct {
	BaseName     string `json:"base_name"`
	Folder       string `json:"folder"`
	LabelInitial string `json:"label_initial"`
	BBoxPath     string `json:"bbox_path"`
	CropPath     string `json:"crop_path"`
}

// BBoxFile returns the file name of the bounding-box image
func (t Target) BBoxFile() string {
	return filepath.Base(t.BBoxPath)
}

// CropFile returns the file name of the cropped image
func (t Target) CropFile() string {
	return filepath.Base(t.CropPath)
}

// Key identifies a target by content rather than by position, so responses
// can follow their target when the scan order shifts.
func (t Target) Key() string {
	sum := sha256.Sum256([]byte(t.Folder + "/" + t.BaseName))
	return hex.EncodeToString(sum[:8])
}

// Status is the per-target annotation state
type Status int

const (
	StatusPending Status = iota
	StatusAnnotated
	StatusIgnored
)

func (s Status) String() string {
	switch s {
	case StatusAnnotated:
		return "Annotated"
	case StatusIgnored:
		return "Ignored"
	default:
		return "Not annotated"
	}
}

// Response is the mutable annotation outcome attached to a target.
// Label is only meaningful while Status is StatusAnnotated.
type Response struct {
	Status    Status
	Label     string
	Comment   string
	TargetKey string
}

// DefaultResponse returns a pending response bound to the given target key
func DefaultResponse(targetKey string) Response {
	return Response{Status: StatusPending, TargetKey: targetKey}
}

// Annotate returns a copy of r marked as annotated with label
func (r Response) Annotate(label string) Response {
	r.Status = StatusAnnotated
	r.Label = label
	return r
}

// Ignore returns a copy of r marked as ignored; any label is cleared
func (r Response) Ignore() Response {
	r.Status = StatusIgnored
	r.Label = ""
	return r
}

// Unignore returns r to pending when it was ignored. A previous label is not restored.
func (r Response) Unignore() Response {
	if r.Status == StatusIgnored {
		r.Status = StatusPending
		r.Label = ""
	}
	return r
}

// Annotated reports whether a label was chosen and confirmed
func (r Response) Annotated() bool { return r.Status == StatusAnnotated }

// Ignored reports whether the target was marked as fitting no class
func (r Response) Ignored() bool { return r.Status == StatusIgnored }

// Pending reports whether the target has not been resolved yet
func (r Response) Pending() bool { return r.Status == StatusPending }

// responseDoc is the on-disk shape, kept compatible with documents written
// before the ignored flag existed.
type responseDoc struct {
	LabelChoisi *string `json:"label_choisi"`
	Commentaire string  `json:"commentaire"`
	Annotated   bool    `json:"annotated"`
	Ignored     bool    `json:"ignored"`
	TargetKey   string  `json:"target_key,omitempty"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	doc := responseDoc{
		Commentaire: r.Comment,
		Annotated:   r.Status == StatusAnnotated,
		Ignored:     r.Status == StatusIgnored,
		TargetKey:   r.TargetKey,
	}
	if r.Status == StatusAnnotated {
		label := r.Label
		doc.LabelChoisi = &label
	}
	return json.Marshal(doc)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var doc responseDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	resp := Response{Comment: doc.Commentaire, TargetKey: doc.TargetKey}
	switch {
	case doc.Ignored:
		resp.Status = StatusIgnored
	case doc.Annotated && doc.LabelChoisi != nil && *doc.LabelChoisi != "":
		resp.Status = StatusAnnotated
		resp.Label = *doc.LabelChoisi
	default:
		resp.Status = StatusPending
	}

	*r = resp
	return nil
}

// Session is the persisted state of one annotator's run over an ordered target list
type Session struct {
	Annotator     string           `json:"annotator"`
	RootDirectory string           `json:"root_directory"`
	CurrentIndex  int              `json:"current_index"`
	Responses     map[int]Response `json:"responses"`
	TotalImages   int              `json:"total_images"`
	Timestamp     time.Time        `json:"timestamp"`
	Version       string           `json:"version"`
}

// timestampLayouts are tried in order when decoding a saved timestamp. Older
// documents carry a local time without a zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads a saved timestamp; an unrecognized value yields the zero time
func ParseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	doc := struct {
		*plain
		Timestamp *string `json:"timestamp"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.Timestamp = time.Time{}
	if doc.Timestamp != nil {
		s.Timestamp = ParseTimestamp(*doc.Timestamp)
	}
	return nil
}

// NewSession creates a fresh session with a pending response for every target
func NewSession(annotator, root string, targets []Target) *Session {
	responses := make(map[int]Response, len(targets))
	for i, t := range targets {
		responses[i] = DefaultResponse(t.Key())
	}

	return &Session{
		Annotator:     annotator,
		RootDirectory: root,
		CurrentIndex:  0,
		Responses:     responses,
		TotalImages:   len(targets),
		Timestamp:     time.Now(),
		Version:       FormatVersion,
	}
}

// Complete reports whether the cursor has passed every target
func (s *Session) Complete() bool {
	return s.CurrentIndex >= s.TotalImages
}

// NormalizeLabel folds a folder or class name so that "jointouvert",
// "Joint_Ouvert" and "joint-ouvert" compare equal.
func NormalizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch r {
		case '_', '-', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
