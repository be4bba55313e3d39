package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/annotator/internal/annotation"
	"github.com/lehigh-university-libraries/annotator/internal/history"
	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/notify"
	"github.com/lehigh-university-libraries/annotator/internal/scanner"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

type countingStore struct {
	*storage.FileStore
	saves int
}

func (c *countingStore) Save(s *models.Session) error {
	c.saves++
	return c.FileStore.Save(s)
}

type fakeNotifier struct {
	calls   int
	err     error
	reports []notify.Report
}

func (f *fakeNotifier) Notify(ctx context.Context, r notify.Report) error {
	f.calls++
	f.reports = append(f.reports, r)
	return f.err
}

type fakeRecorder struct {
	entries []history.Entry
}

func (f *fakeRecorder) Record(ctx context.Context, e history.Entry) (int64, error) {
	f.entries = append(f.entries, e)
	return int64(len(f.entries)), nil
}

func makeTree(t *testing.T, root string, pairs map[string][]string) {
	t.Helper()
	for folder, bases := range pairs {
		dir := filepath.Join(root, folder)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		for _, base := range bases {
			for _, suffix := range []string{"_bbox.png", "_crop.png"} {
				if err := os.WriteFile(filepath.Join(dir, base+suffix), []byte("img"), 0644); err != nil {
					t.Fatalf("Failed to create test file: %v", err)
				}
			}
		}
	}
}

func testDeps(t *testing.T) (Deps, *countingStore, *fakeNotifier) {
	t.Helper()
	store := &countingStore{FileStore: storage.New(t.TempDir())}
	notifier := &fakeNotifier{}
	return Deps{
		Store:         store,
		Notifier:      notifier,
		Classes:       annotation.DefaultClasses,
		AutoSave:      true,
		AutoSaveEvery: 5,
	}, store, notifier
}

func TestStartRejectsDuplicate(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a"}})
	deps, _, _ := testDeps(t)

	if _, err := Start(deps, "Ana Li", root); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// "Ana_Li" normalizes to the same store key as "Ana Li"
	for _, name := range []string{"Ana Li", "Ana_Li"} {
		_, err := Start(deps, name, root)
		if !errors.Is(err, ErrSessionExists) {
			t.Errorf("%s: expected ErrSessionExists, got %v", name, err)
		}
	}

	s, err := deps.Store.Load("Ana Li")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Annotator != "Ana Li" {
		t.Errorf("rejected start must not overwrite the saved session, got %s", s.Annotator)
	}
}

func TestStartReplacesCorruptDocument(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a"}})
	deps, store, _ := testDeps(t)

	path, _ := store.Path("Ana")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	if _, err := Resume(deps, "Ana"); !errors.Is(err, storage.ErrCorrupt) {
		t.Fatalf("Expected ErrCorrupt, got %v", err)
	}

	if _, err := Start(deps, "Ana", root); err != nil {
		t.Fatalf("Start over a corrupt document failed: %v", err)
	}
	if _, err := deps.Store.Load("Ana"); err != nil {
		t.Errorf("Expected a readable document, got %v", err)
	}
}

func TestStartKeepsLegacyDocument(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b"}})
	deps, store, _ := testDeps(t)

	path, _ := store.Path("Ana")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	legacy := `{"annotator": "Ana", "root_directory": "` + root + `", "current_index": 1,
  "responses": {"0": {"label_choisi": "fissure", "commentaire": "", "annotated": true},
                "1": {"label_choisi": null, "commentaire": "", "annotated": false}},
  "total_images": 2, "timestamp": "2025-11-03T10:00:00.123456", "version": "1.0"}`
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if _, err := Start(deps, "Ana", root); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("Expected ErrSessionExists, got %v", err)
	}
	r, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if r.Machine().Cursor() != 1 || r.Session().Responses[0].Label != "fissure" {
		t.Errorf("Expected the legacy progress, got cursor %d and %+v", r.Machine().Cursor(), r.Session().Responses[0])
	}
}

func TestStartDiscoveryErrors(t *testing.T) {
	deps, store, _ := testDeps(t)

	_, err := Start(deps, "Ana", filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, scanner.ErrRootNotFound) {
		t.Errorf("Expected ErrRootNotFound, got %v", err)
	}
	if !IsRecoverable(err) {
		t.Errorf("missing root must be recoverable")
	}

	empty := t.TempDir()
	makeTree(t, empty, map[string][]string{})
	if _, err := Start(deps, "Ana", empty); !errors.Is(err, ErrNoTargets) {
		t.Errorf("Expected ErrNoTargets, got %v", err)
	}
	if store.saves != 0 {
		t.Errorf("nothing must be saved on discovery errors, got %d saves", store.saves)
	}
}

func TestResumeUnchangedTree(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"faiencage": {"a", "b", "c"}, "fissure": {"d", "e"}})
	deps, _, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Label(0, "fissure"); err != nil {
		t.Fatalf("Label failed: %v", err)
	}
	r.Next()
	r.Next()
	if err := r.Ignore(3, true); err != nil {
		t.Fatalf("Ignore failed: %v", err)
	}
	if err := r.Comment(4, "flou"); err != nil {
		t.Fatalf("Comment failed: %v", err)
	}
	if err := r.Home(true); err != nil {
		t.Fatalf("Home failed: %v", err)
	}

	saved, err := deps.Store.Load("Ana")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if saved.CurrentIndex != 2 || saved.TotalImages != 5 {
		t.Fatalf("Expected cursor 2 of 5, got %d of %d", saved.CurrentIndex, saved.TotalImages)
	}

	resumed, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Machine().Cursor() != 2 {
		t.Errorf("Expected cursor 2, got %d", resumed.Machine().Cursor())
	}
	for i := 0; i < 5; i++ {
		if got := resumed.Session().Responses[i]; got != saved.Responses[i] {
			t.Errorf("response %d changed: %+v -> %+v", i, saved.Responses[i], got)
		}
	}
	if resumed.Delta().Changed() {
		t.Errorf("Expected no reconciliation change, got %+v", resumed.Delta())
	}
}

func TestResumeFollowsShiftedTargets(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b"}})
	deps, _, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = r.Label(0, "faiencage")
	r.Next()
	_ = r.Home(true)

	// a folder sorting before "fissure" pushes the saved targets down by one
	makeTree(t, root, map[string][]string{"crack": {"z"}})

	resumed, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	s := resumed.Session()
	if s.TotalImages != 3 {
		t.Fatalf("Expected 3 targets, got %d", s.TotalImages)
	}
	if got := s.Responses[1]; got.Label != "faiencage" {
		t.Errorf("Expected the labeled target to move to index 1, got %+v", got)
	}
	if !s.Responses[0].Pending() {
		t.Errorf("Expected the new target to be pending, got %+v", s.Responses[0])
	}
	if resumed.Machine().Cursor() != 1 {
		t.Errorf("Expected the saved cursor 1, got %d", resumed.Machine().Cursor())
	}
}

func TestResumeRestoresSavedCursor(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"faiencage": {"a", "b", "c"}, "fissure": {"d", "e"}})
	deps, _, _ := testDeps(t)

	targets, err := scanner.Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	s := models.NewSession("Ana", root, targets)
	s.CurrentIndex = 2
	if err := deps.Store.Save(s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	r, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if r.Machine().Cursor() != 2 {
		t.Errorf("Expected cursor 2, got %d", r.Machine().Cursor())
	}
	p := r.Progress()
	if p.Total != 5 || p.Pending != 5 {
		t.Errorf("Expected 5 pending targets, got %+v", p)
	}
}

func TestResumeAfterUnignoreBehindCursor(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b", "c"}})
	deps, _, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = r.Ignore(0, true)
	r.Next()
	r.Next()
	if err := r.Ignore(0, false); err != nil {
		t.Fatalf("Ignore failed: %v", err)
	}
	if err := r.Home(true); err != nil {
		t.Fatalf("Home failed: %v", err)
	}

	resumed, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumed.Machine().Cursor() != 2 {
		t.Errorf("Expected the saved cursor 2, got %d", resumed.Machine().Cursor())
	}
	if !resumed.Session().Responses[0].Pending() {
		t.Errorf("Expected target 0 to stay pending, got %+v", resumed.Session().Responses[0])
	}
}

func TestResumeKeepsAnswersOfMissingPair(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b"}})
	deps, _, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_ = r.Label(0, "faiencage")
	_ = r.Comment(0, "important")
	r.Next()
	_ = r.Home(true)

	moved := t.TempDir()
	for _, suffix := range []string{"_bbox.png", "_crop.png"} {
		name := "a" + suffix
		if err := os.Rename(filepath.Join(root, "fissure", name), filepath.Join(moved, name)); err != nil {
			t.Fatalf("Failed to move test file: %v", err)
		}
	}

	gone, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if gone.Session().TotalImages != 1 || gone.Orphans() != 1 {
		t.Errorf("Expected 1 target and 1 orphan, got %d and %d", gone.Session().TotalImages, gone.Orphans())
	}
	if err := gone.Home(true); err != nil {
		t.Fatalf("Home failed: %v", err)
	}

	for _, suffix := range []string{"_bbox.png", "_crop.png"} {
		name := "a" + suffix
		if err := os.Rename(filepath.Join(moved, name), filepath.Join(root, "fissure", name)); err != nil {
			t.Fatalf("Failed to move test file: %v", err)
		}
	}

	back, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got := back.Session().Responses[0]
	if got.Label != "faiencage" || got.Comment != "important" {
		t.Errorf("Expected the label and comment to come back, got %+v", got)
	}
	if back.Orphans() != 0 || back.Session().TotalImages != 2 {
		t.Errorf("Expected 2 targets and no orphans, got %d and %d", back.Session().TotalImages, back.Orphans())
	}
}

func TestResumeMissingAndCollision(t *testing.T) {
	deps, _, _ := testDeps(t)
	if _, err := Resume(deps, "Nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a"}})
	if _, err := Start(deps, "Ana Li", root); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r, err := Resume(deps, "Ana_Li")
	if err != nil {
		t.Fatalf("colliding name must resume the shared document: %v", err)
	}
	if r.Session().Annotator != "Ana Li" {
		t.Errorf("Expected the saved display name, got %s", r.Session().Annotator)
	}
}

func TestAutoSaveEveryFifthStep(t *testing.T) {
	root := t.TempDir()
	bases := make([]string, 12)
	for i := range bases {
		bases[i] = fmt.Sprintf("img%02d", i)
	}
	makeTree(t, root, map[string][]string{"fissure": bases})
	deps, store, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	start := store.saves

	var savedAt []int
	for i := 0; i < 11; i++ {
		before := store.saves
		if _, err := r.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if store.saves != before {
			savedAt = append(savedAt, r.Machine().Cursor())
		}
	}
	if fmt.Sprint(savedAt) != "[5 10]" {
		t.Errorf("Expected auto-saves at [5 10], got %v", savedAt)
	}

	// stepping back over 10 saves again on the way forward
	_ = r.Back()
	_ = r.Back()
	r.Next()
	if store.saves-start != 3 {
		t.Errorf("Expected 3 auto-saves, got %d", store.saves-start)
	}

	deps.AutoSave = false
	r2, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	before := store.saves
	for i := 0; i < 5; i++ {
		r2.Next()
	}
	if store.saves != before {
		t.Errorf("auto-save disabled must not save, got %d saves", store.saves-before)
	}
}

func TestFinishDeliveredDeletesDocument(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"jointouvert": {"a"}, "faiencage": {"b", "c"}})
	deps, _, notifier := testDeps(t)
	recorder := &fakeRecorder{}
	deps.History = recorder

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := r.Finish(context.Background()); !errors.Is(err, ErrNotComplete) {
		t.Fatalf("Expected ErrNotComplete, got %v", err)
	}

	_ = r.Ignore(0, true)
	for !r.Complete() {
		if _, err := r.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}

	outcome, err := r.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if !outcome.Delivered || outcome.DeliveryErr != nil {
		t.Errorf("Expected delivered outcome, got %+v", outcome)
	}
	if outcome.Summary.Ignored != 1 || outcome.Summary.Annotated != 2 {
		t.Errorf("unexpected summary %+v", outcome.Summary)
	}
	if lines := strings.Count(string(outcome.Report), "\n"); lines != 4 {
		t.Errorf("Expected header and 3 rows, got %d lines", lines)
	}
	if notifier.calls != 1 || notifier.reports[0].AttachmentName != outcome.ReportName {
		t.Errorf("Expected one notification carrying the report, got %d", notifier.calls)
	}
	if exists, _ := deps.Store.Exists("Ana"); exists {
		t.Errorf("delivered session must be deleted")
	}
	if len(recorder.entries) != 1 || !recorder.entries[0].Delivered {
		t.Errorf("Expected one delivered history entry, got %+v", recorder.entries)
	}

	if _, err := r.Finish(context.Background()); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("Expected ErrAlreadyFinished, got %v", err)
	}
	if notifier.calls != 1 {
		t.Errorf("completion must run once, got %d notifications", notifier.calls)
	}
	if err := r.Back(); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("finished session must reject changes, got %v", err)
	}
	if err := r.Save(); !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("finished session must not be saved again, got %v", err)
	}
}

func TestFinishDeliveryFailureKeepsDocument(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a"}})
	deps, _, notifier := testDeps(t)
	notifier.err = errors.New("535 authentication failed")

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Next()

	outcome, err := r.Finish(context.Background())
	if err != nil {
		t.Fatalf("delivery failure must not be returned as an error: %v", err)
	}
	if outcome.Delivered || outcome.DeliveryErr == nil {
		t.Errorf("Expected undelivered outcome, got %+v", outcome)
	}
	if len(outcome.Report) == 0 {
		t.Errorf("report must still be available for download")
	}

	saved, err := deps.Store.Load("Ana")
	if err != nil {
		t.Fatalf("saved session must be kept: %v", err)
	}
	if saved.CurrentIndex != 1 || !saved.Complete() {
		t.Errorf("Expected the completed state to be saved, got cursor %d", saved.CurrentIndex)
	}

	// the kept document can be resumed and finished again
	notifier.err = nil
	again, err := Resume(deps, "Ana")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !again.Complete() {
		t.Fatalf("Expected resumed session to be complete")
	}
	outcome, err = again.Finish(context.Background())
	if err != nil || !outcome.Delivered {
		t.Errorf("Expected delivery on retry, got %+v, %v", outcome, err)
	}
}

func TestStartAfterUndeliveredFinish(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b"}})
	deps, _, notifier := testDeps(t)
	notifier.err = errors.New("connection refused")

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for !r.Complete() {
		r.Next()
	}
	if _, err := r.Finish(context.Background()); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	fresh, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("delivery failure must not block a new session: %v", err)
	}
	if fresh.Machine().Cursor() != 0 || fresh.Complete() {
		t.Errorf("Expected a fresh session, got cursor %d", fresh.Machine().Cursor())
	}
	saved, err := deps.Store.Load("Ana")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if saved.CurrentIndex != 0 {
		t.Errorf("Expected the new document to be saved, got cursor %d", saved.CurrentIndex)
	}
}

type failingStore struct {
	*storage.FileStore
	fail bool
}

func (f *failingStore) Save(s *models.Session) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.FileStore.Save(s)
}

func TestNextUndoneWhenAutoSaveFails(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b", "c"}})
	deps, _, _ := testDeps(t)
	store := &failingStore{FileStore: storage.New(t.TempDir())}
	deps.Store = store
	deps.AutoSaveEvery = 2

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	store.fail = true
	done, err := r.Next()
	if err == nil || done {
		t.Fatalf("Expected auto-save error, got done=%v err=%v", done, err)
	}
	if r.Machine().Cursor() != 1 {
		t.Errorf("Expected the cursor to stay at 1, got %d", r.Machine().Cursor())
	}
	if !r.Session().Responses[1].Pending() {
		t.Errorf("Expected target 1 to stay pending, got %+v", r.Session().Responses[1])
	}

	store.fail = false
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if r.Machine().Cursor() != 2 {
		t.Errorf("Expected cursor 2, got %d", r.Machine().Cursor())
	}
}

func TestHomeClosesRunner(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b"}})
	deps, store, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := store.saves
	if err := r.Home(false); err != nil {
		t.Fatalf("Home failed: %v", err)
	}
	if store.saves != before {
		t.Errorf("Home(false) must not save")
	}
	if _, err := r.Next(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestExportFormats(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a", "b"}})
	deps, _, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for _, format := range []string{"csv", "parquet", "yaml"} {
		data, err := r.Export(format)
		if err != nil {
			t.Errorf("%s: export failed: %v", format, err)
		}
		if len(data) == 0 {
			t.Errorf("%s: empty export", format)
		}
	}
	if _, err := r.Export("pdf"); err == nil {
		t.Error("Expected error for unsupported format, got nil")
	}
}

func TestUnknownLabelIsRecoverable(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, map[string][]string{"fissure": {"a"}})
	deps, _, _ := testDeps(t)

	r, err := Start(deps, "Ana", root)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err = r.Label(0, "nope")
	if !IsRecoverable(err) {
		t.Errorf("Expected recoverable error, got %v", err)
	}
	if !r.Session().Responses[0].Pending() {
		t.Errorf("failed label must leave the response untouched")
	}

	if err := r.Comment(7, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
}
