// Package scanner discovers annotation targets: bbox/crop image pairs laid out
// as <root>/<folder>/<base>_bbox*.png and <root>/<folder>/<base>_crop*.png.
package scanner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/annotator/internal/models"
)

const (
	bboxMarker = "_bbox"
	cropMarker = "_crop"
)

// ErrRootNotFound is returned when the root path is absent or not a directory
var ErrRootNotFound = errors.New("root directory not found")

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

type pair struct {
	base string
	bbox string
	crop string
}

// Scan walks the immediate subdirectories of root and returns every complete
// bbox/crop pair, ordered by folder name then by discovery order in the folder.
// A missing root yields an empty result together with ErrRootNotFound.
func Scan(root string) ([]models.Target, error) {
	targets := []models.Target{}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return targets, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return targets, fmt.Errorf("%w: %s", ErrRootNotFound, absRoot)
		}
		return targets, fmt.Errorf("failed to stat root %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return targets, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, absRoot)
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return targets, fmt.Errorf("failed to read root %s: %w", absRoot, err)
	}

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}
	sort.Strings(folders)

	for _, folder := range folders {
		folderPath := filepath.Join(absRoot, folder)
		pairs, err := scanFolder(folderPath)
		if err != nil {
			slog.Warn("Skipping unreadable folder", "folder", folderPath, "err", err)
			continue
		}

		for _, p := range pairs {
			targets = append(targets, models.Target{
				BaseName:     p.base,
				Folder:       folder,
				LabelInitial: folder,
				BBoxPath:     filepath.Join(folderPath, p.bbox),
				CropPath:     filepath.Join(folderPath, p.crop),
			})
		}
		slog.Debug("Scanned folder", "folder", folder, "pairs", len(pairs))
	}

	return targets, nil
}

func scanFolder(folderPath string) ([]pair, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, err
	}

	// os.ReadDir sorts by file name, which fixes the discovery order
	var order []string
	groups := make(map[string]*pair)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		base, marker, ok := splitMarker(name)
		if !ok {
			continue
		}

		g, exists := groups[base]
		if !exists {
			g = &pair{base: base}
			groups[base] = g
			order = append(order, base)
		}
		switch marker {
		case bboxMarker:
			if g.bbox == "" {
				g.bbox = name
			}
		case cropMarker:
			if g.crop == "" {
				g.crop = name
			}
		}
	}

	var pairs []pair
	for _, base := range order {
		g := groups[base]
		if g.bbox != "" && g.crop != "" {
			pairs = append(pairs, *g)
		}
	}
	return pairs, nil
}

// splitMarker truncates name at the first occurrence of either marker
func splitMarker(name string) (base, marker string, ok bool) {
	bboxIdx := strings.Index(name, bboxMarker)
	cropIdx := strings.Index(name, cropMarker)

	switch {
	case bboxIdx < 0 && cropIdx < 0:
		return "", "", false
	case cropIdx < 0 || (bboxIdx >= 0 && bboxIdx < cropIdx):
		return name[:bboxIdx], bboxMarker, true
	default:
		return name[:cropIdx], cropMarker, true
	}
}
