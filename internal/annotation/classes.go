package annotation

import (
	"github.com/lehigh-university-libraries/annotator/internal/models"
)

// DefaultClasses is the label enumeration used when the configuration names none
var DefaultClasses = Classes{"faiencage", "fissure", "joint_ouvert"}

// Classes is the fixed enumeration of labels an annotator may choose from
type Classes []string

// Contains reports whether label is one of the classes
func (c Classes) Contains(label string) bool {
	for _, class := range c {
		if class == label {
			return true
		}
	}
	return false
}

// Index returns the position of label in the enumeration, or -1
func (c Classes) Index(label string) int {
	for i, class := range c {
		if class == label {
			return i
		}
	}
	return -1
}

// Suggest returns the class displayed by default for a target found in folder:
// an exact match, then a normalized match, and otherwise the first class.
func (c Classes) Suggest(folder string) string {
	if len(c) == 0 {
		return ""
	}
	if c.Contains(folder) {
		return folder
	}
	norm := models.NormalizeLabel(folder)
	for _, class := range c {
		if models.NormalizeLabel(class) == norm {
			return class
		}
	}
	return c[0]
}
