// Package topic derives a classification from the free-text meeting topic
// ("theme; tutor; cohort").
package topic

import "strings"

// Category of a recording.
type Category string

const (
	CategoryHexlet  Category = "hexlet"
	CategoryCollege Category = "college"
	CategoryOther   Category = "other"
)

const (
	hexletPrefix  = "potok"
	collegePrefix = "колледж"
)

// Classification is what Classify extracts from a topic.
type Classification struct {
	Category Category `json:"category"`
	Theme    string   `json:"theme,omitempty"`
	Tutor    string   `json:"tutor,omitempty"`
	Cohort   string   `json:"cohort,omitempty"`
}

// Classified reports whether the topic was recognized as a course recording.
func (c Classification) Classified() bool {
	return c.Category == CategoryHexlet || c.Category == CategoryCollege
}

// Classify parses a semicolon-delimited topic. Anything with fewer than three
// segments is CategoryOther with no other fields.
func Classify(s string) Classification {
	parts := strings.Split(s, ";")
	if len(parts) < 3 {
		return Classification{Category: CategoryOther}
	}
	theme := strings.TrimSpace(parts[0])
	tutor := strings.TrimSpace(parts[1])
	cohort := strings.ToLower(strings.TrimSpace(parts[2]))

	return Classification{
		Category: categoryOf(cohort),
		Theme:    theme,
		Tutor:    tutor,
		Cohort:   cohort,
	}
}

func categoryOf(cohort string) Category {
	switch {
	case strings.HasPrefix(cohort, hexletPrefix):
		return CategoryHexlet
	case strings.HasPrefix(cohort, collegePrefix):
		return CategoryCollege
	default:
		return CategoryOther
	}
}
