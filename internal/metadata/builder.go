// Package metadata computes the filename, destination path and description of a recording file.
package metadata

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zoomsync/backend/internal/topic"
)

const (
	// VideosDir is the subdirectory of the storage root that holds downloaded files.
	VideosDir = "videos"
	// OtherPlaylist is the playlist of recordings without a recognized cohort.
	OtherPlaylist = "Other"
	// DateLayout is day.month.year.
	DateLayout = "02.01.2006"

	DefaultMaxClassified = 60
	DefaultMaxOther      = 85
	DefaultMaxTutor      = 25
)

var whitespace = regexp.MustCompile(`[\s\p{Zs}]+`)

// Builder holds the settings that make metadata deterministic for a deployment.
type Builder struct {
	StorageRoot   string
	Location      *time.Location
	MaxClassified int
	MaxOther      int
	MaxTutor      int
}

// NewBuilder returns a Builder with default length caps.
func NewBuilder(storageRoot string, loc *time.Location) Builder {
	if loc == nil {
		loc = time.UTC
	}
	return Builder{
		StorageRoot:   storageRoot,
		Location:      loc,
		MaxClassified: DefaultMaxClassified,
		MaxOther:      DefaultMaxOther,
		MaxTutor:      DefaultMaxTutor,
	}
}

// Input describes one eligible file of an event.
type Input struct {
	EventID        string
	Topic          string
	StartTime      time.Time
	AccountID      string
	Classification topic.Classification
	Index          int // zero-based among eligible files
	Total          int // number of eligible files
	Extension      string
}

// Metadata is derived per file.
type Metadata struct {
	Date        string
	TopicName   string
	Description string
	Category    string
	Playlist    string
	Filename    string
	FilePath    string
}

// Build derives the metadata of one file.
func (b Builder) Build(in Input) Metadata {
	date := in.StartTime.In(b.location()).Format(DateLayout)
	cls := in.Classification

	var name strings.Builder
	if in.Total > 1 {
		fmt.Fprintf(&name, "Part %d, ", in.Index+1)
	}
	if cls.Classified() {
		name.WriteString(PadString(cls.Theme, b.MaxClassified))
		name.WriteString(", " + date)
		name.WriteString(", " + PadString(cls.Tutor, b.MaxTutor))
	} else {
		name.WriteString(PadString(strings.TrimSpace(in.Topic), b.MaxOther))
		name.WriteString(", " + date)
	}
	topicName := name.String()

	filename := Filename(topicName, postfix(in.EventID, in.Index), in.Extension)
	m := Metadata{
		Date:        date,
		TopicName:   topicName,
		Description: description(in, date),
		Category:    string(cls.Category),
		Playlist:    OtherPlaylist,
		Filename:    filename,
		FilePath:    filepath.Join(b.StorageRoot, VideosDir, filename),
	}
	if cls.Classified() {
		m.Playlist = cls.Cohort
	}
	return m
}

func (b Builder) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// Filename joins a topic name, postfix and extension into a filesystem-safe name.
func Filename(topicName, postfix, ext string) string {
	s := topicName + " " + postfix
	if ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")); ext != "" {
		s += "." + ext
	}
	s = strings.NewReplacer("/", "|", `\`, "|").Replace(s)
	s = strings.TrimSpace(s)
	return whitespace.ReplaceAllString(s, "_")
}

func postfix(eventID string, index int) string {
	short := strings.ReplaceAll(eventID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		return fmt.Sprintf("%d", index+1)
	}
	return fmt.Sprintf("%s-%d", short, index+1)
}

func description(in Input, date string) string {
	lines := []string{
		"Topic: " + strings.TrimSpace(in.Topic),
		"Date: " + date,
	}
	if in.Classification.Classified() {
		lines = append(lines,
			"Tutor: "+in.Classification.Tutor,
			"Cohort: "+in.Classification.Cohort,
		)
	} else {
		lines = append(lines, "Account: "+in.AccountID)
	}
	return strings.Join(lines, "\n")
}
