package metadata

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoomsync/backend/internal/topic"
)

const eventID = "1a2b3c4d-0000-4000-8000-000000000000"

var msk = time.FixedZone("MSK", 3*60*60)

func testBuilder() Builder {
	return NewBuilder("/data", msk)
}

func TestBuild_ClassifiedTopic(t *testing.T) {
	raw := "Intro to Systems;Jane Doe;Potok-12"
	m := testBuilder().Build(Input{
		EventID:        eventID,
		Topic:          raw,
		StartTime:      time.Date(2026, 10, 16, 22, 30, 0, 0, time.UTC),
		AccountID:      "acc-1",
		Classification: topic.Classify(raw),
		Index:          0,
		Total:          1,
		Extension:      "MP4",
	})

	assert.Equal(t, "17.10.2026", m.Date, "date is rendered in the local timezone")
	assert.Equal(t, "Intro to Systems, 17.10.2026, Jane Doe", m.TopicName)
	assert.Equal(t, "Intro_to_Systems,_17.10.2026,_Jane_Doe_1a2b3c4d-1.mp4", m.Filename)
	assert.Equal(t, filepath.Join("/data", "videos", m.Filename), m.FilePath)
	assert.Equal(t, "potok-12", m.Playlist)
	assert.Equal(t, "hexlet", m.Category)
	assert.Equal(t, "Topic: Intro to Systems;Jane Doe;Potok-12\nDate: 17.10.2026\nTutor: Jane Doe\nCohort: potok-12", m.Description)
}

func TestBuild_OtherTopic(t *testing.T) {
	raw := "Weekly sync / planning"
	m := testBuilder().Build(Input{
		EventID:        eventID,
		Topic:          raw,
		StartTime:      time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		AccountID:      "acc-1",
		Classification: topic.Classify(raw),
		Total:          1,
		Extension:      "mp4",
	})

	assert.Equal(t, "Weekly sync / planning, 17.10.2026", m.TopicName)
	assert.Equal(t, "Weekly_sync_|_planning,_17.10.2026_1a2b3c4d-1.mp4", m.Filename)
	assert.Equal(t, OtherPlaylist, m.Playlist)
	assert.Equal(t, "other", m.Category)
	assert.Equal(t, "Topic: Weekly sync / planning\nDate: 17.10.2026\nAccount: acc-1", m.Description)
}

func TestBuild_TwoFilesDifferOnlyByPrefixAndPostfix(t *testing.T) {
	raw := "Intro to Systems;Jane Doe;Potok-12"
	in := Input{
		EventID:        eventID,
		Topic:          raw,
		StartTime:      time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		Classification: topic.Classify(raw),
		Total:          2,
		Extension:      "mp4",
	}
	first := testBuilder().Build(in)
	in.Index = 1
	second := testBuilder().Build(in)

	require.NotEqual(t, first.Filename, second.Filename)
	assert.Contains(t, first.Filename, "17.10.2026")
	assert.Contains(t, second.Filename, "17.10.2026")
	assert.True(t, strings.HasPrefix(first.Filename, "Part_1,_"))
	assert.True(t, strings.HasPrefix(second.Filename, "Part_2,_"))

	strip := func(s, prefix, post string) string {
		return strings.TrimSuffix(strings.TrimPrefix(s, prefix), post)
	}
	assert.Equal(t,
		strip(first.Filename, "Part_1,_", "_1a2b3c4d-1.mp4"),
		strip(second.Filename, "Part_2,_", "_1a2b3c4d-2.mp4"),
	)
}

func TestBuild_TruncatesLongNames(t *testing.T) {
	longTheme := strings.Repeat("Distributed systems ", 10)
	raw := longTheme + ";" + strings.Repeat("Tutor", 10) + ";potok-1"
	m := testBuilder().Build(Input{
		EventID:        eventID,
		Topic:          raw,
		StartTime:      time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		Classification: topic.Classify(raw),
		Total:          1,
		Extension:      "mp4",
	})
	parts := strings.Split(m.TopicName, ", ")
	require.Len(t, parts, 3)
	assert.Equal(t, DefaultMaxClassified, len([]rune(parts[0])))
	assert.True(t, strings.HasSuffix(parts[0], Ellipsis))
	assert.Equal(t, DefaultMaxTutor, len([]rune(parts[2])))

	other := testBuilder().Build(Input{
		EventID:        eventID,
		Topic:          strings.Repeat("x", 200),
		StartTime:      time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		Classification: topic.Classify("x"),
		Total:          1,
	})
	assert.Equal(t, DefaultMaxOther, len([]rune(strings.Split(other.TopicName, ", ")[0])))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "a|b|c_x-1.mp4", Filename("  a/b\\c ", "x-1", ".MP4"))
	assert.Equal(t, "multi_space_p", Filename("multi \t  space", "p", ""))
	// Pasted topics often carry no-break and thin spaces.
	assert.Equal(t, "Go_lesson_p", Filename("Go\u00a0\u2009lesson", "p", ""))
}
