package tasks

import (
	"strconv"
	"time"

	"voice-task-service/internal/models"
	"voice-task-service/internal/service/transcript"
)

// FromTranscript runs the extraction pipeline over a finished transcript:
// normalize, segment, then dedupe using the delimiter check on the
// normalized text.
func FromTranscript(text string) []string {
	normalized := transcript.Normalize(text)
	if normalized == "" {
		return nil
	}
	return Dedupe(Segment(normalized), HasExplicitSplitter(normalized))
}

// Build turns titles into new tasks. The i-th task gets createdAt now+i (epoch
// ms) and the same value as its id, so ids are unique and strictly increasing
// within one batch.
func Build(titles []string, now time.Time) []models.Task {
	base := now.UnixMilli()
	out := make([]models.Task, 0, len(titles))
	for i, title := range titles {
		ts := base + int64(i)
		out = append(out, models.Task{
			ID:        strconv.FormatInt(ts, 10),
			Title:     title,
			Completed: false,
			CreatedAt: ts,
		})
	}
	return out
}

// Prepend places added tasks ahead of the existing ones, keeping the
// newest-first order of the stored list.
func Prepend(added, existing []models.Task) []models.Task {
	out := make([]models.Task, 0, len(added)+len(existing))
	out = append(out, added...)
	return append(out, existing...)
}
