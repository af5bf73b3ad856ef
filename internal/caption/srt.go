package caption

import (
	"fmt"
	"io"
	"math"

	"voxtailor/internal/store"
)

// WriteSRT renders segments as a SubRip subtitle file. The framing is fixed
// for interoperability with subtitle players: sequence number, timing line,
// text, blank separator.
func WriteSRT(w io.Writer, segments []store.TranscriptionSegment) error {
	for i, seg := range segments {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1,
			FormatTimestamp(seg.StartSec),
			FormatTimestamp(seg.EndSec),
			seg.Text)
		if err != nil {
			return fmt.Errorf("failed to write subtitle entry %d: %w", i+1, err)
		}
	}
	return nil
}

// FormatTimestamp renders seconds as the SubRip HH:MM:SS,mmm form
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMS := int64(math.Round(seconds * 1000))

	hours := totalMS / 3600000
	totalMS -= hours * 3600000
	minutes := totalMS / 60000
	totalMS -= minutes * 60000
	secs := totalMS / 1000
	millis := totalMS - secs*1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
