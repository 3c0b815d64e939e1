package subtitles

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cue is one timed subtitle entry. Times are in seconds.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// FormatSRT renders cues as SRT text with sequential numbering from 1.
// Cues with empty text are skipped without leaving a gap in the numbering.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	number := 0
	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		number++
		if number > 1 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(number))
		b.WriteByte('\n')
		b.WriteString(FormatTimestamp(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(cue.End))
		b.WriteByte('\n')
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm, rounding to the nearest
// millisecond. Negative values render as zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	millis := total % 1000
	total /= 1000
	secs := total % 60
	total /= 60
	minutes := total % 60
	hours := total / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp parses HH:MM:SS,mmm (or HH:MM:SS.mmm) into seconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || seconds < 0 || millis < 0 || minutes > 59 || seconds > 59 || millis > 999 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// ParseSRT parses SRT text into cues. Cue numbers are read but not checked
// for sequence; multi-line cue text is joined with newlines.
func ParseSRT(content string) ([]Cue, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var (
		cues    []Cue
		current *Cue
		lines   []string
		lineNo  int
	)
	flush := func() {
		if current != nil {
			current.Text = strings.Join(lines, "\n")
			cues = append(cues, *current)
		}
		current = nil
		lines = lines[:0]
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case current == nil && strings.Contains(line, "-->"):
			start, end, err := parseTimingLine(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = &Cue{Start: start, End: end}
		case current == nil:
			if _, err := strconv.Atoi(line); err != nil {
				return nil, fmt.Errorf("line %d: expected cue number, got %q", lineNo, line)
			}
		default:
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	flush()
	return cues, nil
}

func parseTimingLine(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Position hints may follow the end time.
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Validate reports ordering and bounds problems in cues. An empty result
// means the list is monotonic and within [0, duration]. A non-positive
// duration skips the upper bound check.
func Validate(cues []Cue, duration float64) []string {
	var issues []string
	prevEnd := 0.0
	for i, cue := range cues {
		if cue.Start < 0 {
			issues = append(issues, fmt.Sprintf("cue %d starts before zero", i+1))
		}
		if cue.End < cue.Start {
			issues = append(issues, fmt.Sprintf("cue %d ends before it starts", i+1))
		}
		if i > 0 && cue.Start < prevEnd {
			issues = append(issues, fmt.Sprintf("cue %d overlaps previous cue", i+1))
		}
		if duration > 0 && cue.End > duration {
			issues = append(issues, fmt.Sprintf("cue %d ends after media (%.3fs > %.3fs)", i+1, cue.End, duration))
		}
		prevEnd = math.Max(prevEnd, cue.End)
	}
	return issues
}
