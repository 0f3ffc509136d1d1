package exam

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var sessionLabelPattern = regexp.MustCompile(`^[Ss]?\s*(\d+)$`)

// DefaultSessionTimes maps known start times to session labels.
func DefaultSessionTimes() map[string]string {
	return map[string]string{
		"08:30": "S1",
		"10:30": "S2",
		"12:30": "S3",
		"14:30": "S4",
		"14:00": "S3",
		"16:00": "S4",
	}
}

// NormalizeSession turns "1", "s1" or " S1 " into "S1". Unknown shapes are returned trimmed.
func NormalizeSession(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := sessionLabelPattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return "S" + strconv.Itoa(n)
		}
	}
	return trimmed
}

// SessionIndex extracts n from "Sn"; zero when the label is not numbered.
func SessionIndex(label string) int {
	m := sessionLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// LabelSessions assigns session labels to the start times of one day. Known times use the
// table; the rest get the first free "S<n>" at or after their rank among the day's start times.
// Labels are unique within the day.
func LabelSessions(times []string, table map[string]string) map[string]string {
	distinct := make([]string, 0, len(times))
	seen := make(map[string]struct{}, len(times))
	for _, t := range times {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		distinct = append(distinct, t)
	}
	sort.Strings(distinct)

	out := make(map[string]string, len(distinct))
	used := make(map[string]struct{}, len(distinct))
	for _, t := range distinct {
		label, ok := table[t]
		if !ok {
			continue
		}
		if _, taken := used[label]; taken {
			continue
		}
		out[t] = label
		used[label] = struct{}{}
	}
	for rank, t := range distinct {
		if _, ok := out[t]; ok {
			continue
		}
		for n := rank + 1; ; n++ {
			label := "S" + strconv.Itoa(n)
			if _, taken := used[label]; !taken {
				out[t] = label
				used[label] = struct{}{}
				break
			}
		}
	}
	return out
}
