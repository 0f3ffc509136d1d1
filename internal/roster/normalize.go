package roster

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

var (
	teacherColumns    = []string{"nom_ens", "prenom_ens", "grade_code_ens", "participe_surveillance"}
	slotColumns       = []string{"dateExam", "h_debut", "cod_salle"}
	preferenceColumns = []string{"Enseignant", "Jour", "Séances"}

	clockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	dateLayouts  = []string{"02/01/2006", "2006-01-02", "02/01/2006 15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00"}
	participates = map[string]struct{}{"true": {}, "1": {}, "oui": {}, "yes": {}, "vrai": {}, "x": {}, "y": {}, "o": {}}
)

// DataFormatError reports a raw table that cannot be normalised.
type DataFormatError struct {
	Table   string
	Missing []string
	Reason  string
}

func (e *DataFormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing required column(s): %s", e.Table, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Reason)
}

// RawRoster bundles the three raw tables. Preferences may be empty.
type RawRoster struct {
	Teachers    Table
	Slots       Table
	Preferences Table
}

// Options tunes normalisation.
type Options struct {
	QuotaPerGrade      exam.GradeQuotas
	SupervisorsPerRoom int
	SessionTimes       map[string]string
	Logger             *zap.Logger
}

// DroppedPreference describes a preference row that matched no participating teacher.
type DroppedPreference struct {
	Row       int    `json:"row"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// Roster is the normalised, deterministically ordered result.
type Roster struct {
	Teachers    []exam.Teacher      `json:"teachers"`
	Slots       []exam.Slot         `json:"slots"`
	Preferences []exam.Preference   `json:"preferences"`
	Dropped     []DroppedPreference `json:"dropped,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.QuotaPerGrade == nil {
		o.QuotaPerGrade = exam.DefaultGradeQuotas()
	}
	if o.SupervisorsPerRoom <= 0 {
		o.SupervisorsPerRoom = exam.DefaultSupervisorsPerRoom
	}
	if o.SessionTimes == nil {
		o.SessionTimes = exam.DefaultSessionTimes()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Normalize converts raw roster tables into teachers, slots and preferences.
func Normalize(raw RawRoster, opts Options) (*Roster, error) {
	opts = opts.withDefaults()

	if err := requireColumns("teachers", raw.Teachers, teacherColumns); err != nil {
		return nil, err
	}
	if err := requireColumns("slots", raw.Slots, slotColumns); err != nil {
		return nil, err
	}
	if !raw.Preferences.Empty() {
		if err := requireColumns("preferences", raw.Preferences, preferenceColumns); err != nil {
			return nil, err
		}
	}

	teachers := normalizeTeachers(raw.Teachers, opts)
	slots, err := normalizeSlots(raw.Slots, opts)
	if err != nil {
		return nil, err
	}
	prefs, dropped := normalizePreferences(raw.Preferences, teachers, slots, opts)

	return &Roster{Teachers: teachers, Slots: slots, Preferences: prefs, Dropped: dropped}, nil
}

func requireColumns(name string, t Table, required []string) error {
	var missing []string
	for _, col := range required {
		aliases := []string{col}
		if col == "Séances" {
			aliases = append(aliases, "Seances")
		}
		if t.index(aliases...) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &DataFormatError{Table: name, Missing: missing}
}

func normalizeTeachers(t Table, opts Options) []exam.Teacher {
	var (
		lastIdx  = t.index("nom_ens")
		firstIdx = t.index("prenom_ens")
		gradeIdx = t.index("grade_code_ens")
		flagIdx  = t.index("participe_surveillance")
		codeIdx  = t.index("abrv_ens")
		idIdx    = t.index("code_smartex_ens")
		emailIdx = t.index("email_ens")
		seen     = make(map[string]struct{}, len(t.Rows))
		teachers = make([]exam.Teacher, 0, len(t.Rows))
	)

	for i, row := range t.Rows {
		if !parseParticipation(cellAt(row, flagIdx)) {
			continue
		}
		grade := strings.ToUpper(cellAt(row, gradeIdx))
		teacher := exam.Teacher{
			ID:           cleanID(cellAt(row, idIdx)),
			Code:         cellAt(row, codeIdx),
			FirstName:    cellAt(row, firstIdx),
			LastName:     cellAt(row, lastIdx),
			Email:        cellAt(row, emailIdx),
			Grade:        grade,
			Quota:        opts.QuotaPerGrade.QuotaFor(grade),
			Participates: true,
		}
		if teacher.ID == "" {
			teacher.ID = teacher.Code
		}
		if teacher.ID == "" {
			teacher.ID = fmt.Sprintf("T%03d", i+1)
		}
		if _, dup := seen[teacher.ID]; dup {
			opts.Logger.Warn("duplicate teacher id skipped", zap.String("teacher_id", teacher.ID), zap.Int("row", i+2))
			continue
		}
		seen[teacher.ID] = struct{}{}
		teachers = append(teachers, teacher)
	}

	sort.Slice(teachers, func(i, j int) bool { return teachers[i].ID < teachers[j].ID })
	return teachers
}

// cleanID drops the ".0" suffix spreadsheets add to numeric identifiers.
func cleanID(raw string) string {
	if strings.HasSuffix(raw, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(raw, ".0")); err == nil {
			return strings.TrimSuffix(raw, ".0")
		}
	}
	return raw
}

func parseParticipation(raw string) bool {
	_, ok := participates[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

type slotGroup struct {
	date        string
	start       string
	end         string
	rooms       map[string]struct{}
	responsible map[string]struct{}
}

func normalizeSlots(t Table, opts Options) ([]exam.Slot, error) {
	var (
		dateIdx  = t.index("dateExam")
		startIdx = t.index("h_debut")
		endIdx   = t.index("h_fin")
		roomIdx  = t.index("cod_salle")
		respIdx  = t.index("enseignant")
		groups   = make(map[string]*slotGroup)
	)

	for i, row := range t.Rows {
		date, err := parseDate(cellAt(row, dateIdx))
		if err != nil {
			return nil, &DataFormatError{Table: "slots", Reason: fmt.Sprintf("row %d: %v", i+2, err)}
		}
		start, ok := parseClock(cellAt(row, startIdx))
		if !ok {
			return nil, &DataFormatError{Table: "slots", Reason: fmt.Sprintf("row %d: invalid start time %q", i+2, cellAt(row, startIdx))}
		}
		key := date + "T" + start
		g, exists := groups[key]
		if !exists {
			g = &slotGroup{date: date, start: start, rooms: map[string]struct{}{}, responsible: map[string]struct{}{}}
			groups[key] = g
		}
		if end, ok := parseClock(cellAt(row, endIdx)); ok && g.end == "" {
			g.end = end
		}
		if room := cellAt(row, roomIdx); room != "" {
			g.rooms[room] = struct{}{}
		}
		if resp := cleanID(cellAt(row, respIdx)); resp != "" {
			g.responsible[resp] = struct{}{}
		}
	}

	dates := make([]string, 0)
	timesByDate := make(map[string][]string)
	for _, g := range groups {
		if _, ok := timesByDate[g.date]; !ok {
			dates = append(dates, g.date)
		}
		timesByDate[g.date] = append(timesByDate[g.date], g.start)
	}
	sort.Strings(dates)
	dayOf := make(map[string]int, len(dates))
	for i, d := range dates {
		dayOf[d] = i + 1
	}

	slots := make([]exam.Slot, 0, len(groups))
	for _, date := range dates {
		times := append([]string(nil), timesByDate[date]...)
		sort.Strings(times)
		labels := exam.LabelSessions(times, opts.SessionTimes)
		for rank, start := range times {
			g := groups[date+"T"+start]
			slot := exam.Slot{
				ID:           date + "T" + start,
				Date:         date,
				Day:          dayOf[date],
				StartTime:    start,
				EndTime:      g.end,
				Session:      labels[start],
				SessionIndex: rank + 1,
				Rooms:        sortedKeys(g.rooms),
				Responsible:  sortedKeys(g.responsible),
			}
			slots = append(slots, slot.WithSupervisorsPerRoom(opts.SupervisorsPerRoom))
		}
	}
	return slots, nil
}

func normalizePreferences(t Table, teachers []exam.Teacher, slots []exam.Slot, opts Options) ([]exam.Preference, []DroppedPreference) {
	if t.Empty() {
		return []exam.Preference{}, nil
	}

	byCode := make(map[string]string, len(teachers))
	byName := make(map[string]string, len(teachers))
	for _, teacher := range teachers {
		byCode[strings.ToLower(teacher.ID)] = teacher.ID
		if teacher.Code != "" {
			byCode[strings.ToLower(teacher.Code)] = teacher.ID
		}
		byName[nameKey(teacher.FullName())] = teacher.ID
	}
	dayByDate := make(map[string]int)
	for _, s := range slots {
		dayByDate[s.Date] = s.Day
	}

	var (
		refIdx     = t.index("Enseignant")
		dayIdx     = t.index("Jour")
		sessionIdx = t.index("Séances", "Seances")
		seen       = make(map[exam.Preference]struct{})
		prefs      = make([]exam.Preference, 0, len(t.Rows))
		dropped    []DroppedPreference
	)

	for i, row := range t.Rows {
		ref := cellAt(row, refIdx)
		teacherID, ok := byCode[strings.ToLower(ref)]
		if !ok {
			teacherID, ok = byName[nameKey(ref)]
		}
		if !ok {
			dropped = append(dropped, DroppedPreference{Row: i + 2, Reference: ref, Reason: "unknown teacher"})
			opts.Logger.Info("preference dropped", zap.Int("row", i+2), zap.String("teacher", ref), zap.String("reason", "unknown teacher"))
			continue
		}
		day, ok := parseDay(cellAt(row, dayIdx), dayByDate)
		if !ok {
			dropped = append(dropped, DroppedPreference{Row: i + 2, Reference: ref, Reason: "invalid day"})
			opts.Logger.Info("preference dropped", zap.Int("row", i+2), zap.String("teacher", ref), zap.String("reason", "invalid day"))
			continue
		}
		for _, label := range strings.Split(cellAt(row, sessionIdx), ",") {
			session := exam.NormalizeSession(label)
			if session == "" {
				continue
			}
			p := exam.Preference{TeacherID: teacherID, Day: day, Session: session}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			prefs = append(prefs, p)
		}
	}

	sort.Slice(prefs, func(i, j int) bool {
		a, b := prefs[i], prefs[j]
		if a.TeacherID != b.TeacherID {
			return a.TeacherID < b.TeacherID
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.Session < b.Session
	})
	return prefs, dropped
}

func nameKey(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

func parseDay(raw string, dayByDate map[string]int) (int, bool) {
	if n, err := strconv.Atoi(cleanID(raw)); err == nil {
		return n, n > 0
	}
	if date, err := parseDate(raw); err == nil {
		day, ok := dayByDate[date]
		return day, ok
	}
	return 0, false
}

func parseDate(raw string) (string, error) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", raw)
}

func parseClock(raw string) (string, bool) {
	m := clockPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, mm), true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
