package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
	"github.com/romanzh1/dsa-revision-tracker/internal/service"
	"github.com/romanzh1/dsa-revision-tracker/internal/service/plan"
	"github.com/romanzh1/dsa-revision-tracker/internal/service/revision"
	"github.com/romanzh1/dsa-revision-tracker/pkg/utils"
)

var (
	errBadCallback = errors.New("malformed callback data")
	errAddUsage    = errors.New("usage: /add platform | difficulty | title | way | confidence [| slug | tags | companies]")
)

const (
	actionRevise       = "r"
	actionConfidence   = "c"
	actionWay          = "w"
	actionResetConfirm = "reset_confirm"
	actionResetCancel  = "reset_cancel"
)

// callbackData is the decoded payload of an inline button. Telegram limits
// the raw payload to 64 bytes, so levels and ways travel as one-letter codes.
type callbackData struct {
	Action     string
	QuestionID string
	Confidence models.ConfidenceLevel
	Way        models.WayOfSolving
}

var confidenceCodes = map[models.ConfidenceLevel]string{
	models.ConfidenceLow:    "L",
	models.ConfidenceMedium: "M",
	models.ConfidenceHigh:   "H",
}

var wayCodes = map[models.WayOfSolving]string{
	models.WaySolvedSelf:      "S",
	models.WayTookHints:       "H",
	models.WayUsedAI:          "A",
	models.WayWatchedSolution: "W",
}

func reverse[K, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

var (
	confidenceByCode = reverse(confidenceCodes)
	wayByCode        = reverse(wayCodes)
)

func encodeCallback(c callbackData) string {
	switch c.Action {
	case actionRevise:
		return actionRevise + ":" + c.QuestionID
	case actionConfidence:
		return fmt.Sprintf("%s:%s:%s", actionConfidence, c.QuestionID, confidenceCodes[c.Confidence])
	case actionWay:
		return fmt.Sprintf("%s:%s:%s:%s", actionWay, c.QuestionID, confidenceCodes[c.Confidence], wayCodes[c.Way])
	}
	return c.Action
}

func decodeCallback(data string) (callbackData, error) {
	switch data {
	case actionResetConfirm, actionResetCancel:
		return callbackData{Action: data}, nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 2 || parts[1] == "" {
		return callbackData{}, fmt.Errorf("decode callback (data: %q): %w", data, errBadCallback)
	}

	c := callbackData{Action: parts[0], QuestionID: parts[1]}

	var ok bool
	switch {
	case c.Action == actionRevise && len(parts) == 2:
		return c, nil
	case c.Action == actionConfidence && len(parts) == 3:
		if c.Confidence, ok = confidenceByCode[parts[2]]; ok {
			return c, nil
		}
	case c.Action == actionWay && len(parts) == 4:
		c.Confidence, ok = confidenceByCode[parts[2]]
		if !ok {
			break
		}
		if c.Way, ok = wayByCode[parts[3]]; ok {
			return c, nil
		}
	}

	return callbackData{}, fmt.Errorf("decode callback (data: %q): %w", data, errBadCallback)
}

func parseConfidence(s string) (models.ConfidenceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "low":
		return models.ConfidenceLow, nil
	case "m", "med", "medium":
		return models.ConfidenceMedium, nil
	case "h", "high":
		return models.ConfidenceHigh, nil
	}
	return "", fmt.Errorf("%w: %q", revision.ErrInvalidConfidenceLevel, s)
}

func parseWay(s string) (models.WayOfSolving, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "self", "solved", "solved_self":
		return models.WaySolvedSelf, nil
	case "hint", "hints", "took_hints":
		return models.WayTookHints, nil
	case "ai", "used_ai":
		return models.WayUsedAI, nil
	case "watched", "solution", "watched_solution":
		return models.WayWatchedSolution, nil
	}
	return "", fmt.Errorf("unknown way of solving %q", s)
}

func parseDifficulty(s string) (models.Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "e", "easy":
		return models.DifficultyEasy, nil
	case "m", "medium":
		return models.DifficultyMedium, nil
	case "h", "hard":
		return models.DifficultyHard, nil
	}
	return "", fmt.Errorf("%w: %q", service.ErrInvalidDifficulty, s)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseCompanies reads "Google: array, dp; Amazon". Every company lands in
// the list; those with tags also land in the tag map.
func parseCompanies(s string) ([]string, models.CompanyTags) {
	var (
		names []string
		tags  models.CompanyTags
	)
	for _, item := range strings.Split(s, ";") {
		name, list, _ := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		names = append(names, name)

		if companyTags := splitList(list); len(companyTags) > 0 {
			if tags == nil {
				tags = make(models.CompanyTags)
			}
			tags[name] = append(tags[name], companyTags...)
		}
	}
	return names, tags
}

// parseAddArgs reads "platform | difficulty | title | way | confidence" with
// optional trailing slug, comma-separated tags and companies in the form
// "company: tag, tag; company".
func parseAddArgs(userID int64, args string) (models.NewQuestion, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 5 || len(parts) > 8 {
		return models.NewQuestion{}, errAddUsage
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	difficulty, err := parseDifficulty(parts[1])
	if err != nil {
		return models.NewQuestion{}, err
	}
	way, err := parseWay(parts[3])
	if err != nil {
		return models.NewQuestion{}, err
	}
	confidence, err := parseConfidence(parts[4])
	if err != nil {
		return models.NewQuestion{}, err
	}

	in := models.NewQuestion{
		UserID:     userID,
		Platform:   parts[0],
		Difficulty: difficulty,
		Title:      parts[2],
		Outcome:    models.RevisionOutcome{ConfidenceLevel: confidence, WayOfSolving: way},
	}
	if len(parts) > 5 {
		in.Slug = parts[5]
	}
	if len(parts) > 6 {
		in.Tags = splitList(parts[6])
	}
	if len(parts) > 7 {
		in.Companies, in.CompanyTags = parseCompanies(parts[7])
	}

	return in, nil
}

// userMessage turns a service error into text for the chat. The second return
// is false for errors that are not the user's fault.
func userMessage(err error) (string, bool) {
	var dup *service.DuplicateQuestionError
	switch {
	case errors.As(err, &dup):
		return fmt.Sprintf("You already track \"%s\" on %s.", escapeHTML(dup.Existing.Title), escapeHTML(dup.Existing.Platform)), true
	case errors.Is(err, revision.ErrInvalidConfidenceLevel):
		return "Invalid confidence. Use low, medium or high.", true
	case errors.Is(err, service.ErrInvalidDifficulty):
		return "Invalid difficulty. Use easy, medium or hard.", true
	case errors.Is(err, service.ErrMissingField):
		return "Title and platform are required.", true
	case errors.Is(err, service.ErrQuestionNotFound):
		return "Question not found. It may have been reset.", true
	case errors.Is(err, service.ErrForbidden):
		return "That question is not yours.", true
	case errors.Is(err, service.ErrInvalidTimezone):
		return "Unknown timezone. Use an IANA name such as Europe/Berlin.", true
	case errors.Is(err, service.ErrInvalidReminderTime):
		return "Invalid time. Use HH:MM or off.", true
	case errors.Is(err, service.ErrUserNotFound):
		return "Register first with /start", true
	case errors.Is(err, errAddUsage):
		return escapeHTML(errAddUsage.Error()), true
	}
	return "Something went wrong. Try again later.", false
}

var wayLabels = map[models.WayOfSolving]string{
	models.WaySolvedSelf:      "solved myself",
	models.WayTookHints:       "took hints",
	models.WayUsedAI:          "used AI",
	models.WayWatchedSolution: "watched solution",
}

func wayLabel(way models.WayOfSolving) string {
	if label, ok := wayLabels[way]; ok {
		return label
	}
	return strings.ToLower(string(way))
}

func confidenceIcon(level models.ConfidenceLevel) string {
	switch level {
	case models.ConfidenceLow:
		return "🔴"
	case models.ConfidenceMedium:
		return "🟡"
	case models.ConfidenceHigh:
		return "🟢"
	}
	return "⚪"
}

func formatDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon, Jan 2")
}

func formatPlan(p plan.DailyPlan) string {
	if len(p.Questions) == 0 {
		return "🎉 Nothing to revise today!"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📚 <b>Today's revision plan</b> (%s)\n\n", p.GeneratedAt.Format("Jan 2"))

	for i, e := range p.Questions {
		q := e.Question
		fmt.Fprintf(&b, "%d. %s <b>%s</b> [%s, %s]\n", i+1, confidenceIcon(q.ConfidenceLevel),
			escapeHTML(q.Title), escapeHTML(q.Platform), q.Difficulty)
		fmt.Fprintf(&b, "   last: %s, revisions: %d", wayLabel(q.WayOfSolving), q.RevisionCount)
		if e.DaysOverdue > 0 {
			fmt.Fprintf(&b, ", overdue %d d", e.DaysOverdue)
		}
		b.WriteString("\n")
	}

	s := p.Stats
	fmt.Fprintf(&b, "\nTotal %d: 🔴 %d 🟡 %d 🟢 %d\nOverdue: %d, needs practice: %d",
		s.Total, s.LowConfidence, s.MediumConfidence, s.HighConfidence, s.Overdue, s.NeedsPractice)

	return b.String()
}

func formatQuestionList(questions []*models.TrackedQuestion, loc *time.Location) string {
	if len(questions) == 0 {
		return "You are not tracking any questions yet. Add one with /add"
	}

	var b strings.Builder
	b.WriteString("📖 <b>Your questions</b>\n\n")
	for i, q := range questions {
		next := "now"
		if q.NextRevisionAt != nil {
			next = formatDay(*q.NextRevisionAt, loc)
		}
		fmt.Fprintf(&b, "%d. %s %s [%s, %s], next: %s\n", i+1, confidenceIcon(q.ConfidenceLevel),
			escapeHTML(q.Title), escapeHTML(q.Platform), q.Difficulty, next)
	}
	return b.String()
}

func formatHistory(q *models.TrackedQuestion, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 <b>%s</b> [%s, %s]\n", escapeHTML(q.Title), escapeHTML(q.Platform), q.Difficulty)
	if len(q.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", escapeHTML(strings.Join(q.Tags, ", ")))
	}
	if len(q.Companies) > 0 {
		fmt.Fprintf(&b, "Companies: %s\n", escapeHTML(strings.Join(q.Companies, ", ")))
	}
	for _, company := range q.CompanyTags.Companies() {
		fmt.Fprintf(&b, "   %s: %s\n", escapeHTML(company), escapeHTML(strings.Join(q.CompanyTags[company], ", ")))
	}
	fmt.Fprintf(&b, "First solved: %s, %s\n", formatDay(q.CreatedAt, loc), wayLabel(q.WayOfSolving))

	if len(q.RevisionHistory) == 0 {
		b.WriteString("No revisions yet.")
		return b.String()
	}

	b.WriteString("\n")
	for _, e := range q.RevisionHistory {
		fmt.Fprintf(&b, "%d. %s %s %s, +%d d\n", e.Position+1, formatDay(e.RevisedAt, loc),
			confidenceIcon(e.ConfidenceLevel), wayLabel(e.WayOfSolving), e.IntervalUsed)
	}
	return b.String()
}

func formatRevision(q *models.TrackedQuestion, res revision.Result, loc *time.Location) string {
	text := fmt.Sprintf("✅ <b>%s</b>: next revision on %s (in %d days).",
		escapeHTML(q.Title), formatDay(res.NextRevisionAt, loc), res.IntervalUsed)
	if !res.ShouldIncrementCount {
		if res.EffectiveRevisionCount == 0 {
			text += "\n↩️ Schedule restarted from the beginning."
		} else {
			text += "\n↩️ Stepped back one revision."
		}
	}
	return text
}

func formatReminderMessage(stats plan.Stats) string {
	word := "questions"
	if stats.Total == 1 {
		word = "question"
	}
	text := fmt.Sprintf("🔔 You have %d %s to revise today", stats.Total, word)
	if stats.Overdue > 0 {
		text += fmt.Sprintf(", %d overdue", stats.Overdue)
	}
	return text + ".\nUse /today to start."
}

// reminderDue reports whether the user's reminder hour matches now in the
// user's timezone. Reminders fire once per hourly tick.
func reminderDue(user *models.User, now time.Time) bool {
	if user.ReminderTime == "" {
		return false
	}
	hour, _, err := utils.ParseClock(user.ReminderTime)
	if err != nil {
		return false
	}
	local, err := utils.ToUserTimezone(now, user.Timezone)
	if err != nil {
		local = now.UTC()
	}
	return local.Hour() == hour
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
