package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/romanzh1/dsa-revision-tracker/internal/models"
	"github.com/romanzh1/dsa-revision-tracker/internal/service/plan"
	"github.com/romanzh1/dsa-revision-tracker/internal/service/revision"
	"github.com/romanzh1/dsa-revision-tracker/pkg/utils"
)

type Service interface {
	RegisterUser(ctx context.Context, telegramID int64, username string) error
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	UserExists(ctx context.Context, telegramID int64) (bool, error)
	UpdateTimezone(ctx context.Context, telegramID int64, timezone string) error
	UpdateReminderTime(ctx context.Context, telegramID int64, reminderTime string) error
	GetAllUsersForReminders(ctx context.Context) ([]*models.User, error)

	AddQuestion(ctx context.Context, in models.NewQuestion) (*models.TrackedQuestion, error)
	ReviseQuestion(ctx context.Context, telegramID int64, questionID string, outcome models.RevisionOutcome) (*models.TrackedQuestion, revision.Result, error)
	UpdateConfidence(ctx context.Context, telegramID int64, questionID string, level models.ConfidenceLevel) error
	GetQuestion(ctx context.Context, telegramID int64, questionID string) (*models.TrackedQuestion, error)
	ListQuestions(ctx context.Context, telegramID int64) ([]*models.TrackedQuestion, error)
	ResetQuestions(ctx context.Context, telegramID int64) (int64, error)

	GetTodayPlan(ctx context.Context, telegramID int64) (plan.DailyPlan, error)
	RunDailyCron(ctx context.Context) error
}

type TelegramHandler struct {
	api      *tgbotapi.BotAPI
	service  Service
	location *time.Location
}

// NewTelegramHandler creates the bot. location drives the midnight plan job.
func NewTelegramHandler(token string, service Service, location *time.Location) (*TelegramHandler, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	return &TelegramHandler{
		api:      api,
		service:  service,
		location: location,
	}, nil
}

func (h *TelegramHandler) handleCommand(ctx context.Context, update tgbotapi.Update) {
	switch update.Message.Command() {
	case "start":
		h.handleStart(ctx, update)
	case "help":
		h.handleHelp(ctx, update)
	case "add":
		h.handleAdd(ctx, update)
	case "today":
		h.handleToday(ctx, update)
	case "list":
		h.handleList(ctx, update)
	case "history":
		h.handleHistory(ctx, update)
	case "confidence":
		h.handleConfidence(ctx, update)
	case "timezone":
		h.handleTimezone(ctx, update)
	case "reminder":
		h.handleReminder(ctx, update)
	case "reset":
		h.handleReset(ctx, update)
	default:
		h.sendMessage(update.Message.Chat.ID, "Unknown command. Use /help")
	}
}

func (h *TelegramHandler) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := h.api.GetUpdatesChan(u)

	zap.S().Info("bot started")

	go h.startReminderScheduler()
	go h.startDailyCron()

	for update := range updates {
		if update.Message == nil && update.CallbackQuery == nil {
			continue
		}

		h.handleUpdate(update)
	}
}

func (h *TelegramHandler) handleUpdate(update tgbotapi.Update) {
	ctx := context.Background()

	switch {
	case update.Message != nil:
		if update.Message.From == nil {
			zap.S().Warn("received message from nil user")
			return
		}
		if update.Message.IsCommand() {
			h.handleCommand(ctx, update)
			return
		}
		h.sendMessage(update.Message.Chat.ID, "I only understand commands. Use /help to see them.")
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From == nil || update.CallbackQuery.Message == nil {
			zap.S().Warn("received callback without user or message")
			return
		}
		h.handleCallback(ctx, update)
	}
}

// requireUser reports whether the sender is registered, answering the chat
// when not.
func (h *TelegramHandler) requireUser(ctx context.Context, userID, chatID int64) bool {
	exists, err := h.service.UserExists(ctx, userID)
	if err != nil {
		zap.L().Error("check user exists", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Something went wrong. Try again later.")
		return false
	}

	if !exists {
		h.sendMessage(chatID, "Register first with /start")
		return false
	}
	return true
}

// replyError sends the user-facing text for err and logs errors that are not
// caused by user input.
func (h *TelegramHandler) replyError(chatID, userID int64, op string, err error) {
	text, expected := userMessage(err)
	if expected {
		zap.L().Debug(op, zap.Error(err), zap.Int64("telegram_id", userID))
	} else {
		zap.L().Error(op, zap.Error(err), zap.Int64("telegram_id", userID))
	}
	h.sendMessage(chatID, text)
}

// userLocation returns the user's timezone, or the bot default when it
// cannot be loaded.
func (h *TelegramHandler) userLocation(ctx context.Context, userID int64) *time.Location {
	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		zap.L().Warn("get user for timezone", zap.Error(err), zap.Int64("telegram_id", userID))
		return h.location
	}

	loc, err := utils.LoadLocation(user.Timezone)
	if err != nil {
		return h.location
	}
	return loc
}

// questionByNumber resolves the 1-based position shown by /list.
func (h *TelegramHandler) questionByNumber(ctx context.Context, userID int64, arg string) (*models.TrackedQuestion, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("parse question number %q", arg)
	}

	questions, err := h.service.ListQuestions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if n > len(questions) {
		return nil, fmt.Errorf("question number %d out of range (total: %d)", n, len(questions))
	}
	return questions[n-1], nil
}

func (h *TelegramHandler) handleStart(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	exists, err := h.service.UserExists(ctx, userID)
	if err != nil {
		zap.L().Error("check user exists", zap.Error(err), zap.Int64("telegram_id", userID))
		h.sendMessage(chatID, "Something went wrong. Try again later.")
		return
	}

	if exists {
		h.sendMessage(chatID, "Welcome back! Use /today to see what to revise.")
		return
	}

	username := update.Message.From.UserName
	if err := h.service.RegisterUser(ctx, userID, username); err != nil {
		zap.L().Error("register user", zap.Error(err), zap.Int64("telegram_id", userID), zap.String("username", username))
		h.sendMessage(chatID, "Registration failed. Try again later.")
		return
	}

	text := `Hi! 👋

I keep track of the coding problems you solve and tell you when to revise them.
Add a problem with /add, then check /today every day.

Set your timezone with /timezone so "today" matches your day.`

	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) handleHelp(_ context.Context, update tgbotapi.Update) {
	text := `📚 <b>DSA Revision Tracker</b>

/start - register
/add platform | difficulty | title | way | confidence [| slug | tags | companies] - track a solved problem
   way: self, hints, ai, watched
   confidence: low, medium, high
   companies: Google: array, dp; Amazon
   example: /add LeetCode | Easy | Two Sum | hints | medium | two-sum | array, hash-table | Google: array; Amazon
/today - today's revision plan
/list - all tracked problems
/history N - revisions of problem N from /list
/confidence N level - change confidence of problem N without rescheduling
/timezone Area/City - set your timezone
/reminder HH:MM or off - daily reminder time
/reset - delete all tracked problems
/help - this message`

	h.sendMessage(update.Message.Chat.ID, text)
}

func (h *TelegramHandler) handleAdd(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	in, err := parseAddArgs(userID, update.Message.CommandArguments())
	if err != nil {
		h.sendMessage(chatID, escapeHTML(err.Error())+"\n\nSee /help for the format.")
		return
	}

	question, err := h.service.AddQuestion(ctx, in)
	if err != nil {
		h.replyError(chatID, userID, "add question", err)
		return
	}

	loc := h.userLocation(ctx, userID)
	text := fmt.Sprintf("✅ Added <b>%s</b>. First revision on %s.",
		escapeHTML(question.Title), formatDay(*question.NextRevisionAt, loc))
	h.sendMessage(chatID, text)
}

func (h *TelegramHandler) handleToday(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	dailyPlan, err := h.service.GetTodayPlan(ctx, userID)
	if err != nil {
		h.replyError(chatID, userID, "get today plan", err)
		return
	}

	if len(dailyPlan.Questions) == 0 {
		h.sendMessage(chatID, formatPlan(dailyPlan))
		return
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, e := range dailyPlan.Questions {
		data := encodeCallback(callbackData{Action: actionRevise, QuestionID: e.Question.ID})
		button := tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Revise %d", i+1), data)
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(button))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(buttons...)
	h.sendMessageWithKeyboard(chatID, formatPlan(dailyPlan), keyboard)
}

func (h *TelegramHandler) handleList(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	questions, err := h.service.ListQuestions(ctx, userID)
	if err != nil {
		h.replyError(chatID, userID, "list questions", err)
		return
	}

	h.sendMessage(chatID, formatQuestionList(questions, h.userLocation(ctx, userID)))
}

func (h *TelegramHandler) handleHistory(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	args := strings.Fields(update.Message.CommandArguments())
	if len(args) != 1 {
		h.sendMessage(chatID, "Usage: /history N\n\nN is the number from /list")
		return
	}

	listed, err := h.questionByNumber(ctx, userID, args[0])
	if err != nil {
		h.sendMessage(chatID, "No such question. Check the numbers in /list")
		return
	}

	question, err := h.service.GetQuestion(ctx, userID, listed.ID)
	if err != nil {
		h.replyError(chatID, userID, "get question", err)
		return
	}

	h.sendMessage(chatID, formatHistory(question, h.userLocation(ctx, userID)))
}

func (h *TelegramHandler) handleConfidence(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	args := strings.Fields(update.Message.CommandArguments())
	if len(args) != 2 {
		h.sendMessage(chatID, "Usage: /confidence N low|medium|high\n\nN is the number from /list")
		return
	}

	level, err := parseConfidence(args[1])
	if err != nil {
		h.replyError(chatID, userID, "parse confidence", err)
		return
	}

	question, err := h.questionByNumber(ctx, userID, args[0])
	if err != nil {
		h.sendMessage(chatID, "No such question. Check the numbers in /list")
		return
	}

	if err := h.service.UpdateConfidence(ctx, userID, question.ID, level); err != nil {
		h.replyError(chatID, userID, "update confidence", err)
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("%s Confidence for <b>%s</b> set to %s. The schedule is unchanged.",
		confidenceIcon(level), escapeHTML(question.Title), strings.ToLower(string(level))))
}

func (h *TelegramHandler) handleTimezone(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	timezone := strings.TrimSpace(update.Message.CommandArguments())
	if timezone == "" {
		user, err := h.service.GetUser(ctx, userID)
		if err != nil {
			h.replyError(chatID, userID, "get user", err)
			return
		}
		h.sendMessage(chatID, fmt.Sprintf("Your timezone: %s\n\nChange it with /timezone Area/City", escapeHTML(user.Timezone)))
		return
	}

	if err := h.service.UpdateTimezone(ctx, userID, timezone); err != nil {
		h.replyError(chatID, userID, "update timezone", err)
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("✅ Timezone set to %s", escapeHTML(timezone)))
}

func (h *TelegramHandler) handleReminder(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	value := strings.TrimSpace(update.Message.CommandArguments())
	if value == "" {
		user, err := h.service.GetUser(ctx, userID)
		if err != nil {
			h.replyError(chatID, userID, "get user", err)
			return
		}
		current := user.ReminderTime
		if current == "" {
			current = "off"
		}
		h.sendMessage(chatID, fmt.Sprintf("Daily reminder: %s\n\nChange it with /reminder HH:MM or /reminder off", current))
		return
	}

	if err := h.service.UpdateReminderTime(ctx, userID, value); err != nil {
		h.replyError(chatID, userID, "update reminder time", err)
		return
	}

	if strings.EqualFold(value, "off") {
		h.sendMessage(chatID, "🔕 Reminders turned off")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🔔 Reminder set to %s", escapeHTML(value)))
}

func (h *TelegramHandler) handleReset(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !h.requireUser(ctx, userID, chatID) {
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Delete everything", encodeCallback(callbackData{Action: actionResetConfirm})),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", encodeCallback(callbackData{Action: actionResetCancel})),
		),
	)

	h.sendMessageWithKeyboard(chatID, "⚠️ This deletes all tracked problems and their revision history. Continue?", keyboard)
}

func (h *TelegramHandler) handleCallback(ctx context.Context, update tgbotapi.Update) {
	callback := update.CallbackQuery
	chatID := callback.Message.Chat.ID

	data, err := decodeCallback(callback.Data)
	if err != nil {
		zap.L().Warn("unknown callback data", zap.String("data", callback.Data), zap.Int64("user_id", callback.From.ID))
		h.sendMessage(chatID, "Unknown action. Use /help to see available commands.")
	} else {
		switch data.Action {
		case actionRevise:
			h.handleRevisePick(ctx, callback, data)
		case actionConfidence:
			h.handleConfidencePick(callback, data)
		case actionWay:
			h.handleWayPick(ctx, callback, data)
		case actionResetConfirm:
			h.handleResetConfirm(ctx, callback)
		case actionResetCancel:
			h.sendMessage(chatID, "Nothing was deleted.")
		}
	}

	callbackConfig := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(callbackConfig); err != nil {
		zap.L().Error("send callback answer", zap.Error(err), zap.String("callback_id", callback.ID))
	}
}

func (h *TelegramHandler) handleRevisePick(ctx context.Context, callback *tgbotapi.CallbackQuery, data callbackData) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	question, err := h.service.GetQuestion(ctx, userID, data.QuestionID)
	if err != nil {
		h.replyError(chatID, userID, "get question for revision", err)
		return
	}

	button := func(label string, level models.ConfidenceLevel) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(label, encodeCallback(callbackData{
			Action:     actionConfidence,
			QuestionID: question.ID,
			Confidence: level,
		}))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button("🔴 Low", models.ConfidenceLow),
			button("🟡 Medium", models.ConfidenceMedium),
			button("🟢 High", models.ConfidenceHigh),
		),
	)

	text := fmt.Sprintf("🧠 <b>%s</b> [%s, %s]\n\nSolve it again, then tell me how confident you felt:",
		escapeHTML(question.Title), escapeHTML(question.Platform), question.Difficulty)
	h.sendMessageWithKeyboard(chatID, text, keyboard)
}

func (h *TelegramHandler) handleConfidencePick(callback *tgbotapi.CallbackQuery, data callbackData) {
	button := func(label string, way models.WayOfSolving) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(label, encodeCallback(callbackData{
			Action:     actionWay,
			QuestionID: data.QuestionID,
			Confidence: data.Confidence,
			Way:        way,
		}))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button("💪 Myself", models.WaySolvedSelf),
			button("💡 Hints", models.WayTookHints),
		),
		tgbotapi.NewInlineKeyboardRow(
			button("🤖 AI", models.WayUsedAI),
			button("📺 Watched", models.WayWatchedSolution),
		),
	)

	h.sendMessageWithKeyboard(callback.Message.Chat.ID, "How did you solve it?", keyboard)
}

func (h *TelegramHandler) handleWayPick(ctx context.Context, callback *tgbotapi.CallbackQuery, data callbackData) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	outcome := models.RevisionOutcome{ConfidenceLevel: data.Confidence, WayOfSolving: data.Way}
	question, result, err := h.service.ReviseQuestion(ctx, userID, data.QuestionID, outcome)
	if err != nil {
		h.replyError(chatID, userID, "revise question", err)
		return
	}

	h.sendMessage(chatID, formatRevision(question, result, h.userLocation(ctx, userID)))
}

func (h *TelegramHandler) handleResetConfirm(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	deleted, err := h.service.ResetQuestions(ctx, userID)
	if err != nil {
		h.replyError(chatID, userID, "reset questions", err)
		return
	}

	h.sendMessage(chatID, fmt.Sprintf("🗑 Deleted %d questions.", deleted))
}

func (h *TelegramHandler) startDailyCron() {
	getNextMidnight := func() time.Time {
		now := utils.TruncateToMinutes(time.Now().In(h.location))
		today := utils.StartOfDay(now)

		return today.AddDate(0, 0, 1)
	}

	nextRun := getNextMidnight()
	timer := time.NewTimer(time.Until(nextRun))

	var lastRunDate time.Time

	for {
		<-timer.C

		now := utils.TruncateToMinutes(time.Now().In(h.location))
		currentDate := utils.StartOfDay(now)

		if now.Hour() == 0 && now.Minute() == 0 && !utils.DatesEqual(lastRunDate, currentDate) {
			ctx := context.Background()

			if err := h.service.RunDailyCron(ctx); err != nil {
				zap.L().Error("run daily cron", zap.Error(err))
			} else {
				lastRunDate = currentDate
				zap.S().Info("daily cron completed successfully")
			}
		}

		nextRun = getNextMidnight()
		timer.Reset(time.Until(nextRun))
	}
}

func (h *TelegramHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := h.api.Send(msg); err != nil {
		zap.L().Error("send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (h *TelegramHandler) sendMessageWithKeyboard(chatID int64, text string, keyboard interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	if _, err := h.api.Send(msg); err != nil {
		zap.L().Error("send message with keyboard", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (h *TelegramHandler) startReminderScheduler() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		h.checkAndSendReminders()
	}
}

func (h *TelegramHandler) checkAndSendReminders() {
	ctx := context.Background()
	now := time.Now()

	users, err := h.service.GetAllUsersForReminders(ctx)
	if err != nil {
		zap.L().Error("get all users for reminders", zap.Error(err))
		return
	}

	for _, user := range users {
		if !reminderDue(user, now) {
			continue
		}

		dailyPlan, err := h.service.GetTodayPlan(ctx, user.TelegramID)
		if err != nil {
			zap.L().Error("get today plan for reminder", zap.Error(err), zap.Int64("telegram_id", user.TelegramID))
			continue
		}

		if dailyPlan.Stats.Total > 0 {
			h.sendMessage(user.TelegramID, formatReminderMessage(dailyPlan.Stats))
		}
	}
}
