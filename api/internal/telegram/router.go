package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"problem-recs/api/internal/llm"
	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
)

type Runner interface {
	Run(ctx context.Context, in recommend.Upload) (*recommend.Result, error)
}

type UploadLogger interface {
	Insert(ctx context.Context, l *store.UploadLog) error
	RecentByUser(ctx context.Context, userID string, limit int) ([]store.UploadLog, error)
}

type Router struct {
	Bot        *tgbotapi.BotAPI
	Engines    *llm.Engines
	EngManager *llm.Manager
	// Pipeline отдаёт конвейер по имени провайдера
	Pipeline func(llmName string) (Runner, error)
	Uploads  UploadLogger
	Log      *logger.Logger
	Timeout  time.Duration
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(upd)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
	if upd.Message.Document != nil {
		r.send(upd.Message.Chat.ID, "Пришлите страницу как фото (не файлом). PDF пока принимаются только через веб-загрузку.")
	}
}

func (r *Router) HandleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start":
		r.send(cid, "Пришли фото конспекта или задачи — подберу похожие задачи для практики.\nКоманды: /health, /engine, /history")
	case "health":
		r.send(cid, "✅ OK")
	case "engine":
		r.handleEngineCommand(cid, upd.Message.CommandArguments())
	case "history":
		r.handleHistory(cid)
	default:
		r.send(cid, "Неизвестная команда")
	}
}

// handleEngineCommand переключает провайдера для чата: /engine openai | /engine gemini.
func (r *Router) handleEngineCommand(chatID int64, args string) {
	name := strings.ToLower(strings.TrimSpace(args))
	if name == "" {
		r.send(chatID, "Текущий движок: "+r.EngManager.Get(chatID)+"\nИспользование: /engine {openai|gemini}")
		return
	}
	eng, err := r.Engines.GetEngine(name)
	if err != nil {
		r.send(chatID, "Неизвестный движок. Доступны: openai | gemini")
		return
	}
	r.EngManager.Set(chatID, eng.Name())
	r.send(chatID, fmt.Sprintf("✅ Движок: %s (%s)", eng.Name(), eng.GetModel()))
}

func (r *Router) handleHistory(chatID int64) {
	if r.Uploads == nil {
		r.send(chatID, "История недоступна.")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logs, err := r.Uploads.RecentByUser(ctx, userID(chatID), 5)
	if err != nil {
		r.Log.Warn("upload history failed", "chat_id", chatID, "error", err)
		r.send(chatID, "Не удалось загрузить историю.")
		return
	}
	r.send(chatID, formatHistory(logs))
}

func userID(chatID int64) string { return fmt.Sprintf("tg:%d", chatID) }

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	_, _ = r.Bot.Send(msg)
}

func (r *Router) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := r.Bot.Send(msg); err != nil {
		// разметка не прошла — шлём как есть
		r.send(chatID, text)
	}
}

// PhotoAcceptedText — первый ответ после получения фото/первой страницы альбома.
func (r *Router) PhotoAcceptedText() string {
	return "Фото принято. Если материал на нескольких фото — просто пришлите их подряд, я склею страницы перед обработкой."
}
