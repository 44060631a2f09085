package telegram

import (
	"errors"
	"fmt"
	"strings"

	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
	"problem-recs/api/internal/util"
)

// лимит Telegram 4096, оставляем запас на разметку
const maxMessage = 3900

// formatResult режет ответ на сообщения: сводка, затем по задаче на сообщение.
func formatResult(res *recommend.Result) []string {
	var head strings.Builder
	head.WriteString("📄 *Загружено:* ")
	head.WriteString(esc(res.UploadSummary))
	head.WriteString("\n\n")
	head.WriteString(esc(res.Message))
	out := []string{head.String()}

	for i, rec := range res.Recommendations {
		var b strings.Builder
		fmt.Fprintf(&b, "*%d. [%s]*\n%s\n", i+1, rec.Difficulty, esc(rec.ProblemText))
		for _, sp := range rec.Subproblems {
			fmt.Fprintf(&b, "\n(%s) %s", esc(sp.Key), esc(sp.ProblemText))
		}
		msg, cut := util.TruncateRunes(b.String(), maxMessage)
		if cut {
			msg += "…"
		}
		out = append(out, msg)
	}
	return out
}

func formatHistory(logs []store.UploadLog) string {
	if len(logs) == 0 {
		return "Загрузок пока не было."
	}
	var b strings.Builder
	b.WriteString("Последние загрузки:")
	for _, l := range logs {
		fmt.Fprintf(&b, "\n• %s, тем: %d, задач: %d", l.CreatedAt.Format("02.01 15:04"), len(l.TopicIDs), len(l.ProblemIDs))
	}
	return b.String()
}

// errorText — понятное пользователю сообщение по типу ошибки.
func errorText(err error) string {
	var (
		cfg  *recommend.ConfigurationError
		cont *recommend.ContentError
		tr   *recommend.TranscriptionError
	)
	switch {
	case errors.As(err, &cfg):
		return "⚠️ Сервис временно недоступен. Попробуйте позже."
	case errors.As(err, &cont):
		return "📷 На фото слишком мало математики. Пришлите более чёткий снимок или другую страницу."
	case errors.As(err, &tr):
		return "⚠️ Не удалось распознать фото. Попробуйте ещё раз."
	}
	return "⚠️ Не удалось подобрать задачи. Попробуйте ещё раз."
}

// лёгкое экранирование для Markdown
func esc(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "[", "\\[")
	return s
}
