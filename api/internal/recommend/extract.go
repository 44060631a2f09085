package recommend

import (
	"context"
	"errors"
	"strings"
	"time"

	"problem-recs/api/internal/logger"
)

const extractSystemPrompt = `You transcribe student-uploaded study material.
Transcribe ALL mathematical content visible in the image: problem statements, definitions, worked steps, and answers.
Write every displayed equation in display-math notation $$...$$ and inline math in $...$.
Do not solve, summarize, or comment. Output only the transcription as plain text.`

// Upload — то, что пришло от клиента: картинка или текст, уже извлечённый на клиенте (PDF).
type Upload struct {
	Image         []byte
	MIME          string
	IsPDF         bool
	ExtractedText string
}

type Extractor struct {
	vision  Vision
	log     *logger.Logger
	timeout time.Duration
}

func NewExtractor(vision Vision, log *logger.Logger, timeout time.Duration) *Extractor {
	return &Extractor{vision: vision, log: log.With("stage", "extract"), timeout: timeout}
}

// Extract превращает загрузку в Transcript. Ретраев нет: одна неудачная попытка завершает запрос.
func (x *Extractor) Extract(ctx context.Context, in Upload) (Transcript, error) {
	if in.IsPDF {
		// страницы режет клиент, здесь только считаем разделители
		tr := NewTranscript(in.ExtractedText, CountPages(in.ExtractedText))
		if tr.Length < MinTranscriptLength {
			return Transcript{}, &ContentError{Length: tr.Length, Min: MinTranscriptLength}
		}
		x.log.Debug("pre-extracted text accepted", "length", tr.Length, "pages", tr.PageCount)
		return tr, nil
	}

	if len(in.Image) == 0 {
		return Transcript{}, &ContentError{Length: 0, Min: MinTranscriptLength}
	}
	if x.vision == nil {
		return Transcript{}, &ConfigurationError{Err: errors.New("no vision engine")}
	}

	cctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	start := time.Now()
	text, err := x.vision.Transcribe(cctx, extractSystemPrompt, in.Image, in.MIME)
	if err != nil {
		x.log.Warn("transcription failed", "error", err, "elapsed", time.Since(start))
		return Transcript{}, transcriptionErr(err)
	}

	tr := NewTranscript(strings.TrimSpace(text), 1)
	if tr.Length < MinTranscriptLength {
		return Transcript{}, &ContentError{Length: tr.Length, Min: MinTranscriptLength}
	}
	x.log.Info("image transcribed", "length", tr.Length, "elapsed", time.Since(start))
	return tr, nil
}
