package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"problem-recs/api/internal/logger"
	"problem-recs/api/internal/util"
)

const (
	classifyTranscriptLimit = 3000

	classifySystemPrompt = `You classify mathematics study material against a fixed topic catalog.
Return ONLY a JSON array of up to 5 topic ids (numbers), most relevant first, e.g. [4, 5, 6].
Return [] if nothing in the catalog matches. Any text outside the JSON array is an error.`
)

type Classifier struct {
	topics     TopicSource
	llm        Completer
	log        *logger.Logger
	dbTimeout  time.Duration
	llmTimeout time.Duration
}

func NewClassifier(topics TopicSource, llm Completer, log *logger.Logger, dbTimeout, llmTimeout time.Duration) *Classifier {
	return &Classifier{
		topics:     topics,
		llm:        llm,
		log:        log.With("stage", "classify"),
		dbTimeout:  dbTimeout,
		llmTimeout: llmTimeout,
	}
}

// Classify загружает каталог заново (без кэша) и выбирает темы.
// Любой сбой здесь мягкий: результат — пустой набор тем.
func (c *Classifier) Classify(ctx context.Context, tr Transcript) Outcome[TopicSet] {
	dctx, cancel := context.WithTimeout(ctx, c.dbTimeout)
	catalog, err := c.topics.ListTopics(dctx)
	cancel()
	if err != nil {
		c.log.Warn("topic catalog unavailable, skipping classification", "error", err)
		return Fallback[TopicSet]("catalog fetch failed: " + err.Error())
	}
	return c.ClassifyWith(ctx, tr, catalog)
}

func (c *Classifier) ClassifyWith(ctx context.Context, tr Transcript, catalog []TopicCatalogEntry) Outcome[TopicSet] {
	if len(catalog) == 0 {
		return Fallback[TopicSet]("empty catalog")
	}
	if c.llm == nil {
		return Fallback[TopicSet]("no classification engine")
	}

	lctx, cancel := context.WithTimeout(ctx, c.llmTimeout)
	defer cancel()

	raw, err := c.llm.CompleteJSON(lctx, classifySystemPrompt, classifyPrompt(tr, catalog))
	if err != nil {
		c.log.Warn("classification call failed", "error", err)
		return Fallback[TopicSet]("classification call failed: " + err.Error())
	}

	out := parseTopicIDs(raw, catalog)
	if out.IsFallback() {
		c.log.Warn("classification output rejected", "reason", out.Reason, "raw", clip(raw, 200))
		return out
	}
	c.log.Info("topics identified", "topics", []int(out.Value), "catalog_size", len(catalog))
	return out
}

func classifyPrompt(tr Transcript, catalog []TopicCatalogEntry) string {
	excerpt, _ := util.TruncateRunes(tr.Text, classifyTranscriptLimit)

	var b strings.Builder
	b.WriteString("Uploaded material:\n\"\"\"\n")
	b.WriteString(excerpt)
	b.WriteString("\n\"\"\"\n\nTopic catalog:\n")
	for _, t := range catalog {
		fmt.Fprintf(&b, "%d. %s - %s (%s)\n", t.ID, t.MainTopic, t.Subtopic, t.Course)
	}
	b.WriteString("\nReturn up to 5 relevant topic ids as a JSON array of numbers.")
	return b.String()
}

// parseTopicIDs — единственная точка разбора ответа классификатора.
// Оставляет только целые id в [1, len(catalog)], которые есть в снимке каталога; без повторов, не больше MaxTopics.
func parseTopicIDs(raw string, catalog []TopicCatalogEntry) Outcome[TopicSet] {
	var arr []any
	if err := json.Unmarshal([]byte(util.StripCodeFences(raw)), &arr); err != nil {
		return Fallback[TopicSet]("not a JSON array: " + err.Error())
	}

	known := make(map[int]struct{}, len(catalog))
	for _, t := range catalog {
		known[t.ID] = struct{}{}
	}

	ids := make(TopicSet, 0, MaxTopics)
	seen := make(map[int]struct{}, MaxTopics)
	for _, v := range arr {
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			continue
		}
		id := int(f)
		if id < 1 || id > len(catalog) {
			continue
		}
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		if len(ids) == MaxTopics {
			break
		}
	}
	return Ok(ids)
}

func clip(s string, n int) string {
	out, _ := util.TruncateRunes(s, n)
	return out
}
