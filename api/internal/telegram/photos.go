package telegram

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
)

func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	ph := msg.Photo[len(msg.Photo)-1]
	file, err := r.Bot.GetFile(tgbotapi.FileConfig{FileID: ph.FileID})
	if err != nil {
		r.send(cid, errorText(err))
		return
	}
	imgBytes, err := download(file.Link(r.Bot.Token))
	if err != nil {
		r.Log.Warn("telegram download failed", "chat_id", cid, "error", err)
		r.send(cid, "Не удалось скачать фото, попробуйте ещё раз.")
		return
	}

	key := "chat:" + fmt.Sprint(cid)
	if msg.MediaGroupID != "" {
		key = "grp:" + msg.MediaGroupID
	}

	bi, _ := batches.LoadOrStore(key, &photoBatch{
		ChatID: cid, Key: key, MediaGroupID: msg.MediaGroupID, images: make([][]byte, 0, 4),
	})
	b := bi.(*photoBatch)

	b.mu.Lock()
	b.images = append(b.images, imgBytes)
	first := len(b.images) == 1
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(debounce, func() { r.processBatch(key) })
	b.mu.Unlock()

	if first {
		r.send(cid, r.PhotoAcceptedText())
	}
}

func (r *Router) processBatch(key string) {
	bi, ok := batches.Load(key)
	if !ok {
		return
	}
	b := bi.(*photoBatch)

	b.mu.Lock()
	images := append([][]byte(nil), b.images...)
	chatID := b.ChatID
	batches.Delete(key)
	b.mu.Unlock()

	if len(images) == 0 {
		return
	}

	merged, err := combineAsOne(images)
	if err != nil {
		r.send(chatID, "Не удалось склеить страницы: "+err.Error())
		return
	}
	r.recommend(chatID, merged)
}

func (r *Router) recommend(chatID int64, image []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	provider := r.EngManager.Get(chatID)
	p, err := r.Pipeline(provider)
	if err != nil {
		r.send(chatID, errorText(err))
		return
	}
	res, err := p.Run(ctx, recommend.Upload{Image: image, MIME: "image/jpeg"})
	if err != nil {
		r.Log.Warn("telegram recommendation failed", "chat_id", chatID, "llm", provider, "error", err)
		r.send(chatID, errorText(err))
		return
	}
	for _, part := range formatResult(res) {
		r.sendMarkdown(chatID, part)
	}

	if r.Uploads != nil {
		if err := r.Uploads.Insert(ctx, &store.UploadLog{
			UserID:          userID(chatID),
			Source:          "telegram",
			ExtractedLength: res.ExtractedLength,
			PageCount:       1,
			TopicIDs:        res.IdentifiedTopics,
			ProblemIDs:      res.ProblemIDs(),
		}); err != nil {
			r.Log.Warn("upload log write failed", "error", err)
		}
	}
}

// combineAsOne склеивает страницы сверху вниз в одну JPEG, ужимая до maxPixels.
func combineAsOne(images [][]byte) ([]byte, error) {
	decoded := make([]image.Image, 0, len(images))
	maxW, sumH := 0, 0
	for _, b := range images {
		img, err := decode(b)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, img)
		bounds := img.Bounds()
		maxW = max(maxW, bounds.Dx())
		sumH += bounds.Dy()
	}
	if maxW == 0 || sumH == 0 {
		return nil, fmt.Errorf("пустые изображения")
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	y := 0
	for _, img := range decoded {
		w, h := img.Bounds().Dx(), img.Bounds().Dy()
		x := (maxW - w) / 2
		draw.Draw(dst, image.Rect(x, y, x+w, y+h), img, img.Bounds().Min, draw.Over)
		y += h
	}

	final := image.Image(dst)
	if totalPx := maxW * sumH; totalPx > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(totalPx))
		newW := max(1, int(float64(maxW)*scale+0.5))
		newH := max(1, int(float64(sumH)*scale+0.5))
		final = scaleDownNN(dst, newW, newH)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, final, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decode(b []byte) (image.Image, error) {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return jpeg.Decode(bytes.NewReader(b))
	}
	if len(b) >= 8 && string(b[1:4]) == "PNG" {
		return png.Decode(bytes.NewReader(b))
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	return img, err
}

func scaleDownNN(src image.Image, newW, newH int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	for y := 0; y < newH; y++ {
		sy := sb.Min.Y + (y*srcH)/newH
		for x := 0; x < newW; x++ {
			sx := sb.Min.X + (x*srcW)/newW
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

func download(url string) ([]byte, error) {
	resp, err := httpClient().Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
