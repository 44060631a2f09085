package handle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"problem-recs/api/internal/apierr"
	"problem-recs/api/internal/recommend"
	"problem-recs/api/internal/store"
	"problem-recs/api/internal/util"
)

// multipart-обвязка поверх самого файла
const formOverhead = 1 << 20

// Upload — POST /recommendations/upload (multipart: file, userId, isPDF, extractedText, llm).
func (h *Handle) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, apierr.New(http.StatusBadRequest, "bad_request",
				fmt.Errorf("upload exceeds %d MB", h.maxUpload>>20)))
			return
		}
		writeError(w, apierr.New(http.StatusBadRequest, "bad_request", errors.New("expected multipart/form-data body")))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	in, userID, aerr := h.readUpload(r)
	if aerr != nil {
		writeError(w, aerr)
		return
	}

	runner, err := h.runners(r.FormValue("llm"))
	if err != nil {
		writeError(w, apierr.New(http.StatusBadRequest, "bad_request", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout(r))
	defer cancel()

	start := time.Now()
	res, err := runner.Run(ctx, in)
	if err != nil {
		e := toAPIError(err)
		h.log.Warn("recommendation failed", "status", e.Status, "code", e.Code, "error", err, "elapsed", time.Since(start))
		writeError(w, e)
		return
	}

	writeJSON(w, http.StatusOK, res)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	h.afterResponse(in, userID, res)
}

func (h *Handle) readUpload(r *http.Request) (recommend.Upload, string, *apierr.Error) {
	userID := strings.TrimSpace(r.FormValue("userId"))
	isPDF, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue("isPDF")))

	if isPDF {
		return recommend.Upload{IsPDF: true, ExtractedText: r.FormValue("extractedText")}, userID, nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return recommend.Upload{}, userID, apierr.New(http.StatusBadRequest, "bad_request", errors.New("no file uploaded"))
		}
		return recommend.Upload{}, userID, apierr.New(http.StatusBadRequest, "bad_request", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return recommend.Upload{}, userID, apierr.New(http.StatusBadRequest, "bad_request", errors.New("failed to read uploaded file"))
	}
	if len(data) == 0 {
		return recommend.Upload{}, userID, apierr.New(http.StatusBadRequest, "bad_request", errors.New("uploaded file is empty"))
	}

	mime := util.PickImageMIME(header.Header.Get("Content-Type"), data)
	if mime == "" {
		return recommend.Upload{}, userID, apierr.New(http.StatusBadRequest, "unsupported_file",
			errors.New("unsupported file type: upload a JPEG, PNG, GIF or WEBP image, or send extracted PDF text with isPDF=true"))
	}
	return recommend.Upload{Image: data, MIME: mime}, userID, nil
}

// requestTimeout: заголовок X-Request-Timeout (секунды) может только сократить бюджет.
func (h *Handle) requestTimeout(r *http.Request) time.Duration {
	if v := strings.TrimSpace(r.Header.Get("X-Request-Timeout")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if d := time.Duration(n) * time.Second; d < h.timeout {
				return d
			}
		}
	}
	return h.timeout
}

// afterResponse пишет историю и архивирует картинку. Ошибки только логируются.
func (h *Handle) afterResponse(in recommend.Upload, userID string, res *recommend.Result) {
	if h.uploads == nil && h.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	source := "image"
	if in.IsPDF {
		source = "pdf"
	}
	pages := res.PageCount
	if pages == 0 {
		pages = 1
	}

	var g errgroup.Group
	if h.uploads != nil {
		g.Go(func() error {
			err := h.uploads.Insert(ctx, &store.UploadLog{
				UserID:          userID,
				Source:          source,
				ExtractedLength: res.ExtractedLength,
				PageCount:       pages,
				TopicIDs:        res.IdentifiedTopics,
				ProblemIDs:      res.ProblemIDs(),
			})
			if err != nil {
				h.log.Warn("upload log write failed", "error", err)
			}
			return nil
		})
	}
	if h.archive != nil && len(in.Image) > 0 {
		g.Go(func() error {
			obj, err := h.archive.Put(ctx, in.Image, in.MIME)
			if err != nil {
				h.log.Warn("upload archive failed", "error", err)
				return nil
			}
			h.log.Debug("upload archived", "object", obj)
			return nil
		})
	}
	_ = g.Wait()
}
