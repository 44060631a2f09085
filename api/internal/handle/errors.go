package handle

import (
	"errors"
	"fmt"
	"net/http"

	"problem-recs/api/internal/apierr"
	"problem-recs/api/internal/recommend"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// toAPIError раскладывает ошибки конвейера по HTTP-кодам.
func toAPIError(err error) *apierr.Error {
	var (
		ae   *apierr.Error
		cfg  *recommend.ConfigurationError
		cont *recommend.ContentError
		tr   *recommend.TranscriptionError
		db   *recommend.DatabaseError
		rk   *recommend.RankingError
	)
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.As(err, &cfg):
		return apierr.New(http.StatusServiceUnavailable, "service_unavailable",
			errors.New("recommendation service is not configured, try again later"))
	case errors.As(err, &cont):
		return apierr.New(http.StatusBadRequest, "insufficient_content",
			fmt.Errorf("could not find enough mathematical content in the upload (%d characters, need %d)", cont.Length, cont.Min))
	case errors.As(err, &tr):
		return apierr.New(http.StatusInternalServerError, "transcription_failed",
			fmt.Errorf("failed to extract text from the upload: %s", tr.Message))
	case errors.As(err, &db):
		return apierr.New(http.StatusInternalServerError, "recommendation_failed",
			errors.New("failed to load practice problems"))
	case errors.As(err, &rk):
		return apierr.New(http.StatusInternalServerError, "recommendation_failed",
			errors.New("failed to rank practice problems"))
	}
	return apierr.New(http.StatusInternalServerError, "recommendation_failed", errors.New("failed to build recommendations"))
}

func writeError(w http.ResponseWriter, e *apierr.Error) {
	writeJSON(w, e.Status, errorBody{Success: false, Error: e.Error(), Code: e.Code})
}
