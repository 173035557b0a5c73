package httpapi

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/export"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export GET /api/v1/patients/{id}/export?range=24h|7d|30d|90d&filter=all|temperature|heart|requests|falls
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]
	q := r.URL.Query()

	rng, err := export.ParseRange(q.Get("range"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	kind, err := export.ParseKind(q.Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("history unavailable"))
		return
	}

	now := h.now()
	filter := export.NewFilter(rng, kind, h.classifier.Thresholds())
	from, to := filter.Window(now)
	readings, err := h.history.ReadingsBetween(r.Context(), patientID, from, to.Add(1))
	if err != nil {
		h.logger.Error("Failed to query export history", zap.String("patient_id", patientID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, Fail("history unavailable"))
		return
	}
	readings = filter.Apply(readings, now)

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, readings, nil); err != nil {
		h.logger.Error("Failed to build export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build export"))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.FileName(patientID, now),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Record-Count", strconv.Itoa(len(readings)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
