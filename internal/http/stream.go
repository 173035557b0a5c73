package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/internal/scheduler"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Stream GET /api/v1/patients/{id}/stream（SSE）
// 先推送一次 snapshot（当前窗口），之后每次更新推送 update
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["id"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	// 先订阅再确认监测状态：订阅存在时空闲停止不会生效，也不会漏掉中间的更新
	hub := h.monitor.Hub()
	sub := hub.Subscribe(patientID)
	defer hub.Unsubscribe(sub)

	mode, monitoring := h.monitor.IsMonitoring(patientID)
	if !monitoring {
		if !h.opts.AutoStartStream {
			writeJSON(w, http.StatusNotFound, Fail("patient is not being monitored"))
			return
		}
		if err := h.monitor.Start(patientID, scheduler.ModeSimulated); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
			return
		}
		mode = scheduler.ModeSimulated
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", h.windowResult(patientID, mode)); err != nil {
		h.logger.Warn("Failed to write SSE snapshot", zap.Error(err))
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.opts.Heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client gone",
				zap.String("patient_id", patientID),
				zap.String("subscription_id", sub.ID),
			)
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case update, ok := <-sub.C:
			if !ok {
				// 病人停止监测
				_ = writeEvent(w, "end", map[string]string{"patient_id": patientID})
				flusher.Flush()
				return
			}
			if err := writeEvent(w, "update", update); err != nil {
				h.logger.Warn("Failed to write SSE update", zap.Error(err))
				continue
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
