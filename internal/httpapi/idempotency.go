package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type commandFunc func(ctx context.Context) (status int, body any, err error)

// idempotent выполняет команду с учётом заголовка Idempotency-Key.
// Без заголовка команда выполняется как есть.
func (h *Handler) idempotent(w http.ResponseWriter, r *http.Request, operation string, req any, run commandFunc) {
	ctx := r.Context()
	raw := r.Header.Get(headerIdempotencyKey)
	if h.keeper == nil || raw == "" {
		h.respond(w, r, run, "")
		return
	}

	key, err := idempotency.NormalizeKey(raw)
	if err != nil {
		writeProblem(w, problemFor(err))
		return
	}
	hash, err := idempotency.HashRequest(operation, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	replay, err := h.keeper.Begin(ctx, key, hash)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyHashMismatch) || errors.Is(err, idempotency.ErrInProgress) {
			writeProblem(w, problemFor(err))
			return
		}
		h.fail(w, r, err)
		return
	}
	if replay != nil {
		writeReplay(w, replay)
		return
	}

	h.respond(w, r, run, key)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, run commandFunc, key string) {
	ctx := r.Context()
	status, body, err := run(ctx)
	if err != nil {
		if key != "" {
			p := problemFor(err)
			h.remember(ctx, key, p.Status, p, true)
		}
		h.fail(w, r, err)
		return
	}

	if key != "" {
		h.remember(ctx, key, status, body, false)
	}
	writeJSON(w, status, body)
}

// remember сохраняет ответ под ключом для повторов. Ответ, который не
// удалось закодировать, не сохраняется, ключ остаётся незавершённым до TTL.
func (h *Handler) remember(ctx context.Context, key string, status int, body any, failed bool) bool {
	data, err := json.Marshal(body)
	if err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotent response")
		return false
	}
	if failed {
		h.keeper.Fail(ctx, key, data, status)
	} else {
		h.keeper.Complete(ctx, key, data, status)
	}
	return true
}

func writeReplay(w http.ResponseWriter, replay *idempotency.Replay) {
	status := replay.Status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := contentTypeJSON
	if replay.Failed {
		contentType = contentTypeProblem
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(status)
	_, _ = w.Write(replay.Body)
}
