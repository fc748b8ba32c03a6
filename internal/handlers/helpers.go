package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/internal/repository"
	xhttp "github.com/leadflow/campaign-gateway/pkg/http"
)

const userIDHeader = "X-User-ID"

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidSchedule):
		writeError(ctx, 400, err.Error())
	case errors.Is(err, model.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		writeError(ctx, 404, err.Error())
	case errors.Is(err, model.ErrConsentViolation), errors.Is(err, model.ErrOutsideMessagingWindow):
		writeError(ctx, 403, err.Error())
	case errors.Is(err, model.ErrStateConflict):
		writeError(ctx, 409, err.Error())
	case errors.Is(err, model.ErrEmptyAudience):
		writeError(ctx, 422, err.Error())
	case errors.Is(err, model.ErrQueueUnavailable), errors.Is(err, model.ErrExternalService):
		writeError(ctx, 503, err.Error())
	default:
		writeError(ctx, 500, "internal error")
	}
}

// userID reads the authenticated account id injected by the gateway in front
// of this service. Zero means the header is missing or malformed.
func userID(ctx *xhttp.RequestCtx) int64 {
	v := ctx.Request.Header.Peek(userIDHeader)
	if len(v) == 0 {
		return 0
	}
	id, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// pathInt64 reads a route parameter like {id}.
func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string) int {
	n, _ := strconv.Atoi(query(ctx, key))
	return n
}
