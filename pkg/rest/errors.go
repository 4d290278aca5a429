package rest

import (
	"errors"
	"net/http"

	"github.com/edgeflare/restful/pkg/httputil"
	pg "github.com/edgeflare/restful/pkg/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// pgStatus maps SQLSTATE codes caused by client input to their status.
var pgStatus = map[string]int{
	"23505": http.StatusConflict,   // unique_violation
	"23503": http.StatusBadRequest, // foreign_key_violation
	"23502": http.StatusBadRequest, // not_null_violation
	"23514": http.StatusBadRequest, // check_violation
	"22P02": http.StatusBadRequest, // invalid_text_representation
	"22003": http.StatusBadRequest, // numeric_value_out_of_range
	"22007": http.StatusBadRequest, // invalid_datetime_format
	"22008": http.StatusBadRequest, // datetime_field_overflow
}

// writeError answers err. Validation errors carry their field messages,
// database errors caused by the request map to 4xx, everything else is
// logged and answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		httputil.JSON(w, http.StatusBadRequest, verr.Fields)
		return
	}

	var he *httputil.HTTPError
	if errors.As(err, &he) {
		httputil.Error(w, he.Code, he.Message)
		return
	}

	if errors.Is(err, pg.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		httputil.Error(w, http.StatusNotFound, "Not found.")
		return
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgStatus[pgErr.Code]; ok {
			httputil.Error(w, code, pgErr.Message)
			return
		}
	}

	httputil.Logger(r).Error("request failed", zap.Error(err))
	httputil.WriteError(w, err)
}
