package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// WriteHTTP renders err as {"code","message"}. Errors outside the AppError
// taxonomy are reported as INTERNAL without leaking their text.
func WriteHTTP(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = &AppError{Code: CodeInternal, Message: "internal server error"}
	}

	body := AppError{Code: appErr.Code, Message: appErr.Message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code.HTTPStatus())
	json.NewEncoder(w).Encode(body)
}
