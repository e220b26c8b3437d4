package httpx

import (
	"net/http"

	"github.com/warungbooks/warungbooks/internal/shared"
)

// StatusOf maps an error taxonomy code to its HTTP status.
func StatusOf(code shared.Code) int {
	switch code {
	case shared.CodeInvalidArgument:
		return http.StatusBadRequest
	case shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps a domain error onto the envelope. Internal details are
// never echoed to the client.
func RespondError(w http.ResponseWriter, err error) {
	code := shared.CodeOf(err)
	Error(w, StatusOf(code), code, shared.UserSafeMessage(err))
}
