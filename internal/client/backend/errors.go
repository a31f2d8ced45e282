package backend

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMissingConversationID is returned when the create call succeeds but the
// body carries no usable id.
var ErrMissingConversationID = errors.New("no chat id returned from server")

// HTTPError reports a non-2xx response from the backend.
type HTTPError struct {
	Op         string
	StatusCode int
	StatusText string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.StatusText)
}

func newHTTPError(op string, resp *http.Response) *HTTPError {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{Op: op, StatusCode: resp.StatusCode, StatusText: text}
}

// IsStatus reports whether err is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == code
}
