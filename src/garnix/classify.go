package garnix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"garnix-insights/src/failure"
)

// maxErrorText bounds how much of an unparseable error body is quoted back.
const maxErrorText = 200

// classifyStatus turns a non-2xx response into a classified failure.
func classifyStatus(status int, body []byte) *failure.Error {
	detail := remoteMessage(body)

	var fe *failure.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		fe = failure.New(failure.AuthRejected, "Garnix rejected the token")
	case status == http.StatusNotFound:
		fe = failure.New(failure.NotFound, "Garnix has no record of the requested resource")
	case status == http.StatusTooManyRequests:
		fe = failure.New(failure.NetworkTransient, "Garnix API rate limit exceeded")
	case status >= 500:
		fe = failure.Newf(failure.NetworkTransient, "Garnix API returned %d", status)
	default:
		fe = failure.Newf(failure.InvalidRequest, "Garnix API refused the request with %d", status)
	}
	fe.StatusCode = status
	if detail != "" {
		fe.Err = errors.New(detail)
	}
	return fe
}

// classifyTransport classifies an error returned by http.Client.Do. Every
// transport failure is transient: timeouts, resets, refused connections and
// DNS errors may all clear on their own.
func classifyTransport(err error) *failure.Error {
	var ne net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return failure.Wrap(failure.NetworkTransient, err, "request to Garnix API was cancelled")
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return failure.Wrap(failure.NetworkTransient, err, "request to Garnix API timed out")
	default:
		return failure.Wrap(failure.NetworkTransient, err, "could not reach Garnix API")
	}
}

// classifyDecode turns a json decoding error into a parse failure naming the field.
func classifyDecode(err error, what string) *failure.Error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		fe := failure.Parse(typeErr.Field, fmt.Sprintf("%s response has %s where %s was expected", what, typeErr.Value, typeErr.Type))
		fe.Err = err
		return fe
	}
	fe := failure.Parse("", fmt.Sprintf("%s response is not valid JSON", what))
	fe.Err = err
	return fe
}

// remoteMessage extracts a human-readable message from an error body.
func remoteMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.text() != "" {
		return eb.text()
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	return text
}

// retryAfter parses a Retry-After header given either as seconds or as an
// HTTP date. It returns 0 when the header is absent or unusable.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
