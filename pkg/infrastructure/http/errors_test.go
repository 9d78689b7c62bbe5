package httputil

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request: &http.Request{
			URL: &url.URL{Scheme: "https", Host: "healthapi.garmin.com", Path: "/wellness-api/rest/activityFile"},
		},
	}
}

func TestParseErrorResponse_Success(t *testing.T) {
	resp := newResponse(200, "payload")
	assert.NoError(t, ParseErrorResponse(resp))

	// Body must still be readable
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestParseErrorResponse_Error(t *testing.T) {
	resp := newResponse(400, "bad signature")

	err := ParseErrorResponse(resp)
	require.Error(t, err)

	httpErr, ok := err.(*HTTPError)
	require.True(t, ok)
	assert.Equal(t, 400, httpErr.StatusCode)
	assert.Contains(t, httpErr.Error(), "bad signature")
	assert.Equal(t, 400, StatusOf(err))
}

func TestParseErrorResponse_TruncatesBody(t *testing.T) {
	resp := newResponse(500, strings.Repeat("x", MaxErrorBodySize+100))

	err := ParseErrorResponse(resp)
	require.Error(t, err)

	httpErr := err.(*HTTPError)
	assert.Len(t, httpErr.Body, MaxErrorBodySize+3) // "..." suffix
}

func TestStatusOf_NonHTTPError(t *testing.T) {
	assert.Equal(t, 0, StatusOf(io.ErrUnexpectedEOF))
	assert.Equal(t, 0, StatusOf(nil))
}
