package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ErrorResponse mirrors the error envelope for decoding in tests.
type ErrorResponse struct {
	Error struct {
		Code      string              `json:"code"`
		Message   string              `json:"message"`
		Details   map[string][]string `json:"details"`
		RequestID string              `json:"request_id"`
	} `json:"error"`
}

// MakeRequest creates an HTTP request for testing. A non-nil body is sent
// as JSON; a string body is sent verbatim.
func MakeRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()

	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = bytes.NewBufferString(b)
	default:
		jsonBody, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req := httptest.NewRequest(method, url, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// ParseJSONResponse parses a JSON response into the provided interface
func ParseJSONResponse(t *testing.T, resp *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(resp.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to parse JSON response: %v\nBody: %s", err, resp.Body.String())
	}
}

// ParseError decodes the error envelope of a response.
func ParseError(t *testing.T, resp *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var env ErrorResponse
	ParseJSONResponse(t, resp, &env)
	if env.Error.Code == "" {
		t.Fatalf("Response is not an error envelope: %s", resp.Body.String())
	}
	return env
}

// AssertStatusCode checks if the response has the expected status code
func AssertStatusCode(t *testing.T, resp *httptest.ResponseRecorder, expected int) {
	t.Helper()

	if resp.Code != expected {
		t.Errorf("Expected status code %d, got %d\nBody: %s",
			expected, resp.Code, resp.Body.String())
	}
}

// AssertJSONContentType checks if the response has JSON content type
func AssertJSONContentType(t *testing.T, resp *httptest.ResponseRecorder) {
	t.Helper()

	contentType := resp.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", contentType)
	}
}

// FindCookie returns the named cookie set by the response, or nil.
func FindCookie(resp *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// AssertCookie checks if a cookie exists and optionally validates its value
func AssertCookie(t *testing.T, resp *httptest.ResponseRecorder, name string, expectedValue ...string) *http.Cookie {
	t.Helper()

	cookie := FindCookie(resp, name)
	if cookie == nil {
		t.Errorf("Cookie %s not found in response", name)
		return nil
	}
	if len(expectedValue) > 0 && cookie.Value != expectedValue[0] {
		t.Errorf("Cookie %s: expected value '%s', got '%s'",
			name, expectedValue[0], cookie.Value)
	}
	return cookie
}

// SetCookie adds a cookie to an HTTP request
func SetCookie(req *http.Request, name, value string) {
	req.AddCookie(&http.Cookie{
		Name:  name,
		Value: value,
	})
}

// SetAuthHeader sets the Authorization header with a Bearer token
func SetAuthHeader(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}
