package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/vark-gateway/internal/config"
	"github.com/ashureev/vark-gateway/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	c, err := NewClient(config.OrchestrationConfig{BaseURL: baseURL, Timeout: time.Second}, opts...)
	require.NoError(t, err)
	c.retryDelay = time.Millisecond
	return c
}

// scriptedServer answers the n-th request with replies[n].
func scriptedServer(t *testing.T, replies ...func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(replies) {
			t.Errorf("unexpected request %d", n+1)
			w.WriteHeader(http.StatusTeapot)
			return
		}
		replies[n](w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func status(code int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	}
}

func requireFailure(t *testing.T, err error, code string) *Failure {
	t.Helper()
	f, ok := AsFailure(err)
	require.True(t, ok, "expected *Failure, got %v", err)
	assert.Equal(t, code, f.Code)
	return f
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.OrchestrationConfig{BaseURL: "  "})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStartSessionPostsPayload(t *testing.T) {
	var got map[string]any
	srv, hits := scriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, startPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"sessionId":"s1","status":"in_progress","question":{"id":"q1","text":"Pick one","options":[{"key":"a","text":"Pictures"}]}}`)
	})

	c := newTestClient(t, srv.URL+"///")
	resp, err := c.StartSession(context.Background(), "stu-1", domain.GradeBand35)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, map[string]any{"studentId": "stu-1", "gradeBand": "3-5"}, got)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, domain.SessionInProgress, resp.Status)
	require.NotNil(t, resp.Question)
	assert.Equal(t, "Pick one", resp.Question.Text)
	assert.Equal(t, []domain.Option{{Key: "a", Text: "Pictures"}}, resp.Question.Options)
	assert.Nil(t, resp.Result)
}

func TestSubmitAnswerAlternateShapes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus domain.SessionStatus
		wantText   string
		wantResult bool
	}{
		{
			name:       "snake case with string question",
			body:       `{"session_id":"s1","next_question":"What helps you remember?"}`,
			wantStatus: domain.SessionInProgress,
			wantText:   "What helps you remember?",
		},
		{
			name:       "camel next question",
			body:       `{"sessionId":"s1","nextQuestion":{"text":"Q2","options":[{"text":""},{"key":1,"text":"B"},"junk"]}}`,
			wantStatus: domain.SessionInProgress,
			wantText:   "Q2",
		},
		{
			name:       "done flag with final report",
			body:       `{"sessionId":"s1","done":true,"final_report":{"scores":{"v":5,"a":1,"r":1,"k":1},"primary":"V","summary":"s","recommendations":["a","b","c"]}}`,
			wantStatus: domain.SessionComplete,
			wantResult: true,
		},
		{
			name:       "complete drops stray question",
			body:       `{"sessionId":"s1","status":"complete","question":"ignored","result":{"scores":{"v":1,"a":0,"r":0,"k":0},"primary":"V","summary":"s","recommendations":["a","b","c"]}}`,
			wantStatus: domain.SessionComplete,
			wantResult: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := scriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, respondPath, r.URL.Path)
				_, _ = io.WriteString(w, tt.body)
			})
			resp, err := newTestClient(t, srv.URL).SubmitAnswer(context.Background(), "s1", "A", "stu-1")
			require.NoError(t, err)

			assert.Equal(t, "s1", resp.SessionID)
			assert.Equal(t, tt.wantStatus, resp.Status)
			if tt.wantResult {
				require.NotNil(t, resp.Result)
				assert.Nil(t, resp.Question)
			} else {
				require.NotNil(t, resp.Question)
				assert.Equal(t, tt.wantText, resp.Question.Text)
				assert.Nil(t, resp.Result)
			}
		})
	}
}

func TestQuestionOptionsFiltered(t *testing.T) {
	q := normalizeQuestion(json.RawMessage(`{"text":"Q","options":[{"text":""},{"key":1,"text":"B"},"junk",{"key":"c","text":3}]}`))
	require.NotNil(t, q)
	assert.Equal(t, []domain.Option{{Text: "B"}, {Key: "c", Text: "3"}}, q.Options)

	assert.Nil(t, normalizeQuestion(json.RawMessage(`{"id":"q1"}`)))
	assert.Nil(t, normalizeQuestion(json.RawMessage(`""`)))
	assert.Nil(t, normalizeQuestion(nil))
}

func TestLooseCompletionFlags(t *testing.T) {
	report := `"final_report":{"scores":{"v":3,"a":1,"r":0,"k":0},"primary":"V"}`
	tests := []struct {
		name string
		body string
		want domain.SessionStatus
	}{
		{"numeric done", `{"session_id":"s1","done":1,` + report + `}`, domain.SessionComplete},
		{"string done", `{"session_id":"s1","done":"true",` + report + `}`, domain.SessionComplete},
		{"zero done", `{"session_id":"s1","done":0,"question":"Q"}`, domain.SessionInProgress},
		{"null done", `{"session_id":"s1","done":null,"question":"Q"}`, domain.SessionInProgress},
		{"non-string status", `{"session_id":"s1","status":7,"question":"Q"}`, domain.SessionInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := decodeResponse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Status)
			assert.Nil(t, enforceShape(resp))
		})
	}
}

func TestNormalizationIsIdempotent(t *testing.T) {
	bodies := []string{
		`{"session_id":"s1","next_question":"Q1"}`,
		`{"sessionId":"s1","status":"in_progress","question":{"id":"q","text":"Q","options":[{"key":"a","text":"A"}],"target":"V"}}`,
		`{"sessionId":"s1","done":true,"final_report":{"scores":{"v":2,"a":1,"r":0,"k":1},"primary":"V","summary":"s","recommendations":["a","b","c"]}}`,
	}

	for _, body := range bodies {
		once, err := decodeResponse([]byte(body))
		require.NoError(t, err)
		require.Nil(t, enforceShape(once))

		again, err := json.Marshal(once)
		require.NoError(t, err)
		twice, err := decodeResponse(again)
		require.NoError(t, err)
		require.Nil(t, enforceShape(twice))

		assert.Equal(t, once, twice, body)
	}
}

func TestBadResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing session id", `{"status":"in_progress","question":"Q"}`, "Missing sessionId in orchestration response"},
		{"non-string session id", `{"sessionId":42,"question":"Q"}`, "Missing sessionId in orchestration response"},
		{"complete without result", `{"sessionId":"s1","status":"complete"}`, "missing result from orchestration"},
		{"in progress without question", `{"sessionId":"s1","question":{"id":"q"}}`, "missing question from orchestration"},
		{"not json", `<html>oops</html>`, "Invalid JSON in orchestration response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits := scriptedServer(t, status(http.StatusOK, tt.body))
			_, err := newTestClient(t, srv.URL).SubmitAnswer(context.Background(), "s1", "A", "stu-1")

			f := requireFailure(t, err, CodeBadResponse)
			assert.Equal(t, tt.msg, f.Message)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestServerErrorThenSuccessIsTransparent(t *testing.T) {
	srv, hits := scriptedServer(t,
		status(http.StatusInternalServerError, "boom"),
		status(http.StatusOK, `{"sessionId":"s1","status":"in_progress","question":"Q1"}`),
	)
	resp, err := newTestClient(t, srv.URL).StartSession(context.Background(), "stu-1", "")
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, int32(2), hits.Load())
}

func TestServerErrorTwiceStopsAtTwoAttempts(t *testing.T) {
	srv, hits := scriptedServer(t,
		status(http.StatusBadGateway, ""),
		status(http.StatusServiceUnavailable, "still down"),
	)
	_, err := newTestClient(t, srv.URL).StartSession(context.Background(), "stu-1", "")

	f := requireFailure(t, err, CodeHTTPError)
	assert.Equal(t, "Orchestration request failed (503)", f.Message)
	assert.Equal(t, map[string]any{"status": http.StatusServiceUnavailable}, f.Details)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientErrorNotRetried(t *testing.T) {
	t.Run("body becomes message", func(t *testing.T) {
		srv, hits := scriptedServer(t, status(http.StatusNotFound, " unknown session \n"))
		_, err := newTestClient(t, srv.URL).SubmitAnswer(context.Background(), "gone", "A", "stu-1")

		f := requireFailure(t, err, CodeHTTPError)
		assert.Equal(t, "unknown session", f.Message)
		assert.Equal(t, map[string]any{"status": http.StatusNotFound}, f.Details)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("empty body uses generic message", func(t *testing.T) {
		srv, hits := scriptedServer(t, status(http.StatusBadRequest, ""))
		_, err := newTestClient(t, srv.URL).SubmitAnswer(context.Background(), "s1", "A", "stu-1")

		f := requireFailure(t, err, CodeHTTPError)
		assert.Equal(t, "Orchestration request failed (400)", f.Message)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestTimeoutNotRetried(t *testing.T) {
	srv, hits := scriptedServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c, err := NewClient(
		config.OrchestrationConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond},
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)

	_, err = c.StartSession(context.Background(), "stu-1", "")
	requireFailure(t, err, CodeTimeout)
	assert.Equal(t, int32(1), hits.Load())
}

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func transportScript(errs ...error) (*http.Client, *atomic.Int32) {
	var calls atomic.Int32
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := int(calls.Add(1)) - 1
		if n < len(errs) && errs[n] != nil {
			return nil, errs[n]
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"sessionId":"s1","question":"Q1"}`)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}, &calls
}

func TestTransportResetRetriedOnce(t *testing.T) {
	hc, calls := transportScript(fmt.Errorf("read: %w", syscall.ECONNRESET))
	c := newTestClient(t, "http://orchestrator.invalid", WithHTTPClient(hc))

	resp, err := c.StartSession(context.Background(), "stu-1", "")
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportRetryBound(t *testing.T) {
	reset := fmt.Errorf("read: %w", syscall.ECONNRESET)
	hc, calls := transportScript(reset, reset, reset)
	c := newTestClient(t, "http://orchestrator.invalid", WithHTTPClient(hc))

	_, err := c.StartSession(context.Background(), "stu-1", "")
	f := requireFailure(t, err, CodeError)
	assert.Equal(t, map[string]any{"category": "connection_reset"}, f.Details)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportRefusedNotRetried(t *testing.T) {
	hc, calls := transportScript(fmt.Errorf("dial: %w", syscall.ECONNREFUSED))
	c := newTestClient(t, "http://orchestrator.invalid", WithHTTPClient(hc))

	_, err := c.StartSession(context.Background(), "stu-1", "")
	f := requireFailure(t, err, CodeError)
	assert.Equal(t, map[string]any{"category": "connection_refused"}, f.Details)
	assert.Equal(t, int32(1), calls.Load())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		err  error
		want TransportCategory
	}{
		{syscall.ECONNRESET, TransportConnectionReset},
		{syscall.EPIPE, TransportConnectionReset},
		{syscall.ECONNREFUSED, TransportConnectionRefused},
		{syscall.ETIMEDOUT, TransportTimeout},
		{timeoutErr{}, TransportTimeout},
		{io.EOF, TransportHangUp},
		{io.ErrUnexpectedEOF, TransportHangUp},
		{errors.New("socket hang up"), TransportHangUp},
		{errors.New("tls: handshake failure"), TransportOther},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, classifyTransport(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestCallerCancellationStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv, hits := scriptedServer(t, func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, srv.URL)
	c.retryDelay = time.Second

	_, err := c.StartSession(ctx, "stu-1", "")
	requireFailure(t, err, CodeError)
	assert.Equal(t, int32(1), hits.Load())
}
