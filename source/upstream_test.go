package source_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

// fakeUpstream 模拟 chat/completions 流式接口
type fakeUpstream struct {
	chunks   []string
	status   int
	errBody  string
	dropMid  bool
	rawLines []string

	mu       sync.Mutex
	gotAuth  string
	gotRunID string
	gotBody  string
}

func (f *fakeUpstream) start(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.gotBody = string(body)
		f.gotAuth = r.Header.Get("Authorization")
		f.gotRunID = r.Header.Get("X-Run-ID")
		f.mu.Unlock()

		if f.status != 0 && f.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, f.errBody)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i, c := range f.chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunkJSON(i, c))
			flusher.Flush()
		}
		for _, line := range f.rawLines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
		if f.dropMid {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeUpstream) auth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotAuth
}

func (f *fakeUpstream) runID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotRunID
}

func (f *fakeUpstream) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gotBody
}

func chunkJSON(i int, content string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-%d","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, i, content)
}

func requestContent(body string) string {
	return gjson.Get(body, "messages.0.content").String()
}
