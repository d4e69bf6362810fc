package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsoniter "github.com/json-iterator/go"
)

const testProfile = `{
  "meta": {
    "interval": 1,
    "preprocessedProfileVersion": 48,
    "product": "treescope",
    "sampleUnits": {"time": "ms", "threadCPUDelta": "µs"},
    "startTime": 0,
    "symbolicated": true,
    "version": 30
  },
  "libs": [],
  "threads": [
    {
      "processType": "default",
      "processName": "treescope",
      "name": "MainThread",
      "isMainThread": true,
      "pid": "1",
      "tid": 1,
      "processStartupTime": 0,
      "processShutdownTime": 0,
      "registerTime": 0,
      "unregisterTime": 0,
      "samples": {"length": 2, "stack": [1, 2], "time": [0, 1], "weightType": "samples"},
      "stackTable": {"length": 3, "frame": [0, 1, 2], "prefix": [null, 0, 1]},
      "frameTable": {
        "length": 3,
        "address": [0, 0, 0],
        "inlineDepth": [0, 0, 0],
        "func": [0, 1, 2],
        "nativeSymbol": [null, null, null],
        "line": [null, null, null],
        "column": [null, null, null]
      },
      "funcTable": {
        "length": 3,
        "name": [0, 1, 2],
        "resource": [-1, -1, -1],
        "fileName": [null, null, null],
        "lineNumber": [null, null, null],
        "columnNumber": [null, null, null],
        "isJS": [false, false, false],
        "relevantForJS": [false, false, false]
      },
      "resourceTable": {"length": 0, "lib": [], "name": [], "host": [], "type": []},
      "nativeSymbols": {"length": 0, "libIndex": [], "address": [], "name": [], "functionSize": []},
      "stringArray": ["main", "run", "execute"]
    }
  ]
}`

func startTestServer(t *testing.T) string {
	t.Helper()

	env := &environment{config: ServiceConfig{Environment: "test"}}
	router, err := env.newRouter()
	require.NoError(t, err)

	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	server := http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}
	go func() {
		_ = server.ListenAndServe()
	}()
	t.Cleanup(func() {
		_ = server.Close()
	})

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	for i := 0; i < 50; i++ {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			return baseURL
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not come up")
	return ""
}

func TestPostProfileTree(t *testing.T) {
	baseURL := startTestServer(t)

	resp, err := http.Post(baseURL+"/profile/tree", "application/json", strings.NewReader(testProfile))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tree struct {
		Children []struct {
			Name     string `json:"name"`
			Subtotal uint64 `json:"subtotal"`
		} `json:"children"`
	}
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&tree))
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "main", tree.Children[0].Name)
	assert.Equal(t, uint64(2), tree.Children[0].Subtotal)
}

func TestPostProfileTreePlainText(t *testing.T) {
	baseURL := startTestServer(t)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/profile/tree", strings.NewReader(testProfile))
	require.NoError(t, err)
	req.Header.Set("Accept", "text/plain")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "│ RATIO │")
	assert.Contains(t, string(body), "main")
}

func TestPostProfileTreeRejectsMalformedProfile(t *testing.T) {
	baseURL := startTestServer(t)

	malformed := strings.Replace(testProfile, `"isMainThread": true,`, `"isMainThread": true, "bogus": 1,`, 1)
	resp, err := http.Post(baseURL+"/profile/tree", "application/json", strings.NewReader(malformed))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPostProfileTransform(t *testing.T) {
	baseURL := startTestServer(t)

	request := fmt.Sprintf(
		`{"profile": %s, "transforms": [{"op": "rename_function", "thread": 0, "function": "run", "newName": "renamed_run"}]}`,
		testProfile,
	)
	resp, err := http.Post(baseURL+"/profile/transform", "application/json", strings.NewReader(request))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var transformed struct {
		Threads []struct {
			StringArray []string `json:"stringArray"`
			FuncTable   struct {
				Name []int `json:"name"`
			} `json:"funcTable"`
		} `json:"threads"`
	}
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&transformed))
	require.Len(t, transformed.Threads, 1)
	thread := transformed.Threads[0]
	assert.Equal(t, "renamed_run", thread.StringArray[thread.FuncTable.Name[1]])
	assert.Contains(t, thread.StringArray, "run")
}

func TestPostProfileTransformUnknownFunction(t *testing.T) {
	baseURL := startTestServer(t)

	request := fmt.Sprintf(
		`{"profile": %s, "transforms": [{"op": "focus_function", "thread": 0, "function": "missing"}]}`,
		testProfile,
	)
	resp, err := http.Post(baseURL+"/profile/transform", "application/json", strings.NewReader(request))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
