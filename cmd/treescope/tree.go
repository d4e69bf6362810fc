package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	jsoniter "github.com/json-iterator/go"

	"github.com/treescope/treescope/internal/nodetree"
	"github.com/treescope/treescope/internal/profile"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// postProfileTree aggregates the posted profile's samples into a
// name-keyed call tree. With "Accept: text/plain" the tree is rendered
// as an ASCII table instead of JSON.
func (e *environment) postProfileTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	p, err := profile.Decode(r.Body)
	if err != nil {
		hub.CaptureException(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	threadIndex := 0
	if rawThread := r.URL.Query().Get("thread"); rawThread != "" {
		threadIndex, err = strconv.Atoi(rawThread)
		if err != nil || threadIndex < 0 || threadIndex >= len(p.Threads) {
			http.Error(w, "invalid thread index", http.StatusBadRequest)
			return
		}
	} else if len(p.Threads) == 0 {
		http.Error(w, "profile has no threads", http.StatusBadRequest)
		return
	}

	tree := nodetree.FromThread(p, threadIndex)

	if rawPrune := r.URL.Query().Get("prune"); rawPrune != "" {
		prune, err := strconv.ParseFloat(rawPrune, 64)
		if err != nil || prune < 0 || prune > 100 {
			http.Error(w, "invalid prune percentage", http.StatusBadRequest)
			return
		}
		tree.Prune(prune)
	}

	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(tree.Render()))
		return
	}

	b, err := json.Marshal(tree)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
