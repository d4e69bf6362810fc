package main

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"

	"github.com/treescope/treescope/internal/profile"
	"github.com/treescope/treescope/internal/transform"
)

type (
	TransformRequest struct {
		Profile    *profile.Profile `json:"profile"`
		Transforms []transform.Spec `json:"transforms"`
	}
)

// postProfileTransform applies a sequence of transforms to the posted
// profile and returns the transformed profile.
func (e *environment) postProfileTransform(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	var request TransformRequest
	d := gojson.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(&request); err != nil {
		hub.CaptureException(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Profile == nil {
		http.Error(w, "missing profile", http.StatusBadRequest)
		return
	}
	if err := request.Profile.Validate(); err != nil {
		hub.CaptureException(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for i, spec := range request.Transforms {
		if err := transform.Apply(request.Profile, spec); err != nil {
			http.Error(w, fmt.Sprintf("transform %d: %v", i, err), http.StatusBadRequest)
			return
		}
	}

	b, err := gojson.Marshal(request.Profile)
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
