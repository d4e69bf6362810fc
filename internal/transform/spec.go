package transform

import (
	"fmt"

	"github.com/treescope/treescope/internal/profile"
)

const (
	OpCollapseResource     = "collapse_resource"
	OpCollapseAllResources = "collapse_all_resources"
	OpCollapseSubtree      = "collapse_subtree"
	OpCollapseRecursion    = "collapse_recursion"
	OpMergeFunction        = "merge_function"
	OpFocusFunction        = "focus_function"
	OpRenameFunction       = "rename_function"
)

type (
	// Spec is one transform request with its targets given by name. Apply
	// resolves the names to indices before invoking the operation, which
	// is the existence check the index-based API expects its callers to
	// perform.
	Spec struct {
		Op       string `json:"op"`
		Thread   int    `json:"thread"`
		Function string `json:"function,omitempty"`
		Resource string `json:"resource,omitempty"`
		NewName  string `json:"newName,omitempty"`
	}
)

func Apply(p *profile.Profile, spec Spec) error {
	if spec.Thread < 0 || spec.Thread >= len(p.Threads) {
		return fmt.Errorf("thread %d does not exist, profile has %d threads", spec.Thread, len(p.Threads))
	}

	switch spec.Op {
	case OpCollapseResource:
		resourceIndex, ok := FindResource(p, spec.Thread, spec.Resource)
		if !ok {
			return fmt.Errorf("%s: resource %q does not exist in thread %d", spec.Op, spec.Resource, spec.Thread)
		}
		CollapseResource(p, spec.Thread, resourceIndex)
	case OpCollapseAllResources:
		var except []int
		if spec.Resource != "" {
			resourceIndex, ok := FindResource(p, spec.Thread, spec.Resource)
			if !ok {
				return fmt.Errorf("%s: resource %q does not exist in thread %d", spec.Op, spec.Resource, spec.Thread)
			}
			except = append(except, resourceIndex)
		}
		CollapseAllResources(p, spec.Thread, except...)
	case OpCollapseSubtree, OpCollapseRecursion, OpMergeFunction, OpFocusFunction, OpRenameFunction:
		funcIndex, ok := FindFunc(p, spec.Thread, spec.Function)
		if !ok {
			return fmt.Errorf("%s: function %q does not exist in thread %d", spec.Op, spec.Function, spec.Thread)
		}
		switch spec.Op {
		case OpCollapseSubtree:
			CollapseSubtree(p, spec.Thread, funcIndex)
		case OpCollapseRecursion:
			CollapseRecursion(p, spec.Thread, funcIndex)
		case OpMergeFunction:
			MergeFunction(p, spec.Thread, funcIndex)
		case OpFocusFunction:
			FocusOnFunction(p, spec.Thread, funcIndex)
		case OpRenameFunction:
			if spec.NewName == "" {
				return fmt.Errorf("%s: newName is required", spec.Op)
			}
			RenameFunction(p, spec.Thread, funcIndex, spec.NewName)
		}
	default:
		return fmt.Errorf("unknown transform op %q", spec.Op)
	}
	return nil
}
