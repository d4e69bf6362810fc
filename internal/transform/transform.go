// Package transform rewrites the call-tree forest of a profile thread.
//
// Every operation follows the same shape: iterate the old stack table in
// index order, resolve each stack's new parent through an old-to-new
// mapping (the prefix-ordering invariant guarantees parents were already
// resolved), then remap the samples and swap in the replacement tables.
// No operation requires recursion or backtracking.
//
// Operations assume the func/resource indices they are given are valid
// for the thread. An invalid index, or an internal inconsistency such as
// an unmapped stack reference, is a caller error and panics.
package transform

import (
	"fmt"

	"github.com/treescope/treescope/internal/profile"
)

const dropped = -1

// CollapseFrames merges every frame matching the predicate into a single
// synthetic function and frame, named name. Consecutive matches along one
// path collapse into one node. The synthetic function reuses the first
// matching frame's slot, so the frame table does not grow.
func CollapseFrames(p *profile.Profile, threadIndex int, name string, predicate func(profile.Frame) bool) {
	t := &p.Threads[threadIndex]
	nameIndex := t.InternString(name)

	// Index of the synthetic frame, created lazily on the first match.
	groupFrame := -1

	var newStacks profile.StackTable
	oldToNew := make([]int, t.StackTable.Length)
	// Parallel to the new stack table; true for synthetic rows.
	collapsed := make([]bool, 0, t.StackTable.Length)

	for stack := 0; stack < t.StackTable.Length; stack++ {
		frameIndex := t.StackTable.Frame[stack]
		prefix := t.StackTable.Prefix[stack]
		funcIndex := t.FrameTable.Func[frameIndex]
		resourceIndex := t.FuncTable.Resource[funcIndex]

		newPrefix := profile.NoIndex
		if prefix.Valid() {
			newPrefix = profile.NullableIndex(oldToNew[prefix.Index()])
		}

		if predicate(profile.NewFrame(p, t, frameIndex)) {
			if groupFrame < 0 {
				t.FuncTable.Length++
				t.FuncTable.Name = append(t.FuncTable.Name, nameIndex)
				t.FuncTable.Resource = append(t.FuncTable.Resource, resourceIndex)
				t.FuncTable.FileName = append(t.FuncTable.FileName, profile.NoIndex)
				t.FuncTable.LineNumber = append(t.FuncTable.LineNumber, nil)
				t.FuncTable.ColumnNumber = append(t.FuncTable.ColumnNumber, nil)
				t.FuncTable.IsJS = append(t.FuncTable.IsJS, false)
				t.FuncTable.RelevantForJS = append(t.FuncTable.RelevantForJS, false)
				t.FrameTable.Func[frameIndex] = t.FuncTable.Length - 1
				groupFrame = frameIndex
			}

			if newPrefix.Valid() && collapsed[newPrefix.Index()] {
				// The parent is already a collapsed node,
				// absorb this stack into it.
				oldToNew[stack] = newPrefix.Index()
				continue
			}
			newStacks.Length++
			newStacks.Frame = append(newStacks.Frame, groupFrame)
			newStacks.Prefix = append(newStacks.Prefix, newPrefix)
			collapsed = append(collapsed, true)
			oldToNew[stack] = newStacks.Length - 1
		} else {
			newStacks.Length++
			newStacks.Frame = append(newStacks.Frame, frameIndex)
			newStacks.Prefix = append(newStacks.Prefix, newPrefix)
			collapsed = append(collapsed, false)
			oldToNew[stack] = newStacks.Length - 1
		}
	}

	t.StackTable = newStacks
	remapSamples(t, oldToNew)
}

// CollapseResource collapses every frame whose function belongs to the
// given resource, under the resource's own name.
func CollapseResource(p *profile.Profile, threadIndex, resourceIndex int) {
	t := &p.Threads[threadIndex]
	name := t.StringArray[t.ResourceTable.Name[resourceIndex]]

	CollapseFrames(p, threadIndex, name, func(frame profile.Frame) bool {
		resource, ok := frame.Func().ResourceIndex()
		return ok && resource == resourceIndex
	})
}

// CollapseAllResources collapses every resource of the thread except the
// given ones.
func CollapseAllResources(p *profile.Profile, threadIndex int, except ...int) {
	keep := make(map[int]struct{}, len(except))
	for _, resourceIndex := range except {
		keep[resourceIndex] = struct{}{}
	}
	for resourceIndex := 0; resourceIndex < p.Threads[threadIndex].ResourceTable.Length; resourceIndex++ {
		if _, ok := keep[resourceIndex]; !ok {
			CollapseResource(p, threadIndex, resourceIndex)
		}
	}
}

// CollapseSubtree re-attributes every sample below an occurrence of the
// function to the occurrence itself. The stack table is left in place;
// stacks inside collapsed subtrees simply become unreferenced.
func CollapseSubtree(p *profile.Profile, threadIndex, funcIndex int) {
	t := &p.Threads[threadIndex]
	mustValidFunc(t, funcIndex)

	oldToNew := make([]int, t.StackTable.Length)
	inCollapsedSubtree := make([]bool, t.StackTable.Length)

	for stack := 0; stack < t.StackTable.Length; stack++ {
		frameIndex := t.StackTable.Frame[stack]
		prefix := t.StackTable.Prefix[stack]

		if prefix.Valid() && inCollapsedSubtree[prefix.Index()] {
			oldToNew[stack] = oldToNew[prefix.Index()]
			inCollapsedSubtree[stack] = true
		} else {
			oldToNew[stack] = stack
			if t.FrameTable.Func[frameIndex] == funcIndex {
				inCollapsedSubtree[stack] = true
			}
		}
	}

	remapSamples(t, oldToNew)
}

// CollapseRecursion flattens direct or indirect self-recursion of the
// function: the outermost occurrence on a path becomes the parent of
// everything inside the recursive span.
func CollapseRecursion(p *profile.Profile, threadIndex, funcIndex int) {
	t := &p.Threads[threadIndex]
	mustValidFunc(t, funcIndex)

	// spanRoot maps a stack inside a recursive span to the prefix of the
	// span's outermost occurrence. A missing entry means the stack is
	// outside any span; a stored NoIndex means the span starts at a root.
	spanRoot := make(map[int]profile.NullableIndex)

	for stack := 0; stack < t.StackTable.Length; stack++ {
		prefix := t.StackTable.Prefix[stack]
		frameIndex := t.StackTable.Frame[stack]
		isMatch := t.FrameTable.Func[frameIndex] == funcIndex

		var subtreePrefix profile.NullableIndex
		inSpan := false
		if prefix.Valid() {
			subtreePrefix, inSpan = spanRoot[prefix.Index()]
		}

		if !inSpan {
			if isMatch {
				spanRoot[stack] = prefix
			}
		} else {
			spanRoot[stack] = subtreePrefix
			if isMatch {
				// A recursive call: reparent it to the
				// outermost occurrence.
				t.StackTable.Prefix[stack] = subtreePrefix
			}
		}
	}
}

// MergeFunction removes the function's frame from every path, splicing
// its children directly under its parent. An occurrence at the root of a
// path is dropped entirely, together with the samples resolving to it.
func MergeFunction(p *profile.Profile, threadIndex, funcIndex int) {
	t := &p.Threads[threadIndex]
	mustValidFunc(t, funcIndex)

	var newStacks profile.StackTable
	oldToNew := make([]int, t.StackTable.Length)

	for stack := 0; stack < t.StackTable.Length; stack++ {
		prefix := t.StackTable.Prefix[stack]
		frameIndex := t.StackTable.Frame[stack]

		newPrefix := profile.NoIndex
		if prefix.Valid() {
			if mapped := oldToNew[prefix.Index()]; mapped != dropped {
				newPrefix = profile.NullableIndex(mapped)
			}
		}

		if t.FrameTable.Func[frameIndex] == funcIndex {
			if newPrefix.Valid() {
				oldToNew[stack] = newPrefix.Index()
			} else {
				oldToNew[stack] = dropped
			}
		} else {
			oldToNew[stack] = stack
		}

		// Every row is copied, so old and new indices coincide and
		// the identity mapping above stays valid.
		newStacks.Length++
		newStacks.Frame = append(newStacks.Frame, frameIndex)
		newStacks.Prefix = append(newStacks.Prefix, newPrefix)
	}

	t.StackTable = newStacks
	t.Samples = rebuildSamples(t, oldToNew)
}

// FocusOnFunction keeps only the stacks that are an occurrence of the
// function or a descendant of one. Samples outside the focused subtrees
// are removed.
func FocusOnFunction(p *profile.Profile, threadIndex, funcIndex int) {
	t := &p.Threads[threadIndex]
	mustValidFunc(t, funcIndex)

	var newStacks profile.StackTable
	oldToNew := make([]int, t.StackTable.Length)
	for i := range oldToNew {
		oldToNew[i] = dropped
	}

	for stack := 0; stack < t.StackTable.Length; stack++ {
		frameIndex := t.StackTable.Frame[stack]
		prefix := t.StackTable.Prefix[stack]

		newPrefix := profile.NoIndex
		if prefix.Valid() {
			if mapped := oldToNew[prefix.Index()]; mapped != dropped {
				newPrefix = profile.NullableIndex(mapped)
			}
		}

		if newPrefix.Valid() || t.FrameTable.Func[frameIndex] == funcIndex {
			newStacks.Length++
			newStacks.Frame = append(newStacks.Frame, frameIndex)
			newStacks.Prefix = append(newStacks.Prefix, newPrefix)
			oldToNew[stack] = newStacks.Length - 1
		}
	}

	t.StackTable = newStacks
	t.Samples = rebuildSamples(t, oldToNew)
}

// RenameFunction appends the new name to the string table and repoints
// the function's name reference. The previous entry stays in the table.
func RenameFunction(p *profile.Profile, threadIndex, funcIndex int, newName string) {
	t := &p.Threads[threadIndex]
	mustValidFunc(t, funcIndex)
	t.FuncTable.Name[funcIndex] = t.InternString(newName)
}

// FindFunc returns the index of the first function with the given name.
func FindFunc(p *profile.Profile, threadIndex int, name string) (int, bool) {
	t := &p.Threads[threadIndex]
	for funcIndex, nameIndex := range t.FuncTable.Name {
		if t.StringArray[nameIndex] == name {
			return funcIndex, true
		}
	}
	return 0, false
}

// FindResource returns the index of the first resource with the given name.
func FindResource(p *profile.Profile, threadIndex int, name string) (int, bool) {
	t := &p.Threads[threadIndex]
	for resourceIndex, nameIndex := range t.ResourceTable.Name {
		if t.StringArray[nameIndex] == name {
			return resourceIndex, true
		}
	}
	return 0, false
}

// remapSamples repoints every sample through a total mapping.
func remapSamples(t *profile.Thread, oldToNew []int) {
	for i, stack := range t.Samples.Stack {
		newStack := oldToNew[stack]
		if newStack == dropped {
			panic(fmt.Sprintf("transform: sample %d references unmapped stack %d", i, stack))
		}
		t.Samples.Stack[i] = newStack
	}
}

// rebuildSamples builds a new samples table through a partial mapping,
// dropping the samples whose stack was dropped.
func rebuildSamples(t *profile.Thread, oldToNew []int) profile.SamplesTable {
	newSamples := profile.SamplesTable{WeightType: t.Samples.WeightType}
	for i := 0; i < t.Samples.Length; i++ {
		newStack := oldToNew[t.Samples.Stack[i]]
		if newStack == dropped {
			continue
		}
		newSamples.Length++
		newSamples.Stack = append(newSamples.Stack, newStack)
		newSamples.Time = append(newSamples.Time, t.Samples.Time[i])
		newSamples.Weight = append(newSamples.Weight, t.Samples.Weight[i])
		newSamples.ThreadCPUDelta = append(newSamples.ThreadCPUDelta, t.Samples.ThreadCPUDelta[i])
	}
	return newSamples
}

func mustValidFunc(t *profile.Thread, funcIndex int) {
	if funcIndex < 0 || funcIndex >= t.FuncTable.Length {
		panic(fmt.Sprintf("transform: func index %d out of range, func table has %d rows", funcIndex, t.FuncTable.Length))
	}
}
