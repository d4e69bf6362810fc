package profile

import (
	"bytes"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/treescope/treescope/internal/errorutil"
)

// NoIndex marks a nullable table index whose serialized value is null.
const NoIndex NullableIndex = -1

type (
	// Profile is a processed profile: a set of threads plus the
	// process-wide library list. Every table is columnar, rows are linked
	// by indices. It is built once by Decode and afterwards only mutated
	// by whole-table replacement inside a transform.
	Profile struct {
		Meta             Meta              `json:"meta"`
		Libs             []Lib             `json:"libs"`
		Threads          []Thread          `json:"threads"`
		Pages            gojson.RawMessage `json:"pages,omitempty"`
		ProfilerOverhead gojson.RawMessage `json:"profilerOverhead,omitempty"`
		Counters         gojson.RawMessage `json:"counters,omitempty"`
	}

	Meta struct {
		Debug                      bool              `json:"debug"`
		Interval                   float64           `json:"interval"`
		OSCPU                      string            `json:"oscpu,omitempty"`
		PreprocessedProfileVersion uint64            `json:"preprocessedProfileVersion"`
		Product                    string            `json:"product"`
		SampleUnits                SampleUnits       `json:"sampleUnits"`
		StartTime                  float64           `json:"startTime"`
		Symbolicated               bool              `json:"symbolicated"`
		Version                    uint64            `json:"version"`
		Categories                 gojson.RawMessage `json:"categories,omitempty"`
		Extensions                 gojson.RawMessage `json:"extensions,omitempty"`
		ProcessType                gojson.RawMessage `json:"processType,omitempty"`
		PausedRanges               gojson.RawMessage `json:"pausedRanges,omitempty"`
		MarkerSchema               gojson.RawMessage `json:"markerSchema,omitempty"`
		UsesOnlyOneStackType       bool              `json:"usesOnlyOneStackType,omitempty"`
		SourceCodeIsNotOnSearchfox bool              `json:"sourceCodeIsNotOnSearchfox,omitempty"`
	}

	SampleUnits struct {
		Time           string            `json:"time"`
		ThreadCPUDelta string            `json:"threadCPUDelta"`
		EventDelay     gojson.RawMessage `json:"eventDelay,omitempty"`
	}

	// Lib describes a shared object loaded into one of the profiled
	// processes. Immutable once the profile is loaded.
	Lib struct {
		Arch       string `json:"arch"`
		Name       string `json:"name"`
		Path       string `json:"path"`
		DebugName  string `json:"debugName"`
		DebugPath  string `json:"debugPath"`
		BreakpadID string `json:"breakpadId"`
		CodeID     string `json:"codeId,omitempty"`
	}

	Thread struct {
		ProcessType           string            `json:"processType"`
		ProcessName           string            `json:"processName"`
		Name                  string            `json:"name"`
		IsMainThread          bool              `json:"isMainThread"`
		PID                   string            `json:"pid"`
		TID                   Tid               `json:"tid"`
		ProcessStartupTime    float64           `json:"processStartupTime"`
		ProcessShutdownTime   float64           `json:"processShutdownTime"`
		RegisterTime          float64           `json:"registerTime"`
		UnregisterTime        float64           `json:"unregisterTime"`
		Samples               SamplesTable      `json:"samples"`
		StackTable            StackTable        `json:"stackTable"`
		FrameTable            FrameTable        `json:"frameTable"`
		FuncTable             FuncTable         `json:"funcTable"`
		ResourceTable         ResourceTable     `json:"resourceTable"`
		NativeSymbols         NativeSymbolTable `json:"nativeSymbols"`
		StringArray           []string          `json:"stringArray"`
		Markers               gojson.RawMessage `json:"markers,omitempty"`
		PausedRanges          gojson.RawMessage `json:"pausedRanges,omitempty"`
		ShowMarkersInTimeline bool              `json:"showMarkersInTimeline,omitempty"`
	}

	// SamplesTable holds one row per scheduler tick: the leaf stack of the
	// call path at that instant, a timestamp and a weight.
	SamplesTable struct {
		Length         int       `json:"length"`
		Stack          []int     `json:"stack"`
		Time           []float64 `json:"time"`
		Weight         []uint64  `json:"weight"`
		ThreadCPUDelta []uint64  `json:"threadCPUDelta"`
		WeightType     string    `json:"weightType"`
	}

	// StackTable encodes the call-tree forest. The shape of the tree lives
	// in the prefix column: roots have a null prefix, every other stack
	// points at its caller. A stack's prefix index is always strictly less
	// than its own index, so a single forward pass visits parents first.
	StackTable struct {
		Length int             `json:"length"`
		Frame  []int           `json:"frame"`
		Prefix []NullableIndex `json:"prefix"`
	}

	FrameTable struct {
		Length        int               `json:"length"`
		Address       []uint64          `json:"address"`
		InlineDepth   []uint64          `json:"inlineDepth"`
		Func          []int             `json:"func"`
		NativeSymbol  []NullableIndex   `json:"nativeSymbol"`
		Line          []*uint32         `json:"line"`
		Column        []*uint32         `json:"column"`
		Category      gojson.RawMessage `json:"category,omitempty"`
		Subcategory   gojson.RawMessage `json:"subcategory,omitempty"`
		InnerWindowID gojson.RawMessage `json:"innerWindowID,omitempty"`
	}

	// FuncTable holds logical function identities. Resource is -1 for
	// functions that do not belong to any resource, matching the on-disk
	// convention.
	FuncTable struct {
		Length        int             `json:"length"`
		Name          []int           `json:"name"`
		Resource      []int           `json:"resource"`
		FileName      []NullableIndex `json:"fileName"`
		LineNumber    []*uint32       `json:"lineNumber"`
		ColumnNumber  []*uint32       `json:"columnNumber"`
		IsJS          []bool          `json:"isJS"`
		RelevantForJS []bool          `json:"relevantForJS"`
	}

	ResourceTable struct {
		Length int             `json:"length"`
		Lib    []NullableIndex `json:"lib"`
		Name   []int           `json:"name"`
		Host   []NullableIndex `json:"host"`
		Type   []uint64        `json:"type"`
	}

	NativeSymbolTable struct {
		Length       int       `json:"length"`
		LibIndex     []int     `json:"libIndex"`
		Address      []uint64  `json:"address"`
		Name         []int     `json:"name"`
		FunctionSize []*uint64 `json:"functionSize"`
	}
)

// NullableIndex is a table index whose serialized form may be null.
type NullableIndex int

func (i NullableIndex) Valid() bool {
	return i >= 0
}

func (i NullableIndex) Index() int {
	return int(i)
}

func (i *NullableIndex) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*i = NoIndex
		return nil
	}
	var v int
	if err := gojson.Unmarshal(b, &v); err != nil {
		return err
	}
	*i = NullableIndex(v)
	return nil
}

func (i NullableIndex) MarshalJSON() ([]byte, error) {
	if i < 0 {
		return []byte("null"), nil
	}
	return gojson.Marshal(int(i))
}

// Tid is a thread ID. It's a number for most profiles but merging or
// diffing tools may generate strings, so we keep the raw value around.
type Tid struct {
	raw gojson.RawMessage
}

func (t *Tid) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("tid: empty value")
	}
	switch b[0] {
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		t.raw = append(t.raw[:0], b...)
		return nil
	}
	return fmt.Errorf("tid: expected a number or a string, got %q", b)
}

func (t Tid) MarshalJSON() ([]byte, error) {
	if t.raw == nil {
		return []byte("0"), nil
	}
	return t.raw, nil
}

func (t Tid) String() string {
	return string(bytes.Trim(t.raw, `"`))
}

// Decode reads a processed profile, rejecting unknown fields to catch
// format drift early, and validates the table invariants every transform
// relies on. On failure no partial profile is returned.
func Decode(r io.Reader) (*Profile, error) {
	var p Profile
	d := gojson.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", errorutil.ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks each table's length field against its columns and the
// prefix-ordering invariant, and materializes defaults for optional
// sample columns so that transforms never have to branch on them.
func (p *Profile) Validate() error {
	for ti := range p.Threads {
		t := &p.Threads[ti]
		if err := t.validate(len(p.Libs)); err != nil {
			return fmt.Errorf("%w: thread %d: %v", errorutil.ErrInvalidProfile, ti, err)
		}
	}
	return nil
}

func (t *Thread) validate(libCount int) error {
	if err := checkColumns("samples", t.Samples.Length, map[string]int{
		"stack": len(t.Samples.Stack),
		"time":  len(t.Samples.Time),
	}); err != nil {
		return err
	}
	// The weight and threadCPUDelta columns are optional. An absent
	// weight column means every sample weighs 1.
	if len(t.Samples.Weight) == 0 && t.Samples.Length > 0 {
		t.Samples.Weight = make([]uint64, t.Samples.Length)
		for i := range t.Samples.Weight {
			t.Samples.Weight[i] = 1
		}
	} else if len(t.Samples.Weight) != t.Samples.Length {
		return fmt.Errorf("samples: weight column has %d rows, expected %d", len(t.Samples.Weight), t.Samples.Length)
	}
	if len(t.Samples.ThreadCPUDelta) == 0 && t.Samples.Length > 0 {
		t.Samples.ThreadCPUDelta = make([]uint64, t.Samples.Length)
	} else if len(t.Samples.ThreadCPUDelta) != t.Samples.Length {
		return fmt.Errorf("samples: threadCPUDelta column has %d rows, expected %d", len(t.Samples.ThreadCPUDelta), t.Samples.Length)
	}

	if err := checkColumns("stackTable", t.StackTable.Length, map[string]int{
		"frame":  len(t.StackTable.Frame),
		"prefix": len(t.StackTable.Prefix),
	}); err != nil {
		return err
	}
	if err := checkColumns("frameTable", t.FrameTable.Length, map[string]int{
		"address":      len(t.FrameTable.Address),
		"inlineDepth":  len(t.FrameTable.InlineDepth),
		"func":         len(t.FrameTable.Func),
		"nativeSymbol": len(t.FrameTable.NativeSymbol),
		"line":         len(t.FrameTable.Line),
		"column":       len(t.FrameTable.Column),
	}); err != nil {
		return err
	}
	if err := checkColumns("funcTable", t.FuncTable.Length, map[string]int{
		"name":          len(t.FuncTable.Name),
		"resource":      len(t.FuncTable.Resource),
		"fileName":      len(t.FuncTable.FileName),
		"lineNumber":    len(t.FuncTable.LineNumber),
		"columnNumber":  len(t.FuncTable.ColumnNumber),
		"isJS":          len(t.FuncTable.IsJS),
		"relevantForJS": len(t.FuncTable.RelevantForJS),
	}); err != nil {
		return err
	}
	if err := checkColumns("resourceTable", t.ResourceTable.Length, map[string]int{
		"lib":  len(t.ResourceTable.Lib),
		"name": len(t.ResourceTable.Name),
		"host": len(t.ResourceTable.Host),
		"type": len(t.ResourceTable.Type),
	}); err != nil {
		return err
	}
	if err := checkColumns("nativeSymbols", t.NativeSymbols.Length, map[string]int{
		"libIndex":     len(t.NativeSymbols.LibIndex),
		"address":      len(t.NativeSymbols.Address),
		"name":         len(t.NativeSymbols.Name),
		"functionSize": len(t.NativeSymbols.FunctionSize),
	}); err != nil {
		return err
	}

	for i, prefix := range t.StackTable.Prefix {
		if prefix.Valid() && prefix.Index() >= i {
			return fmt.Errorf("stackTable: stack %d has prefix %d, want prefix < stack", i, prefix.Index())
		}
	}
	for i, stack := range t.Samples.Stack {
		if stack < 0 || stack >= t.StackTable.Length {
			return fmt.Errorf("samples: sample %d references stack %d, stack table has %d rows", i, stack, t.StackTable.Length)
		}
	}
	for i, lib := range t.NativeSymbols.LibIndex {
		if lib < 0 || lib >= libCount {
			return fmt.Errorf("nativeSymbols: symbol %d references lib %d, profile has %d libs", i, lib, libCount)
		}
	}
	return nil
}

func checkColumns(table string, length int, columns map[string]int) error {
	for name, rows := range columns {
		if rows != length {
			return fmt.Errorf("%s: %s column has %d rows, expected %d", table, name, rows, length)
		}
	}
	return nil
}

// InternString appends s to the thread's string table and returns its
// index. Existing entries are never removed or mutated.
func (t *Thread) InternString(s string) int {
	t.StringArray = append(t.StringArray, s)
	return len(t.StringArray) - 1
}
