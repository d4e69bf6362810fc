package profile

// Read-only navigational views over the profile tables. A view is a
// (profile, thread, index) triple; following a link returns another view
// into the same tables. Views never mutate the underlying profile.

type (
	Sample struct {
		profile *Profile
		thread  *Thread
		index   int
	}

	Stack struct {
		profile *Profile
		thread  *Thread
		index   int
	}

	Frame struct {
		profile *Profile
		thread  *Thread
		index   int
	}

	Func struct {
		profile *Profile
		thread  *Thread
		index   int
	}

	NativeSymbol struct {
		profile *Profile
		thread  *Thread
		index   int
	}
)

func NewSample(p *Profile, t *Thread, index int) Sample {
	return Sample{profile: p, thread: t, index: index}
}

func (s Sample) Stack() Stack {
	return NewStack(s.profile, s.thread, s.thread.Samples.Stack[s.index])
}

func (s Sample) Time() float64 {
	return s.thread.Samples.Time[s.index]
}

func (s Sample) Weight() uint64 {
	return s.thread.Samples.Weight[s.index]
}

func NewStack(p *Profile, t *Thread, index int) Stack {
	return Stack{profile: p, thread: t, index: index}
}

func (s Stack) Index() int {
	return s.index
}

func (s Stack) Frame() Frame {
	return NewFrame(s.profile, s.thread, s.thread.StackTable.Frame[s.index])
}

func (s Stack) Prefix() (Stack, bool) {
	prefix := s.thread.StackTable.Prefix[s.index]
	if !prefix.Valid() {
		return Stack{}, false
	}
	return NewStack(s.profile, s.thread, prefix.Index()), true
}

// FrameStack returns the leaf-to-root sequence of frames, obtained by
// following prefixes. Its length is bounded by the depth of the tree.
func (s Stack) FrameStack() []Frame {
	var frames []Frame
	current, ok := s, true
	for ok {
		frames = append(frames, current.Frame())
		current, ok = current.Prefix()
	}
	return frames
}

// SymbolStack is FrameStack restricted to native frames.
func (s Stack) SymbolStack() []NativeSymbol {
	var symbols []NativeSymbol
	for _, frame := range s.FrameStack() {
		if symbol, ok := frame.NativeSymbol(); ok {
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

// LibStack maps SymbolStack to owning libraries, collapsing consecutive
// repeats of the same library.
func (s Stack) LibStack() []*Lib {
	var libs []*Lib
	lastLibIndex := -1
	for _, symbol := range s.SymbolStack() {
		if libIndex := symbol.LibIndex(); libIndex != lastLibIndex {
			libs = append(libs, &s.profile.Libs[libIndex])
			lastLibIndex = libIndex
		}
	}
	return libs
}

func NewFrame(p *Profile, t *Thread, index int) Frame {
	return Frame{profile: p, thread: t, index: index}
}

func (f Frame) Index() int {
	return f.index
}

func (f Frame) Func() Func {
	return NewFunc(f.profile, f.thread, f.thread.FrameTable.Func[f.index])
}

func (f Frame) NativeSymbol() (NativeSymbol, bool) {
	symbol := f.thread.FrameTable.NativeSymbol[f.index]
	if !symbol.Valid() {
		return NativeSymbol{}, false
	}
	return NewNativeSymbol(f.profile, f.thread, symbol.Index()), true
}

func NewFunc(p *Profile, t *Thread, index int) Func {
	return Func{profile: p, thread: t, index: index}
}

func (f Func) Index() int {
	return f.index
}

func (f Func) Name() string {
	return f.thread.StringArray[f.thread.FuncTable.Name[f.index]]
}

func (f Func) ResourceIndex() (int, bool) {
	resource := f.thread.FuncTable.Resource[f.index]
	if resource < 0 {
		return 0, false
	}
	return resource, true
}

func NewNativeSymbol(p *Profile, t *Thread, index int) NativeSymbol {
	return NativeSymbol{profile: p, thread: t, index: index}
}

func (n NativeSymbol) Name() string {
	return n.thread.StringArray[n.thread.NativeSymbols.Name[n.index]]
}

func (n NativeSymbol) LibIndex() int {
	return n.thread.NativeSymbols.LibIndex[n.index]
}

func (n NativeSymbol) Lib() *Lib {
	return &n.profile.Libs[n.LibIndex()]
}
