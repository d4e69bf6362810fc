package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"

	"github.com/treescope/treescope/internal/logutil"
	"github.com/treescope/treescope/internal/nodetree"
	"github.com/treescope/treescope/internal/profile"
	"github.com/treescope/treescope/internal/transform"
)

type transformFlags []string

func (f *transformFlags) String() string {
	return strings.Join(*f, ",")
}

func (f *transformFlags) Set(value string) error {
	*f = append(*f, value)
	return nil
}

func main() {
	var transforms transformFlags
	threadIndex := flag.Int("thread", 0, "thread index to report on")
	prune := flag.Float64("prune", 0, "prune nodes below this percentage of the total")
	flag.Var(&transforms, "transform", "transform to apply, op=arg (repeatable); ops: collapse_resource=<resource>, collapse_all_resources[=<except>], collapse_subtree=<func>, collapse_recursion=<func>, merge_function=<func>, focus_function=<func>, rename_function=<func>=<newName>")
	flag.Parse()

	logutil.ConfigureLogger(false)

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <profile.json[.lz4]>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	path := flag.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("can't open profile")
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".lz4" {
		r = lz4.NewReader(f)
	}

	p, err := profile.Decode(r)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("can't decode profile")
	}

	for _, raw := range transforms {
		spec, err := parseSpec(raw, *threadIndex)
		if err != nil {
			log.Fatal().Err(err).Str("transform", raw).Msg("can't parse transform")
		}
		if err := transform.Apply(p, spec); err != nil {
			log.Fatal().Err(err).Str("transform", raw).Msg("can't apply transform")
		}
	}

	if *threadIndex < 0 || *threadIndex >= len(p.Threads) {
		log.Fatal().Int("thread", *threadIndex).Int("threads", len(p.Threads)).Msg("thread index out of range")
	}

	tree := nodetree.FromThread(p, *threadIndex)
	if *prune > 0 {
		tree.Prune(*prune)
	}

	fmt.Print(tree.Render())
}

func parseSpec(raw string, threadIndex int) (transform.Spec, error) {
	spec := transform.Spec{Thread: threadIndex}

	op, arg := raw, ""
	if i := strings.Index(raw, "="); i >= 0 {
		op, arg = raw[:i], raw[i+1:]
	}
	spec.Op = op

	switch op {
	case transform.OpCollapseResource, transform.OpCollapseAllResources:
		spec.Resource = arg
	case transform.OpCollapseSubtree, transform.OpCollapseRecursion,
		transform.OpMergeFunction, transform.OpFocusFunction:
		spec.Function = arg
	case transform.OpRenameFunction:
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return spec, fmt.Errorf("rename_function wants <func>=<newName>, got %q", arg)
		}
		spec.Function, spec.NewName = parts[0], parts[1]
	default:
		return spec, fmt.Errorf("unknown transform op %q", op)
	}
	return spec, nil
}
