package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Stage says where loading failed.
type Stage int

const (
	StageNotFound Stage = iota + 1
	StageScan
	StageNoFiles
	StageLoad
	StageBuild
	StageCompile
)

func (s Stage) String() string {
	switch s {
	case StageNotFound:
		return "not-found"
	case StageScan:
		return "scan"
	case StageNoFiles:
		return "no-files"
	case StageLoad:
		return "load"
	case StageBuild:
		return "build"
	case StageCompile:
		return "compile"
	default:
		return "unknown"
	}
}

// LoadResult contains the streams loaded from a directory.
type LoadResult struct {
	Streams []*StreamSpec

	// FileCount is the number of CUE files built into the streams.
	FileCount int
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Stage   Stage
	Stream  string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Stream != "" {
		msg = fmt.Sprintf("stream %s: %s", e.Stream, msg)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

// LoadDir loads every stream declared under dir.
// With LoadModeFailFast the first error is returned alone; with
// LoadModeCollectAll every stream that compiles is returned alongside
// the errors of those that did not.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Stage: StageNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Stage: StageNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Stage: StageNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Stage: StageScan, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Stage: StageNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Stage: StageLoad, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Stage: StageLoad, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Stage: StageBuild, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	streams, errs := compileStreams(value, mode)
	return &LoadResult{Streams: streams, FileCount: len(inst.BuildFiles)}, errs
}

// LoadString compiles streams from CUE source text.
func LoadString(src string) ([]*StreamSpec, error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Stage: StageBuild, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	streams, errs := compileStreams(value, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return streams, nil
}

func compileStreams(value cue.Value, mode LoadMode) ([]*StreamSpec, []error) {
	var (
		streams []*StreamSpec
		errs    []error
	)

	streamsVal := value.LookupPath(cue.ParsePath("stream"))
	if !streamsVal.Exists() {
		return nil, []error{&LoadError{Stage: StageCompile, Message: "no streams found in specs"}}
	}

	iter, err := streamsVal.Fields()
	if err != nil {
		return nil, []error{&LoadError{Stage: StageCompile, Message: fmt.Sprintf("iterating streams: %v", err)}}
	}
	for iter.Next() {
		spec, err := CompileStream(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(err, iter.Label()))
			if mode == LoadModeFailFast {
				return streams, errs
			}
			continue
		}
		spec.Name = iter.Label()
		streams = append(streams, spec)
	}

	sort.Slice(streams, func(i, j int) bool { return streams[i].Name < streams[j].Name })
	return streams, errs
}

// FindCUEFiles returns the .cue files directly in dir. Subdirectories hold
// other packages and are not loaded.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func convertCompileError(err error, stream string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Stage:   StageCompile,
			Stream:  stream,
			Field:   compileErr.Field,
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Stage: StageCompile, Stream: stream, Message: err.Error()}
}
