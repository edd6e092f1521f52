package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/streamplan/internal/catalog"
	"github.com/roach88/streamplan/internal/plan"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Stream spec errors
	ErrCodePartitions    = "E101" // Missing or non-positive partition count
	ErrCodeKeyField      = "E102" // Key is not a declared field
	ErrCodeFields        = "E103" // No fields declared
	ErrCodeInvalidType   = "E104" // Invalid field or stream type
	ErrCodeDuplicateName = "E105" // Stream declared twice

	// Plan errors
	ErrCodePlanConfiguration = "E201" // Malformed plan or compile settings
	ErrCodeQueryDefinition   = "E202" // Semantically invalid plan
	ErrCodeCoPartitioning    = "E203" // Sources cannot be co-partitioned
	ErrCodeStreamNotFound    = "E204" // Plan scans an undeclared stream
	ErrCodePlanDecode        = "E205" // Plan document cannot be decoded
	ErrCodeSchemaMismatch    = "E206" // Scan schema differs from the catalog

	// Metastore errors
	ErrCodeStore         = "E301" // Metastore open/read/write failed
	ErrCodeQueryNotFound = "E302" // Unknown query id
)

// MapFieldToErrorCode maps a stream spec error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "partitions":
		return ErrCodePartitions
	case "key":
		return ErrCodeKeyField
	case "fields":
		return ErrCodeFields
	case "type":
		return ErrCodeInvalidType
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}

// mapStageToErrorCode maps a catalog load stage to an error code.
func mapStageToErrorCode(stage catalog.Stage) string {
	switch stage {
	case catalog.StageNotFound:
		return ErrCodeNotFound
	case catalog.StageScan:
		return ErrCodeScanError
	case catalog.StageNoFiles:
		return ErrCodeNoFiles
	case catalog.StageLoad:
		return ErrCodeLoadFailed
	case catalog.StageBuild:
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}

// loadErrorProblem converts a catalog load error to a Problem.
func loadErrorProblem(err error) Problem {
	var loadErr *catalog.LoadError
	if !errors.As(err, &loadErr) {
		return Problem{Code: ErrCodeGeneric, Message: err.Error()}
	}
	p := Problem{
		Code:    mapStageToErrorCode(loadErr.Stage),
		Source:  loadErr.Stream,
		Field:   loadErr.Field,
		Message: loadErr.Message,
	}
	if loadErr.Stage == catalog.StageCompile {
		p.Code = MapFieldToErrorCode(loadErr.Field)
	}
	if loadErr.Pos.IsValid() {
		p.Line = loadErr.Pos.Line()
	}
	return p
}

// CatalogLoad is the outcome of loading a specs directory.
type CatalogLoad struct {
	Catalog   *catalog.Catalog
	FileCount int
	Problems  []Problem

	// Fatal is set when the directory itself could not be loaded, as
	// opposed to individual streams failing to compile.
	Fatal bool
}

// LoadCatalog loads every stream under dir, collecting all errors.
// Catalog holds the streams that compiled.
func LoadCatalog(dir string) *CatalogLoad {
	result, errs := catalog.LoadDir(dir, catalog.LoadModeCollectAll)
	out := &CatalogLoad{}
	for _, err := range errs {
		out.Problems = append(out.Problems, loadErrorProblem(err))
	}
	if result == nil {
		out.Fatal = true
		return out
	}
	out.FileCount = result.FileCount

	c, err := catalog.New(result.Streams...)
	if err != nil {
		out.Problems = append(out.Problems, Problem{Code: ErrCodeDuplicateName, Message: err.Error()})
		out.Fatal = true
		return out
	}
	out.Catalog = c
	return out
}

// exitCode returns the exit status for a failed load: missing or unreadable
// directories are command errors, bad specs are failures.
func (l *CatalogLoad) exitCode() int {
	if len(l.Problems) > 0 && l.Problems[0].Code == ErrCodeNotFound {
		return ExitCommandError
	}
	return ExitFailure
}

// readPlan reads a plan document. Files ending in .json are decoded as JSON,
// everything else as YAML.
func readPlan(path string) (plan.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return plan.UnmarshalDocument(data)
	}
	return plan.UnmarshalYAMLDocument(data)
}

// loadPlan reads a plan and converts failures into an ExitError carrying
// the problem to report.
func loadPlan(path string) (plan.Node, *Problem, error) {
	root, err := readPlan(path)
	if err == nil {
		return root, nil, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		p := Problem{Code: ErrCodeNotFound, Source: path, Message: fmt.Sprintf("plan file not found: %s", path)}
		return nil, &p, NewExitError(ExitCommandError, p.Message)
	}
	code := planErrorCode(err)
	if code == ErrCodeGeneric {
		code = ErrCodePlanDecode
	}
	p := Problem{Code: code, Source: path, Message: err.Error()}
	return nil, &p, WrapExitError(ExitFailure, "invalid plan", err)
}

// planErrorCode maps a plan or compile error to an error code.
func planErrorCode(err error) string {
	var pe *plan.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case plan.ErrCodeConfiguration:
			return ErrCodePlanConfiguration
		case plan.ErrCodeQueryDefinition:
			return ErrCodeQueryDefinition
		case plan.ErrCodeCoPartitioning:
			return ErrCodeCoPartitioning
		}
	}
	if errors.Is(err, plan.ErrStreamNotFound) {
		return ErrCodeStreamNotFound
	}
	return ErrCodeGeneric
}
