package cli

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docagg/internal/definition"
)

//go:embed schema.cue
var definitionSchema string

// LoadError represents an error that occurred while loading a definition.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeUnsupported = "E002" // Unsupported definition file type
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build or schema check failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeDecode      = "E008" // Definition decode failed

	ErrCodeCompile  = "E101" // Stage expression or pipeline grammar error
	ErrCodeDatabase = "E201" // Emulator could not be opened or written
	ErrCodeQuery    = "E202" // Query execution failed
	ErrCodeConfig   = "E301" // Invalid configuration
)

// LoadDefinition reads a pipeline definition. A .cue file or a directory of
// CUE files is checked against the definition schema; .yaml, .yml and .json
// files are decoded directly.
func LoadDefinition(path string) (*definition.Definition, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definition: %v", err)}
	}

	if info.IsDir() {
		return loadCUE(path, ".")
	}
	switch filepath.Ext(path) {
	case ".cue":
		return loadCUE(filepath.Dir(path), filepath.Base(path))
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading definition: %v", err)}
		}
		d, err := definition.DecodeYAML(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeDecode, Message: err.Error()}
		}
		return d, nil
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported definition file %s: want .cue, .yaml, .yml or .json", path)}
	}
}

func loadCUE(dir, arg string) (*definition.Definition, error) {
	if arg == "." {
		files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("scanning %s: %v", dir, err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
		}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{arg}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueLoadError(ErrCodeLoadFailed, "loading CUE files", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, "building CUE value", err)
	}

	schema := ctx.CompileString(definitionSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, "compiling definition schema", err)
	}
	value = schema.LookupPath(cue.ParsePath("#Definition")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeBuildFailed, "invalid definition", err)
	}

	var d definition.Definition
	if err := value.Decode(&d); err != nil {
		return nil, cueLoadError(ErrCodeDecode, "decoding definition", err)
	}
	return &d, nil
}

// cueLoadError keeps the position of the first CUE error.
func cueLoadError(code, context string, err error) *LoadError {
	le := &LoadError{Code: code, Message: fmt.Sprintf("%s: %v", context, err)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = fmt.Sprintf("%s: %s", context, errs[0].Error())
	}
	return le
}

// describeLoadError splits err into an error code and a message that keeps
// the CUE position.
func describeLoadError(err error) (code, message string) {
	var le *LoadError
	if !errors.As(err, &le) {
		return ErrCodeGeneric, err.Error()
	}
	if le.Pos.IsValid() {
		return le.Code, fmt.Sprintf("%s:%d:%d: %s", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column(), le.Message)
	}
	return le.Code, le.Message
}
