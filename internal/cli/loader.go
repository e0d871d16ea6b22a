package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/nexus/internal/catalog"
	"github.com/roach88/nexus/internal/compiler"
	"github.com/roach88/nexus/internal/ir"
)

// LoadError represents an error that occurred while loading a topology.
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

// Error codes for CLI load failures.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // Nexus assembly failed
	ErrCodeWriteFailed = "E007" // File or journal write error
	ErrCodeReadFailed  = "E008" // File or journal read error
)

// LoadTopology compiles a topology file or package directory.
// Every failure is a *LoadError.
func LoadTopology(path string) (*ir.Topology, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("topology not found: %s", path)}
	}

	t, err := compiler.Load(path)
	if err != nil {
		var cerr *compiler.CompileError
		if errors.As(err, &cerr) {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: cerr.Field + ": " + cerr.Message, Pos: cerr.Pos}
		}
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	}
	return t, nil
}

// defaultCatalog is the catalog commands validate and build against.
// A nil factory falls back to random ids and wall-clock time.
func defaultCatalog(factory *ir.Factory, opts ...catalog.Option) *catalog.Registry {
	if factory == nil {
		factory = ir.NewFactory(nil, nil)
	}
	return catalog.Default(factory, opts...)
}

// outputLoadError reports a load failure as a command error (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Error(), nil)
		return WrapExitError(ExitCommandError, loadErr.Code, err)
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
}
