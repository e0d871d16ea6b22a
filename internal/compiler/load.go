package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/nexus/internal/ir"
)

// CompileString compiles CUE source. name is used in error positions.
func CompileString(name, src string) (*ir.Topology, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	return CompileTopology(v)
}

// LoadFile compiles a single .cue file.
func LoadFile(path string) (*ir.Topology, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(path))
	return CompileTopology(v)
}

// LoadDir loads every .cue file of the package in dir and compiles the
// unified value. Files must share a package clause.
func LoadDir(dir string) (*ir.Topology, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("topology directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	return CompileTopology(v)
}

// Load compiles path as a directory or a single file.
func Load(path string) (*ir.Topology, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}
