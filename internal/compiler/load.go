package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadModel loads the CUE package in dir and compiles its top-level model
// field. A model without a name takes the directory's base name.
func LoadModel(dir string) (*ModelResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	res, err := compileRoot(value)
	if err != nil {
		return nil, err
	}
	if res.Model.Name == "" {
		if abs, err := filepath.Abs(dir); err == nil {
			res.Model.Name = filepath.Base(abs)
		}
	}
	res.Files = len(inst.BuildFiles)
	return res, nil
}

// LoadModelSource compiles a model from CUE source text.
func LoadModelSource(filename, src string) (*ModelResult, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	res, err := compileRoot(value)
	if err != nil {
		return nil, err
	}
	if res.Model.Name == "" {
		res.Model.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return res, nil
}

func compileRoot(value cue.Value) (*ModelResult, error) {
	mv := value.LookupPath(cue.ParsePath("model"))
	if !mv.Exists() {
		return nil, &CompileError{Field: "model", Message: "no top-level model field", Pos: value.Pos()}
	}
	m, err := CompileModel(mv)
	if err != nil {
		return nil, err
	}
	return &ModelResult{Model: m, Errors: Validate(m)}, nil
}
