package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-pipeline/pipeline"
)

// RunFile describes one pipeline invocation.
//
//	module: threshold.wasm
//	args: ["--sigma", "1.5", "/data/in/image.nrrd"]
//	inputs:
//	  - kind: binary-file
//	    path: /data/in/image.nrrd
//	  - kind: json
//	    json: {labels: [1, 2]}
//	outputs:
//	  - kind: json
//	  - kind: binary-stream
//	    path: mask.bin
type RunFile struct {
	Module           string            `yaml:"module" validate:"required"`
	Args             []string          `yaml:"args"`
	Env              map[string]string `yaml:"env"`
	Inputs           []InputEntry      `yaml:"inputs" validate:"dive"`
	Outputs          []OutputEntry     `yaml:"outputs" validate:"dive"`
	MemoryLimitPages uint32            `yaml:"memory_limit_pages" validate:"max=65536"`

	dir string
}

// InputEntry is one input. File kinds take path as seen by the module.
// Memory kinds take inline data, a json object, or a host file path
// whose contents are sent.
type InputEntry struct {
	Kind     string         `yaml:"kind" validate:"required,kind"`
	Path     string         `yaml:"path"`
	Data     string         `yaml:"data"`
	JSON     map[string]any `yaml:"json"`
	SubIndex uint32         `yaml:"sub_index"`
}

// OutputEntry is one expected output. For stream and json kinds, path is
// an optional host file the decoded result is saved to.
type OutputEntry struct {
	Kind string `yaml:"kind" validate:"required,kind"`
	Path string `yaml:"path"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("kind", func(fl validator.FieldLevel) bool {
		_, ok := pipeline.ParseInterfaceType(fl.Field().String())
		return ok
	})
	return v
}

// LoadRunFile reads and validates a run file. The module path is
// resolved against the directory holding the run file.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	rf, err := ParseRunFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rf.dir = filepath.Dir(path)
	if !filepath.IsAbs(rf.Module) {
		rf.Module = filepath.Join(rf.dir, rf.Module)
	}
	return rf, nil
}

// ParseRunFile decodes and validates run file YAML. Unknown keys are errors.
func ParseRunFile(data []byte) (*RunFile, error) {
	var rf RunFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	if err := validate.Struct(&rf); err != nil {
		return nil, fmt.Errorf("run file validation failed: %w", err)
	}
	for i, in := range rf.Inputs {
		kind, _ := pipeline.ParseInterfaceType(in.Kind)
		if kind.IsFile() && in.Path == "" {
			return nil, fmt.Errorf("inputs[%d]: %s input requires path", i, kind)
		}
	}
	for i, out := range rf.Outputs {
		kind, _ := pipeline.ParseInterfaceType(out.Kind)
		if kind.IsFile() && out.Path == "" {
			return nil, fmt.Errorf("outputs[%d]: %s output requires path", i, kind)
		}
	}
	return &rf, nil
}

// PipelineInputs converts the entries, reading host files for memory kinds.
func (rf *RunFile) PipelineInputs() ([]pipeline.Input, error) {
	inputs := make([]pipeline.Input, 0, len(rf.Inputs))
	for i, entry := range rf.Inputs {
		kind, _ := pipeline.ParseInterfaceType(entry.Kind)
		switch kind {
		case pipeline.TextFile:
			inputs = append(inputs, pipeline.TextFileInput(entry.Path))
			continue
		case pipeline.BinaryFile:
			inputs = append(inputs, pipeline.BinaryFileInput(entry.Path))
			continue
		case pipeline.JSONObject:
			inputs = append(inputs, pipeline.JSONInput(entry.JSON))
			continue
		}

		data := []byte(entry.Data)
		if entry.Path != "" {
			var err error
			if data, err = os.ReadFile(rf.resolve(entry.Path)); err != nil {
				return nil, fmt.Errorf("inputs[%d]: %w", i, err)
			}
		}
		switch kind {
		case pipeline.TextStream:
			inputs = append(inputs, pipeline.TextStreamInput(string(data)))
		case pipeline.BinaryStream:
			inputs = append(inputs, pipeline.BinaryStreamInput(data))
		case pipeline.BinaryArray:
			inputs = append(inputs, pipeline.BinaryArrayPart(data, entry.SubIndex))
		default:
			// refused by Pipeline.Run before the module starts
			inputs = append(inputs, pipeline.Input{Type: kind, Data: data})
		}
	}
	return inputs, nil
}

// OutputSpecs converts the output entries. Only file kinds pass their
// path to the pipeline; other paths are save targets.
func (rf *RunFile) OutputSpecs() []pipeline.OutputSpec {
	specs := make([]pipeline.OutputSpec, 0, len(rf.Outputs))
	for _, entry := range rf.Outputs {
		kind, _ := pipeline.ParseInterfaceType(entry.Kind)
		spec := pipeline.OutputSpec{Type: kind}
		if kind.IsFile() {
			spec.Path = entry.Path
		}
		specs = append(specs, spec)
	}
	return specs
}

// SaveTargets returns the host path each non-file output is saved to, or "".
func (rf *RunFile) SaveTargets() []string {
	targets := make([]string, len(rf.Outputs))
	for i, entry := range rf.Outputs {
		kind, _ := pipeline.ParseInterfaceType(entry.Kind)
		if !kind.IsFile() && entry.Path != "" {
			targets[i] = rf.resolve(entry.Path)
		}
	}
	return targets
}

func (rf *RunFile) resolve(path string) string {
	if filepath.IsAbs(path) || rf.dir == "" {
		return path
	}
	return filepath.Join(rf.dir, path)
}
