package pipeline

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/engine"
	"github.com/wippyai/wasm-pipeline/errors"
)

// lowerInputs writes every memory-backed input before the entry point
// runs. File inputs are read by the module through its preopens.
func (s *session) lowerInputs(ctx context.Context, inputs []Input) error {
	for i, in := range inputs {
		index := uint32(i)
		var err error
		switch in.Type {
		case BinaryArray, BinaryStream, TextStream:
			_, err = s.lowerArray(ctx, index, in.SubIndex, in.Data)
		case JSONObject:
			err = s.lowerJSON(ctx, index, in.JSON)
		case TextFile, BinaryFile:
		default:
			err = unsupportedInput(i, in.Type)
		}
		if err != nil {
			return withPath(err, "inputs", i)
		}
	}
	return nil
}

// lowerArray copies data into a buffer allocated by the module and
// returns its address. Empty data is a null pointer and allocates nothing.
func (s *session) lowerArray(ctx context.Context, index, subIndex uint32, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	ptr, err := s.call(ctx, engine.ExportInputArrayAlloc, 0, index, subIndex, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	if err := s.mem.Write(ptr, data); err != nil {
		return 0, err
	}
	s.log.Debug("input lowered",
		zap.String("instance", s.name()),
		zap.Uint32("index", index),
		zap.Uint32("sub_index", subIndex),
		zap.Int("length", len(data)),
		zap.Uint32("ptr", ptr))
	return ptr, nil
}

// lowerJSON encodes obj and copies it into a buffer allocated by the module.
// A nil map is sent as an empty object.
func (s *session) lowerJSON(ctx context.Context, index uint32, obj map[string]any) error {
	if obj == nil {
		obj = map[string]any{}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.InvalidInput(errors.PhaseEncode, "encode JSON input", err)
	}
	ptr, err := s.call(ctx, engine.ExportInputJSONAlloc, 0, index, uint32(len(data)))
	if err != nil {
		return err
	}
	if err := s.mem.Write(ptr, data); err != nil {
		return err
	}
	s.log.Debug("input lowered",
		zap.String("instance", s.name()),
		zap.Uint32("index", index),
		zap.String("kind", string(JSONObject)),
		zap.Int("length", len(data)),
		zap.Uint32("ptr", ptr))
	return nil
}

func unsupportedInput(index int, kind InterfaceType) error {
	return errors.New(errors.PhaseValidate, errors.KindUnsupported).
		Path("inputs", strconv.Itoa(index)).
		Value(string(kind)).
		Detail("input kind %q not supported", kind).
		Build()
}
