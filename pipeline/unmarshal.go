package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-pipeline/engine"
	"github.com/wippyai/wasm-pipeline/errors"
)

// liftOutput decodes the output at index according to its declared kind.
// Kinds without a decoder are refused rather than coerced.
func (s *session) liftOutput(ctx context.Context, index uint32, spec OutputSpec) (Output, error) {
	out := Output{Type: spec.Type}
	if !spec.Type.IsFile() && s.exited() {
		// the module memory is gone with the instance
		return Output{}, errors.Exited(engine.ExportDelayedStart, 0)
	}
	switch spec.Type {
	case TextStream:
		data, err := s.liftArray(ctx, index, 0)
		if err != nil {
			return Output{}, err
		}
		out.Text = strings.ToValidUTF8(string(data), "\uFFFD")
	case BinaryStream:
		data, err := s.liftArray(ctx, index, 0)
		if err != nil {
			return Output{}, err
		}
		out.Data = data
	case JSONObject:
		obj, err := s.liftJSON(ctx, index)
		if err != nil {
			return Output{}, err
		}
		out.JSON = obj
	case TextFile, BinaryFile:
		// written by the module through its preopen
		out.Path = spec.Path
	default:
		return Output{}, errors.UnsupportedOutputKind(string(spec.Type))
	}
	return out, nil
}

func (s *session) liftArray(ctx context.Context, index, subIndex uint32) ([]byte, error) {
	ptr, err := s.call(ctx, engine.ExportOutputArrayAddr, 0, index, subIndex)
	if err != nil {
		return nil, err
	}
	size, err := s.call(ctx, engine.ExportOutputArraySize, 0, index, subIndex)
	if err != nil {
		return nil, err
	}
	data, err := s.mem.Read(ptr, size)
	if err != nil {
		return nil, err
	}
	s.log.Debug("output lifted",
		zap.String("instance", s.name()),
		zap.Uint32("index", index),
		zap.Uint32("sub_index", subIndex),
		zap.Uint32("length", size))
	return data, nil
}

func (s *session) liftJSON(ctx context.Context, index uint32) (map[string]any, error) {
	ptr, err := s.call(ctx, engine.ExportOutputJSONAddress, 0, index)
	if err != nil {
		return nil, err
	}
	size, err := s.call(ctx, engine.ExportOutputJSONSize, 0, index)
	if err != nil {
		return nil, err
	}
	data, err := s.mem.Read(ptr, size)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode JSON output")
	}
	s.log.Debug("output lifted",
		zap.String("instance", s.name()),
		zap.Uint32("index", index),
		zap.String("kind", string(JSONObject)),
		zap.Uint32("length", size))
	return obj, nil
}
