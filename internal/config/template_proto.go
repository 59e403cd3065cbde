package config

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MarshalProto encodes the template as a google.protobuf.Struct.
func (t *Template) MarshalProto() ([]byte, error) {
	list := make([]interface{}, 0, len(t.Layers))
	for _, l := range t.Layers {
		list = append(list, protoSafe(l))
	}
	st, err := structpb.NewStruct(map[string]interface{}{"layers": list})
	if err != nil {
		return nil, err
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(st)
}

func unmarshalProtoTemplate(data []byte) (*Template, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	list, ok := st.AsMap()["layers"].([]interface{})
	if !ok {
		return &Template{}, nil
	}
	t := &Template{Layers: make([]map[string]interface{}, 0, len(list))}
	for i, v := range list {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("layer %d is %T, not an object", i, v)
		}
		t.Layers = append(t.Layers, m)
	}
	return t, nil
}

// protoSafe widens the value types structpb does not accept.
func protoSafe(v interface{}) interface{} {
	switch v := v.(type) {
	case uint8:
		return uint32(v)
	case uint16:
		return uint32(v)
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			out[k] = protoSafe(e)
		}
		return out
	}
	return v
}
