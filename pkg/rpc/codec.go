package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CodecName is registered with google.golang.org/grpc/encoding and
// selected per-call via grpc.CallContentSubtype/grpc.ForceServerCodec,
// since this service's in-repo scope stops before a real .proto/wire
// format is available to generate from (spec §1).
const CodecName = "json"

// jsonCodec implements encoding.Codec over the request/response types
// in messages.go. Every message here is a plain exported struct, so
// encoding/json needs no registration step the way gogo/protobuf or a
// generated marshaler would.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}
