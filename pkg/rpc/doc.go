/*
Package rpc exposes pkg/agent's operations over gRPC (spec §6). Spec §1
explicitly externalizes "the IPC transport and its generated stubs", so
no protoc-generated marshal code is available to vendor here; the
service descriptor, request/response types, and handler functions are
hand-written in the same shape protoc-gen-go-grpc produces
(grpc.ServiceDesc, _Handler functions decoding through a
func(interface{}) error), registered with a small JSON
encoding.Codec instead of the usual protobuf wire format — the one
deliberate departure, forced by that externalization rather than a
general preference for JSON over protobuf.
*/
package rpc
