package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/cuemby/warren/pkg/agent"
)

// AgentServer is the interface handler functions below dispatch to —
// the same shape protoc-gen-go-grpc would emit from a service
// definition naming these nine RPCs plus the WatchProcessState stream.
type AgentServer interface {
	List(context.Context, *ListRequest) (*ListResponse, error)
	ListCapabilities(context.Context, *ListCapabilitiesRequest) (*ListCapabilitiesResponse, error)
	CreateContainer(context.Context, *CreateContainerRequest) (*CreateContainerResponse, error)
	Execute(context.Context, *ExecuteRequest) (*ExecuteResponse, error)
	Suspend(context.Context, *SuspendRequest) (*Empty, error)
	Resume(context.Context, *ResumeRequest) (*Empty, error)
	Destroy(context.Context, *DestroyRequest) (*Empty, error)
	BindMount(context.Context, *BindMountRequest) (*Empty, error)
	SetCapabilities(context.Context, *SetCapabilitiesRequest) (*Empty, error)
	WatchProcessState(*WatchProcessStateRequest, AgentWatchProcessStateServer) error
}

// AgentWatchProcessStateServer is the server side of the
// WatchProcessState stream, mirroring the generated
// <Service>_<Method>Server type.
type AgentWatchProcessStateServer interface {
	Send(*ProcessStateChanged) error
	grpc.ServerStream
}

type agentWatchProcessStateServer struct {
	grpc.ServerStream
}

func (x *agentWatchProcessStateServer) Send(m *ProcessStateChanged) error {
	return x.ServerStream.SendMsg(m)
}

// service implements AgentServer over a *agent.Agent, translating its
// typed errors into grpc status codes (errstatus.go) and bridging
// Execute's in-process exit listener to WatchProcessState's stream via
// the pid-keyed broker in events.go.
type service struct {
	agent  *agent.Agent
	events *processEvents
}

func newService(a *agent.Agent) *service {
	return &service{agent: a, events: newProcessEvents()}
}

func (s *service) List(ctx context.Context, _ *ListRequest) (*ListResponse, error) {
	return &ListResponse{ContainerIDs: s.agent.ListContainers()}, nil
}

func (s *service) ListCapabilities(ctx context.Context, _ *ListCapabilitiesRequest) (*ListCapabilitiesResponse, error) {
	names, err := s.agent.ListCapabilities()
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListCapabilitiesResponse{Names: names}, nil
}

func (s *service) CreateContainer(ctx context.Context, req *CreateContainerRequest) (*CreateContainerResponse, error) {
	id, err := s.agent.CreateContainer(ctx, req.DynamicOptionsJSON)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateContainerResponse{ContainerID: id}, nil
}

func (s *service) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	pid, err := s.agent.Execute(ctx, req.ContainerID, req.CommandLine, req.WorkingDir, req.OutputFilePath, req.Env, s.events.publish)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ExecuteResponse{Pid: pid}, nil
}

func (s *service) Suspend(ctx context.Context, req *SuspendRequest) (*Empty, error) {
	if err := s.agent.SuspendContainer(ctx, req.ContainerID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *service) Resume(ctx context.Context, req *ResumeRequest) (*Empty, error) {
	if err := s.agent.ResumeContainer(ctx, req.ContainerID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *service) Destroy(ctx context.Context, req *DestroyRequest) (*Empty, error) {
	if err := s.agent.DeleteContainer(ctx, req.ContainerID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *service) BindMount(ctx context.Context, req *BindMountRequest) (*Empty, error) {
	if err := s.agent.BindMount(req.ContainerID, req.HostPath, req.ContainerPath, req.ReadOnly); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *service) SetCapabilities(ctx context.Context, req *SetCapabilitiesRequest) (*Empty, error) {
	if err := s.agent.SetCapabilities(ctx, req.ContainerID, req.Names); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// WatchProcessState waits for req.Pid's terminal event and sends it
// once, then closes the stream — it is a one-shot watch, not a
// durable subscription across reconnects.
func (s *service) WatchProcessState(req *WatchProcessStateRequest, stream AgentWatchProcessStateServer) error {
	ev, err := s.events.wait(stream.Context(), req.Pid)
	if err != nil {
		return err
	}
	return stream.Send(&ProcessStateChanged{
		ContainerID: req.ContainerID,
		Pid:         ev.Pid,
		Running:     false,
		ExitCode:    ev.ExitCode,
	})
}

func _Agent_List_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/List"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).List(ctx, req.(*ListRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_ListCapabilities_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListCapabilitiesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).ListCapabilities(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/ListCapabilities"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).ListCapabilities(ctx, req.(*ListCapabilitiesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_CreateContainer_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateContainerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).CreateContainer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/CreateContainer"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).CreateContainer(ctx, req.(*CreateContainerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_Execute_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ExecuteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/Execute"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_Suspend_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SuspendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Suspend(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/Suspend"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).Suspend(ctx, req.(*SuspendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_Resume_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResumeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Resume(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/Resume"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).Resume(ctx, req.(*ResumeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_Destroy_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DestroyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Destroy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/Destroy"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).Destroy(ctx, req.(*DestroyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_BindMount_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(BindMountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).BindMount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/BindMount"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).BindMount(ctx, req.(*BindMountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_SetCapabilities_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SetCapabilitiesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).SetCapabilities(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/rpc.Agent/SetCapabilities"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).SetCapabilities(ctx, req.(*SetCapabilitiesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Agent_WatchProcessState_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(WatchProcessStateRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(AgentServer).WatchProcessState(m, &agentWatchProcessStateServer{stream})
}

// ServiceDesc is registered with a *grpc.Server via grpc.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "rpc.Agent",
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "List", Handler: _Agent_List_Handler},
		{MethodName: "ListCapabilities", Handler: _Agent_ListCapabilities_Handler},
		{MethodName: "CreateContainer", Handler: _Agent_CreateContainer_Handler},
		{MethodName: "Execute", Handler: _Agent_Execute_Handler},
		{MethodName: "Suspend", Handler: _Agent_Suspend_Handler},
		{MethodName: "Resume", Handler: _Agent_Resume_Handler},
		{MethodName: "Destroy", Handler: _Agent_Destroy_Handler},
		{MethodName: "BindMount", Handler: _Agent_BindMount_Handler},
		{MethodName: "SetCapabilities", Handler: _Agent_SetCapabilities_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchProcessState",
			Handler:       _Agent_WatchProcessState_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "pkg/rpc/service.go",
}
