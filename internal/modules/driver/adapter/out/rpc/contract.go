package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey            = "sensor_driver"
	serviceName             = "jogtrack.driver.v1.SensorDriver"
	jsonCodecName           = "json"
	methodGetMetadata       = "/" + serviceName + "/GetMetadata"
	methodCheckPermission   = "/" + serviceName + "/CheckPermission"
	methodRequestPermission = "/" + serviceName + "/RequestPermission"
	methodReadSamples       = "/" + serviceName + "/ReadSamples"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "JOGTRACK_DRIVER",
	MagicCookieValue: "jogtrack",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Empty struct{}

type Metadata struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

type PermissionRequest struct {
	Permission string `json:"permission"`
}

type PermissionResponse struct {
	Granted bool `json:"granted"`
}

type ReadSamplesRequest struct {
	Cursor string `json:"cursor"`
	Max    int32  `json:"max"`
}

type Sample struct {
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	RawSteps  int64     `json:"raw_steps,omitempty"`
	Lat       float64   `json:"lat,omitempty"`
	Lon       float64   `json:"lon,omitempty"`
	AccuracyM float64   `json:"accuracy_m,omitempty"`
}

type ReadSamplesResponse struct {
	Samples    []Sample `json:"samples"`
	NextCursor string   `json:"next_cursor"`
	Exhausted  bool     `json:"exhausted"`
}

type SensorDriverServer interface {
	GetMetadata(ctx context.Context, in *Empty) (*Metadata, error)
	CheckPermission(ctx context.Context, in *PermissionRequest) (*PermissionResponse, error)
	RequestPermission(ctx context.Context, in *PermissionRequest) (*PermissionResponse, error)
	ReadSamples(ctx context.Context, in *ReadSamplesRequest) (*ReadSamplesResponse, error)
}

type SensorDriverClient interface {
	GetMetadata(ctx context.Context) (*Metadata, error)
	CheckPermission(ctx context.Context, in *PermissionRequest) (*PermissionResponse, error)
	RequestPermission(ctx context.Context, in *PermissionRequest) (*PermissionResponse, error)
	ReadSamples(ctx context.Context, in *ReadSamplesRequest) (*ReadSamplesResponse, error)
}

type sensorDriverClient struct {
	conn *grpc.ClientConn
}

func NewSensorDriverClient(conn *grpc.ClientConn) SensorDriverClient {
	return &sensorDriverClient{conn: conn}
}

func (c *sensorDriverClient) GetMetadata(ctx context.Context) (*Metadata, error) {
	out := &Metadata{}
	if err := c.conn.Invoke(ctx, methodGetMetadata, &Empty{}, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sensorDriverClient) CheckPermission(ctx context.Context, in *PermissionRequest) (*PermissionResponse, error) {
	out := &PermissionResponse{}
	if err := c.conn.Invoke(ctx, methodCheckPermission, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sensorDriverClient) RequestPermission(ctx context.Context, in *PermissionRequest) (*PermissionResponse, error) {
	out := &PermissionResponse{}
	if err := c.conn.Invoke(ctx, methodRequestPermission, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sensorDriverClient) ReadSamples(ctx context.Context, in *ReadSamplesRequest) (*ReadSamplesResponse, error) {
	out := &ReadSamplesResponse{}
	if err := c.conn.Invoke(ctx, methodReadSamples, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// unaryMethod adapts a typed server method to a grpc.MethodDesc handler.
func unaryMethod[Req any, Resp any](name, fullMethod string, call func(context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				typed, ok := req.(*Req)
				if !ok {
					return nil, fmt.Errorf("invalid request type")
				}
				return call(ctx, typed)
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func RegisterSensorDriverServer(server grpc.ServiceRegistrar, impl SensorDriverServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*SensorDriverServer)(nil),
		Methods: []grpc.MethodDesc{
			unaryMethod("GetMetadata", methodGetMetadata, impl.GetMetadata),
			unaryMethod("CheckPermission", methodCheckPermission, impl.CheckPermission),
			unaryMethod("RequestPermission", methodRequestPermission, impl.RequestPermission),
			unaryMethod("ReadSamples", methodReadSamples, impl.ReadSamples),
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "schemas/sensor-driver-v1.proto",
	}, impl)
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl SensorDriverServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterSensorDriverServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewSensorDriverClient(conn), nil
}

func PluginMap(impl SensorDriverServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}
