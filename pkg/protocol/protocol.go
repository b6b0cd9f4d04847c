// pkg/protocol/protocol.go
// Chunk node RPC surface. The service is defined directly against gRPC's
// ServiceDesc API with a registered JSON codec (content-subtype
// "clay-json"), so the build does not depend on protoc. Clients must dial
// with DialOption() to select the codec.
package protocol

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/dattu/clay_object_store/pkg/storage"
)

// CodecName is the gRPC content-subtype for the JSON wire codec.
const CodecName = "clay-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

// DialOption selects the JSON codec for every call on a client connection.
func DialOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))
}

/* ------------------------------------------------------------------------ */
/* messages                                                                 */
/* ------------------------------------------------------------------------ */

type StoreChunkRequest struct {
	ObjectID   string            `json:"object_id"`
	ChunkIndex uint32            `json:"chunk_index"`
	Chunk      []byte            `json:"chunk"`
	Manifest   *storage.Manifest `json:"manifest,omitempty"`
}

type StoreChunkResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type FetchChunkRequest struct {
	ObjectID   string `json:"object_id"`
	ChunkIndex uint32 `json:"chunk_index"`
}

type FetchChunkResponse struct {
	Ok         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	ChunkIndex uint32 `json:"chunk_index"`
	Chunk      []byte `json:"chunk,omitempty"`
}

// SubChunkRange names consecutive sub-chunks within a stored chunk.
type SubChunkRange struct {
	Start int `json:"start"`
	Count int `json:"count"`
}

type FetchSubChunksRequest struct {
	ObjectID   string          `json:"object_id"`
	ChunkIndex uint32          `json:"chunk_index"`
	Ranges     []SubChunkRange `json:"ranges"`
}

type FetchSubChunksResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// Data concatenates the requested ranges in request order.
	Data []byte `json:"data,omitempty"`
}

type ManifestRequest struct {
	ObjectID string `json:"object_id"`
}

type ManifestResponse struct {
	Ok       bool              `json:"ok"`
	Error    string            `json:"error,omitempty"`
	Manifest *storage.Manifest `json:"manifest,omitempty"`
}

/* ------------------------------------------------------------------------ */
/* client                                                                   */
/* ------------------------------------------------------------------------ */

const (
	methodStoreChunk     = "/clay.ChunkService/StoreChunk"
	methodFetchChunk     = "/clay.ChunkService/FetchChunk"
	methodFetchSubChunks = "/clay.ChunkService/FetchSubChunks"
	methodGetManifest    = "/clay.ChunkService/GetManifest"
)

type ChunkServiceClient interface {
	StoreChunk(ctx context.Context, in *StoreChunkRequest, opts ...grpc.CallOption) (*StoreChunkResponse, error)
	FetchChunk(ctx context.Context, in *FetchChunkRequest, opts ...grpc.CallOption) (*FetchChunkResponse, error)
	FetchSubChunks(ctx context.Context, in *FetchSubChunksRequest, opts ...grpc.CallOption) (*FetchSubChunksResponse, error)
	GetManifest(ctx context.Context, in *ManifestRequest, opts ...grpc.CallOption) (*ManifestResponse, error)
}

type chunkServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChunkServiceClient(cc grpc.ClientConnInterface) ChunkServiceClient {
	return &chunkServiceClient{cc}
}

func (c *chunkServiceClient) StoreChunk(ctx context.Context, in *StoreChunkRequest, opts ...grpc.CallOption) (*StoreChunkResponse, error) {
	out := new(StoreChunkResponse)
	if err := c.cc.Invoke(ctx, methodStoreChunk, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chunkServiceClient) FetchChunk(ctx context.Context, in *FetchChunkRequest, opts ...grpc.CallOption) (*FetchChunkResponse, error) {
	out := new(FetchChunkResponse)
	if err := c.cc.Invoke(ctx, methodFetchChunk, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chunkServiceClient) FetchSubChunks(ctx context.Context, in *FetchSubChunksRequest, opts ...grpc.CallOption) (*FetchSubChunksResponse, error) {
	out := new(FetchSubChunksResponse)
	if err := c.cc.Invoke(ctx, methodFetchSubChunks, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *chunkServiceClient) GetManifest(ctx context.Context, in *ManifestRequest, opts ...grpc.CallOption) (*ManifestResponse, error) {
	out := new(ManifestResponse)
	if err := c.cc.Invoke(ctx, methodGetManifest, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

/* ------------------------------------------------------------------------ */
/* server                                                                   */
/* ------------------------------------------------------------------------ */

type ChunkServiceServer interface {
	StoreChunk(context.Context, *StoreChunkRequest) (*StoreChunkResponse, error)
	FetchChunk(context.Context, *FetchChunkRequest) (*FetchChunkResponse, error)
	FetchSubChunks(context.Context, *FetchSubChunksRequest) (*FetchSubChunksResponse, error)
	GetManifest(context.Context, *ManifestRequest) (*ManifestResponse, error)
}

// UnimplementedChunkServiceServer gives forward-compatible embedding.
type UnimplementedChunkServiceServer struct{}

func (UnimplementedChunkServiceServer) StoreChunk(context.Context, *StoreChunkRequest) (*StoreChunkResponse, error) {
	return &StoreChunkResponse{Ok: false, Error: "StoreChunk not implemented"}, nil
}

func (UnimplementedChunkServiceServer) FetchChunk(context.Context, *FetchChunkRequest) (*FetchChunkResponse, error) {
	return &FetchChunkResponse{Ok: false, Error: "FetchChunk not implemented"}, nil
}

func (UnimplementedChunkServiceServer) FetchSubChunks(context.Context, *FetchSubChunksRequest) (*FetchSubChunksResponse, error) {
	return &FetchSubChunksResponse{Ok: false, Error: "FetchSubChunks not implemented"}, nil
}

func (UnimplementedChunkServiceServer) GetManifest(context.Context, *ManifestRequest) (*ManifestResponse, error) {
	return &ManifestResponse{Ok: false, Error: "GetManifest not implemented"}, nil
}

func RegisterChunkServiceServer(s grpc.ServiceRegistrar, srv ChunkServiceServer) {
	s.RegisterService(&ChunkService_ServiceDesc, srv)
}

func _ChunkService_StoreChunk_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StoreChunkRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChunkServiceServer).StoreChunk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStoreChunk}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChunkServiceServer).StoreChunk(ctx, req.(*StoreChunkRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChunkService_FetchChunk_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchChunkRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChunkServiceServer).FetchChunk(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFetchChunk}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChunkServiceServer).FetchChunk(ctx, req.(*FetchChunkRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChunkService_FetchSubChunks_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchSubChunksRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChunkServiceServer).FetchSubChunks(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFetchSubChunks}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChunkServiceServer).FetchSubChunks(ctx, req.(*FetchSubChunksRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChunkService_GetManifest_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ManifestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChunkServiceServer).GetManifest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetManifest}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChunkServiceServer).GetManifest(ctx, req.(*ManifestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ChunkService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "clay.ChunkService",
	HandlerType: (*ChunkServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StoreChunk", Handler: _ChunkService_StoreChunk_Handler},
		{MethodName: "FetchChunk", Handler: _ChunkService_FetchChunk_Handler},
		{MethodName: "FetchSubChunks", Handler: _ChunkService_FetchSubChunks_Handler},
		{MethodName: "GetManifest", Handler: _ChunkService_GetManifest_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/protocol/protocol.go",
}
