// Package rpc exposes a cache instance over gRPC for sidecar viewer
// processes on the same host. All sessions then address the durable
// namespace through the one engine instance, which is what enforces the
// per-key serialization discipline across them.
//
// The service uses [grpc.ServiceDesc] registration so that no protobuf
// code generation is required. Because the request/response types are
// plain Go structs (not generated protobuf messages), the package
// registers a thin codec wrapper that JSON-encodes cache types while
// delegating all other messages to the standard proto codec.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/voxelkit/slicecache"
	"github.com/voxelkit/slicecache/cacheerr"
	"github.com/voxelkit/slicecache/entry"
)

// SliceEntry is the wire form of one cached slice. Payload travels as
// base64 through the JSON codec.
type SliceEntry struct {
	SourceID       string  `json:"source_id"`
	SliceIndex     int     `json:"slice_index"`
	Payload        []byte  `json:"payload"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	PixelFormat    uint8   `json:"pixel_format"`
	WindowCenter   float64 `json:"window_center"`
	WindowWidth    float64 `json:"window_width"`
	ValueMin       float64 `json:"value_min"`
	ValueMax       float64 `json:"value_max"`
	CreatedAtUnix  int64   `json:"created_at_unix_nano"`
	AccessedAtUnix int64   `json:"accessed_at_unix_nano"`
}

// GetRequest asks for one slice.
type GetRequest struct {
	SourceID   string `json:"source_id"`
	SliceIndex int    `json:"slice_index"`
}

// GetResponse carries the slice on a hit; Found is false on a miss.
type GetResponse struct {
	Found bool        `json:"found"`
	Entry *SliceEntry `json:"entry,omitempty"`
}

// PutRequest stores one slice.
type PutRequest struct {
	SourceID     string  `json:"source_id"`
	SliceIndex   int     `json:"slice_index"`
	Payload      []byte  `json:"payload"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	PixelFormat  uint8   `json:"pixel_format"`
	WindowCenter float64 `json:"window_center"`
	WindowWidth  float64 `json:"window_width"`
	ValueMin     float64 `json:"value_min"`
	ValueMax     float64 `json:"value_max"`
}

// PutResponse is empty; failures travel as gRPC status errors.
type PutResponse struct{}

// DeleteRequest removes one slice.
type DeleteRequest struct {
	SourceID   string `json:"source_id"`
	SliceIndex int    `json:"slice_index"`
}

// DeleteResponse is empty.
type DeleteResponse struct{}

// DeleteBySourceRequest removes every slice of one source.
type DeleteBySourceRequest struct {
	SourceID string `json:"source_id"`
}

// DeleteBySourceResponse reports how many entries were removed.
type DeleteBySourceResponse struct {
	Removed int `json:"removed"`
}

// ClearRequest empties the cache.
type ClearRequest struct{}

// ClearResponse is empty.
type ClearResponse struct{}

// StatsRequest asks for a stats snapshot.
type StatsRequest struct{}

// StatsResponse mirrors [slicecache.Stats].
type StatsResponse struct {
	Hits             uint64  `json:"hits"`
	Misses           uint64  `json:"misses"`
	Evictions        uint64  `json:"evictions"`
	CurrentSizeBytes int64   `json:"current_size_bytes"`
	EntryCount       int     `json:"entry_count"`
	HitRate          float64 `json:"hit_rate"`
}

// cacheMsg is a marker interface satisfied by every wire type above.
type cacheMsg interface {
	isCacheMsg()
}

func (*GetRequest) isCacheMsg()             {}
func (*GetResponse) isCacheMsg()            {}
func (*PutRequest) isCacheMsg()             {}
func (*PutResponse) isCacheMsg()            {}
func (*DeleteRequest) isCacheMsg()          {}
func (*DeleteResponse) isCacheMsg()         {}
func (*DeleteBySourceRequest) isCacheMsg()  {}
func (*DeleteBySourceResponse) isCacheMsg() {}
func (*ClearRequest) isCacheMsg()           {}
func (*ClearResponse) isCacheMsg()          {}
func (*StatsRequest) isCacheMsg()           {}
func (*StatsResponse) isCacheMsg()          {}

// Service implements the slicecache.Cache gRPC service over one engine
// instance.
type Service struct {
	cache *slicecache.Cache
}

// NewService wraps c.
func NewService(c *slicecache.Cache) *Service {
	return &Service{cache: c}
}

// Get returns one slice or a miss.
func (s *Service) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	e, ok, err := s.cache.Get(ctx, req.SourceID, req.SliceIndex)
	if err != nil {
		return nil, statusFromError(err)
	}
	if !ok {
		return &GetResponse{}, nil
	}
	return &GetResponse{Found: true, Entry: &SliceEntry{
		SourceID:       e.SourceID,
		SliceIndex:     e.SliceIndex,
		Payload:        e.Payload,
		Width:          e.Width,
		Height:         e.Height,
		PixelFormat:    uint8(e.PixelFormat),
		WindowCenter:   e.WindowCenter,
		WindowWidth:    e.WindowWidth,
		ValueMin:       e.ValueRange.Min,
		ValueMax:       e.ValueRange.Max,
		CreatedAtUnix:  e.CreatedAt.UnixNano(),
		AccessedAtUnix: e.LastAccessedAt.UnixNano(),
	}}, nil
}

// Put stores one slice.
func (s *Service) Put(ctx context.Context, req *PutRequest) (*PutResponse, error) {
	err := s.cache.Put(ctx, req.SourceID, req.SliceIndex, req.Payload,
		req.Width, req.Height, entry.PixelFormat(req.PixelFormat),
		req.WindowCenter, req.WindowWidth,
		entry.ValueRange{Min: req.ValueMin, Max: req.ValueMax})
	if err != nil {
		return nil, statusFromError(err)
	}
	return &PutResponse{}, nil
}

// Delete removes one slice; removing an absent slice succeeds.
func (s *Service) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	if err := s.cache.Delete(ctx, req.SourceID, req.SliceIndex); err != nil {
		return nil, statusFromError(err)
	}
	return &DeleteResponse{}, nil
}

// DeleteBySource removes every slice of one source.
func (s *Service) DeleteBySource(ctx context.Context, req *DeleteBySourceRequest) (*DeleteBySourceResponse, error) {
	removed, err := s.cache.DeleteBySource(ctx, req.SourceID)
	if err != nil {
		return nil, statusFromError(err)
	}
	return &DeleteBySourceResponse{Removed: removed}, nil
}

// Clear empties the cache and resets its statistics.
func (s *Service) Clear(ctx context.Context, _ *ClearRequest) (*ClearResponse, error) {
	if err := s.cache.Clear(ctx); err != nil {
		return nil, statusFromError(err)
	}
	return &ClearResponse{}, nil
}

// Stats returns a snapshot of the cache counters.
func (s *Service) Stats(_ context.Context, _ *StatsRequest) (*StatsResponse, error) {
	st := s.cache.Stats()
	return &StatsResponse{
		Hits:             st.Hits,
		Misses:           st.Misses,
		Evictions:        st.Evictions,
		CurrentSizeBytes: st.CurrentSizeBytes,
		EntryCount:       st.EntryCount,
		HitRate:          st.HitRate,
	}, nil
}

// statusFromError maps cache error codes onto gRPC status codes.
func statusFromError(err error) error {
	switch cacheerr.CodeOf(err) {
	case cacheerr.CodeInvalidArgument:
		return status.Error(codes.InvalidArgument, err.Error())
	case cacheerr.CodeQuotaExceeded:
		return status.Error(codes.ResourceExhausted, err.Error())
	case cacheerr.CodeEntryTooLarge:
		return status.Error(codes.OutOfRange, err.Error())
	case cacheerr.CodeStorageUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	case cacheerr.CodeSerialization, cacheerr.CodeCorruptEntry:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ---------- service registration ----------

const serviceName = "slicecache.Cache"

// ServiceDesc is the grpc.ServiceDesc for the slicecache.Cache service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Put", Handler: putHandler},
		{MethodName: "Delete", Handler: deleteHandler},
		{MethodName: "DeleteBySource", Handler: deleteBySourceHandler},
		{MethodName: "Clear", Handler: clearHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slicecache/cache.proto",
}

// unary adapts one Service method into a grpc.MethodDesc handler.
func unary[Req any, Resp any](method string, call func(*Service, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	full := "/" + serviceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		svc := srv.(*Service)
		if interceptor == nil {
			return call(svc, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		handler := func(ctx context.Context, r any) (any, error) {
			return call(svc, ctx, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var (
	getHandler            = unary("Get", (*Service).Get)
	putHandler            = unary("Put", (*Service).Put)
	deleteHandler         = unary("Delete", (*Service).Delete)
	deleteBySourceHandler = unary("DeleteBySource", (*Service).DeleteBySource)
	clearHandler          = unary("Clear", (*Service).Clear)
	statsHandler          = unary("Stats", (*Service).Stats)
)

// Register registers the cache service on the given gRPC server.
func Register(s *grpc.Server, svc *Service) {
	s.RegisterService(&ServiceDesc, svc)
}

// ---------- codec wrapper ----------

func init() {
	// Replace the default proto codec with a thin wrapper that
	// JSON-encodes cache types and delegates all other (protobuf)
	// messages to proto.Marshal.
	grpcEncoding.RegisterCodec(cacheCodec{})
}

// cacheCodec wraps the default proto codec. It handles the cache wire
// types via JSON, and delegates all other types to proto.Marshal/Unmarshal.
type cacheCodec struct{}

func (cacheCodec) Name() string { return "proto" }

func (cacheCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(cacheMsg); ok {
		return json.Marshal(v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("cache codec: unsupported message type %T", v)
}

func (cacheCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(cacheMsg); ok {
		return json.Unmarshal(data, v)
	}
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("cache codec: unsupported message type %T", v)
}
