package location

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/example/dispatchlite/internal/dispatch/domain"
)

// Sink applies a streamed position. Satisfied by the dispatch service, so
// streamed fixes follow the same path as PATCHed ones. Messages on a single
// stream are applied in order, which keeps per-driver updates ordered.
type Sink interface {
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) (domain.Ambulance, error)
}

// Server ingests driver location streams.
type Server struct {
	sink   Sink
	logger *zap.Logger
}

// NewServer constructs a server.
func NewServer(sink Sink, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{sink: sink, logger: logger}
}

// StreamLocation applies each streamed fix through the sink. Unknown drivers
// are skipped rather than tearing down the stream.
func (s *Server) StreamLocation(stream Location_StreamLocationServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		if msg.DriverId == "" {
			continue
		}
		if _, err := s.sink.UpdateLocation(stream.Context(), msg.DriverId, msg.Lat, msg.Lng); err != nil {
			s.logger.Warn("streamed location rejected",
				zap.String("driver_id", msg.DriverId), zap.Error(err))
		}
	}
}
