package connect

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/moodbox/internal/app/playback"
	"github.com/osa030/moodbox/internal/app/session"
)

// PlayerService implements the player control RPCs.
type PlayerService struct {
	session *session.Manager
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(session *session.Manager) *PlayerService {
	return &PlayerService{
		session: session,
	}
}

// NewPlayerServiceHandler builds an HTTP handler serving every PlayerService
// procedure. It returns the path on which to mount the handler.
func NewPlayerServiceHandler(svc *PlayerService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(PlayerServiceStatusProcedure, connect.NewUnaryHandler(PlayerServiceStatusProcedure, svc.Status, opts...))
	mux.Handle(PlayerServiceNextProcedure, connect.NewUnaryHandler(PlayerServiceNextProcedure, svc.Next, opts...))
	mux.Handle(PlayerServicePrevProcedure, connect.NewUnaryHandler(PlayerServicePrevProcedure, svc.Prev, opts...))
	mux.Handle(PlayerServiceLikeProcedure, connect.NewUnaryHandler(PlayerServiceLikeProcedure, svc.Like, opts...))
	mux.Handle(PlayerServiceDislikeProcedure, connect.NewUnaryHandler(PlayerServiceDislikeProcedure, svc.Dislike, opts...))
	mux.Handle(PlayerServicePauseProcedure, connect.NewUnaryHandler(PlayerServicePauseProcedure, svc.Pause, opts...))
	mux.Handle(PlayerServiceResumeProcedure, connect.NewUnaryHandler(PlayerServiceResumeProcedure, svc.Resume, opts...))
	mux.Handle(PlayerServiceSeekProcedure, connect.NewUnaryHandler(PlayerServiceSeekProcedure, svc.Seek, opts...))
	mux.Handle(PlayerServiceSlidingStartProcedure, connect.NewUnaryHandler(PlayerServiceSlidingStartProcedure, svc.SlidingStart, opts...))
	mux.Handle(PlayerServiceSlidingEndProcedure, connect.NewUnaryHandler(PlayerServiceSlidingEndProcedure, svc.SlidingEnd, opts...))
	mux.Handle(PlayerServiceWatchProcedure, connect.NewServerStreamHandler(PlayerServiceWatchProcedure, svc.Watch, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// Status returns the current player status.
func (s *PlayerService) Status(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return connect.NewResponse(s.session.StatusMessage("status")), nil
}

// Next skips to the next track.
func (s *PlayerService) Next(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.result("next", s.session.Next())
}

// Prev returns to the previous track.
func (s *PlayerService) Prev(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.result("prev", s.session.Prev())
}

// Like likes the current track.
func (s *PlayerService) Like(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.result("like", s.session.Like())
}

// Dislike dislikes the current track.
func (s *PlayerService) Dislike(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.result("dislike", s.session.Dislike())
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.result("pause", s.session.Pause())
}

// Resume resumes playback.
func (s *PlayerService) Resume(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.result("resume", s.session.Resume())
}

// Seek seeks to the given number of seconds into the current track.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[wrapperspb.DoubleValue],
) (*connect.Response[structpb.Struct], error) {
	position, err := secondsToDuration(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.result("seek", s.session.Seek(position))
}

// SlidingStart starts a scrub.
func (s *PlayerService) SlidingStart(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.result("sliding_start", s.session.SlidingStart())
}

// SlidingEnd commits a scrub at the given number of seconds.
func (s *PlayerService) SlidingEnd(
	ctx context.Context,
	req *connect.Request[wrapperspb.DoubleValue],
) (*connect.Response[structpb.Struct], error) {
	position, err := secondsToDuration(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return s.result("sliding_end", s.session.SlidingEnd(position))
}

// Watch streams the current status followed by one message per player event.
func (s *PlayerService) Watch(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	notifManager := s.session.GetNotificationManager()

	// Hold the stream while subscribing so broadcasts queue up behind the
	// initial state instead of being missed.
	adapter := &notificationStreamAdapter{stream: stream}
	adapter.mu.Lock()
	subscriptionID := notifManager.Subscribe(adapter)
	if subscriptionID == "" {
		adapter.mu.Unlock()
		return nil
	}
	defer notifManager.Unsubscribe(subscriptionID)

	initial := notifManager.Stamp(s.session.StatusMessage("initial_state"))
	err := stream.Send(initial)
	adapter.mu.Unlock()
	if err != nil {
		return err
	}

	// Wait for context cancellation or session end
	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}
	return nil
}

// result converts the outcome of a control action into a response.
// Rejections that leave the player unchanged are reported in the body.
func (s *PlayerService) result(action string, err error) (*connect.Response[structpb.Struct], error) {
	switch {
	case err == nil:
	case errors.Is(err, playback.ErrExited), errors.Is(err, playback.ErrNotReady):
		return nil, connect.NewError(connect.CodeUnavailable, errors.New(s.session.Message(err)))
	case errors.IsAny(err, playback.ErrAtEnd, playback.ErrAtStart, playback.ErrNotLoaded):
		zlog.Debug().Msgf("connect: action rejected: action=%s reason=%v", action, err)
	default:
		zlog.Error().Err(err).Msgf("connect: action failed: action=%s", action)
		return nil, connect.NewError(connect.CodeInternal, errors.New(s.session.Message(err)))
	}

	msg := s.session.StatusMessage(action)
	msg.Fields["success"] = structpb.NewBoolValue(err == nil)
	if err != nil {
		msg.Fields["code"] = structpb.NewStringValue(session.ErrorCode(err))
		msg.Fields["message"] = structpb.NewStringValue(s.session.Message(err))
	}
	return connect.NewResponse(msg), nil
}

// maxSeconds is the largest position representable as a time.Duration.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

func secondsToDuration(seconds float64) (time.Duration, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds >= maxSeconds {
		return 0, errors.Newf("invalid position: %v", seconds)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized since a timed-out send may still be running.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *structpb.Struct) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(n)
}
