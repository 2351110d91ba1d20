package api

import (
	"time"

	"go.uber.org/zap"
)

// CallEvent describes one gateway call and its outcome.
type CallEvent struct {
	RequestID string
	Method    string
	Path      string
	Status    int // 0 when no response was received
	Duration  time.Duration
	Err       error
}

// Outcome classifies the call for diagnostics: ok, request_error, connectivity or error.
func (e CallEvent) Outcome() string {
	switch {
	case e.Err == nil:
		return "ok"
	case IsConnectivity(e.Err):
		return "connectivity"
	case e.Status != 0:
		return "request_error"
	default:
		return "error"
	}
}

// Observer sees every call. It must return quickly; panics are swallowed by the gateway.
type Observer interface {
	ObserveCall(CallEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(CallEvent)

func (f ObserverFunc) ObserveCall(e CallEvent) { f(e) }

type nopObserver struct{}

func (nopObserver) ObserveCall(CallEvent) {}

// Observers fans a call event out to several observers.
type Observers []Observer

func (obs Observers) ObserveCall(e CallEvent) {
	for _, o := range obs {
		func() {
			defer func() { _ = recover() }()
			o.ObserveCall(e)
		}()
	}
}

// LogObserver logs call metadata, never payloads.
func LogObserver(log *zap.Logger) Observer {
	return ObserverFunc(func(e CallEvent) {
		fields := []zap.Field{
			zap.String("id", e.RequestID),
			zap.String("method", e.Method),
			zap.String("path", e.Path),
			zap.Int("status", e.Status),
			zap.Duration("dur", e.Duration),
			zap.String("outcome", e.Outcome()),
		}
		if e.Err != nil {
			log.Warn("api", append(fields, zap.Error(e.Err))...)
			return
		}
		log.Debug("api", fields...)
	})
}
