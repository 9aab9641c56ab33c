// Package logger provides a context-carrying structured logger used across
// the orchestrator and RAG engine.
package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// Fields is a shorthand for structured log attributes.
type Fields = logrus.Fields

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{})
}

// WithRequestID returns a context carrying a logger entry tagged with the
// given request/trace id, so downstream calls log with it automatically.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	entry := base.WithField("request_id", requestID)
	return context.WithValue(ctx, ctxKey{}, entry)
}

// CloneContext copies the logger entry (if any) from src onto a fresh
// background context, detaching it from a request's cancellation.
func CloneContext(ctx context.Context) context.Context {
	if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return context.WithValue(context.Background(), ctxKey{}, entry)
	}
	return context.Background()
}

func entryFrom(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(base)
}

// GetLogger returns the structured logger entry carried by ctx.
func GetLogger(ctx context.Context) *logrus.Entry {
	return entryFrom(ctx)
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	entryFrom(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...interface{}) {
	entryFrom(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	entryFrom(ctx).Errorf(format, args...)
}

func WithFields(ctx context.Context, fields Fields) *logrus.Entry {
	return entryFrom(ctx).WithFields(fields)
}
