package filemanager

import (
	"context"
	"log/slog"
)

// Event names emitted after successful operations.
const (
	EventFolderRead   = "api.after.folder.read"
	EventFolderSeek   = "api.after.folder.seek"
	EventFolderCreate = "api.after.folder.create"
	EventItemRename   = "api.after.item.rename"
	EventItemCopy     = "api.after.item.copy"
	EventItemMove     = "api.after.item.move"
	EventItemDelete   = "api.after.item.delete"
	EventItemDownload = "api.after.item.download"
	EventFileUpload   = "api.after.file.upload"
	EventFileExtract  = "api.after.file.extract"
)

// Event describes a completed operation. Listeners cannot veto it.
type Event struct {
	Name    string
	Storage string
	// Items holds the resulting snapshots. For rename, copy and move the
	// first entry is the source before the operation.
	Items []*ItemData
	// Paths lists the absolute paths of the listed children for read and
	// seek events.
	Paths []string
}

// EventSink receives events.
type EventSink interface {
	Dispatch(ctx context.Context, e Event)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(ctx context.Context, e Event)

func (f EventSinkFunc) Dispatch(ctx context.Context, e Event) { f(ctx, e) }

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Dispatch(context.Context, Event) {}

// SlogSink logs every event at debug level.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Dispatch(ctx context.Context, e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		paths = append(paths, item.RelativePath)
	}
	logger.DebugContext(ctx, "event", "name", e.Name, "storage", e.Storage, "items", paths, "children", len(e.Paths))
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Dispatch(ctx context.Context, e Event) {
	for _, s := range m {
		s.Dispatch(ctx, e)
	}
}
