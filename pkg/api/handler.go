// Package api exposes the portal's HTTP functions. Handlers stay thin: they
// decode the request, call the directory, signer and workflow clients, and
// shape the response.
package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"dispatch_portal/pkg/blobsas"
	"dispatch_portal/pkg/dynamics"
	"dispatch_portal/pkg/flow"
	"dispatch_portal/pkg/metrics"
)

// Directory is the Dataverse side of a lookup.
type Directory interface {
	FindWorker(ctx context.Context, email string) (*dynamics.Worker, error)
	ListDispatches(ctx context.Context, businessUnitID uuid.UUID) ([]dynamics.Dispatch, error)
}

// Signer issues attachment links; failed or empty paths come back nil.
type Signer interface {
	TrySignAll(ctx context.Context, containerName string, paths []string) []*blobsas.Result
}

// Notifier forwards job completions to the workflow endpoint.
type Notifier interface {
	NotifyCompletion(ctx context.Context, done flow.Completion) error
}

// Deps wires a Handler. A non-nil *Err field means that collaborator could
// not be configured; the handlers depending on it answer with a
// configuration error without calling anything.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Directory    Directory
	DirectoryErr error

	Signer              Signer
	AttachmentContainer string

	Notifier    Notifier
	NotifierErr error
}

type Handler struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	dir    Directory
	dirErr error

	signer    Signer
	container string

	notifier    Notifier
	notifierErr error
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Handler{
		log:         log,
		metrics:     m,
		dir:         d.Directory,
		dirErr:      d.DirectoryErr,
		signer:      d.Signer,
		container:   d.AttachmentContainer,
		notifier:    d.Notifier,
		notifierErr: d.NotifierErr,
	}
}
