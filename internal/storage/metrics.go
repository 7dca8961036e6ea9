package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels reported to an Observer.
const (
	OpResolveFolder     = "resolve_folder"
	OpCreatePlaceholder = "create_placeholder"
	OpMintUpload        = "mint_upload"
	OpListObjects       = "list_objects"
	OpPutObject         = "put_object"
	OpDownload          = "download"
)

// Observer captures telemetry for provider operations.
type Observer interface {
	RecordOperation(op string, duration time.Duration, err error)
}

// PrometheusObserver exports provider metrics to Prometheus.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewPrometheusObserver registers the operation duration and error metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "episode_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	observer := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency for storage provider operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of storage provider failures.",
		}, []string{"operation"}),
	}

	if err := reg.Register(observer.duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		observer.duration = existing
	}
	if err := reg.Register(observer.errors); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("register storage metric: %w", err)
		}
		observer.errors = existing
	}

	return observer, nil
}

// RecordOperation tracks duration and failures of op.
func (o *PrometheusObserver) RecordOperation(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) RecordOperation(string, time.Duration, error) {}

// instrumented decorates a Provider with an Observer.
type instrumented struct {
	Provider
	observer Observer
	now      func() time.Time
}

// Instrument wraps p so every remote operation is reported to observer.
// A nil observer disables reporting.
func Instrument(p Provider, observer Observer) Provider {
	if observer == nil {
		observer = nopObserver{}
	}
	return &instrumented{Provider: p, observer: observer, now: time.Now}
}

func (i *instrumented) record(op string, start time.Time, err error) {
	i.observer.RecordOperation(op, i.now().Sub(start), err)
}

func (i *instrumented) ResolveOrCreateFolder(ctx context.Context, name string) (string, error) {
	start := i.now()
	id, err := i.Provider.ResolveOrCreateFolder(ctx, name)
	i.record(OpResolveFolder, start, err)
	return id, err
}

func (i *instrumented) CreatePlaceholder(ctx context.Context, name, mimeType, parentID string) (string, error) {
	start := i.now()
	id, err := i.Provider.CreatePlaceholder(ctx, name, mimeType, parentID)
	i.record(OpCreatePlaceholder, start, err)
	return id, err
}

func (i *instrumented) MintUploadAuthorization(ctx context.Context, objectID string) (UploadAuthorization, error) {
	start := i.now()
	auth, err := i.Provider.MintUploadAuthorization(ctx, objectID)
	i.record(OpMintUpload, start, err)
	return auth, err
}

func (i *instrumented) ListObjects(ctx context.Context, folderID string) ([]Object, error) {
	start := i.now()
	objects, err := i.Provider.ListObjects(ctx, folderID)
	i.record(OpListObjects, start, err)
	return objects, err
}

func (i *instrumented) PutObject(ctx context.Context, name, mimeType, parentID string, body io.Reader) (Object, error) {
	start := i.now()
	obj, err := i.Provider.PutObject(ctx, name, mimeType, parentID, body)
	i.record(OpPutObject, start, err)
	return obj, err
}

func (i *instrumented) Download(ctx context.Context, objectID string) (io.ReadCloser, error) {
	start := i.now()
	rc, err := i.Provider.Download(ctx, objectID)
	i.record(OpDownload, start, err)
	return rc, err
}
