package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"landreg/internal/detection/metrics"
	"landreg/internal/platform/config"
	"landreg/internal/platform/objectstore"
	"landreg/internal/platform/tracing"
	"landreg/internal/registry/models"
	dErrors "landreg/pkg/domain-errors"
	"landreg/pkg/requestcontext"
)

// ParcelSource reads registered parcels. Training never writes to it.
type ParcelSource interface {
	ListParcels(ctx context.Context, limit int) ([]*models.Parcel, error)
}

// Report summarizes a training run.
type Report struct {
	Parcels         int
	Samples         int
	TrainSize       int
	TestSize        int
	Accuracy        float64
	ModelLocation   string
	DatasetLocation string
	Duration        time.Duration
}

type Trainer struct {
	parcels ParcelSource
	objects objectstore.Store
	cfg     config.Training
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Trainer)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trainer) {
		t.metrics = m
	}
}

func WithTracer(tr trace.Tracer) Option {
	return func(t *Trainer) {
		t.tracer = tr
	}
}

func NewTrainer(parcels ParcelSource, objects objectstore.Store, cfg config.Training, opts ...Option) *Trainer {
	t := &Trainer{
		parcels: parcels,
		objects: objects,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train synthesizes labelled scenarios from real parcels, fits a forest on a
// shuffled split, and stores the model and the dataset.
func (t *Trainer) Train(ctx context.Context) (report *Report, err error) {
	ctx, span := tracing.Start(ctx, t.tracer, "classifier.Train",
		attribute.Int("samples", t.cfg.Samples), attribute.Int("trees", t.cfg.Trees))
	defer func() { tracing.End(span, err) }()
	start := time.Now()

	parcels, err := t.parcels.ListParcels(ctx, t.cfg.ParcelLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load parcels")
	}
	if len(parcels) < t.cfg.MinParcels {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("not enough parcels to train: have %d, need %d", len(parcels), t.cfg.MinParcels))
	}

	r := rand.New(rand.NewPCG(uint64(t.cfg.Seed), uint64(t.cfg.Seed)))
	examples := NewSynthesizer(r).Generate(parcels, t.cfg.Samples)
	r.Shuffle(len(examples), func(i, j int) { examples[i], examples[j] = examples[j], examples[i] })

	testSize := int(math.Ceil(float64(len(examples)) * t.cfg.TestFraction))
	trainSize := len(examples) - testSize
	if trainSize <= 0 || testSize <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "training split leaves an empty partition")
	}
	trainX, trainY := matrix(examples[:trainSize])
	testX, testY := matrix(examples[trainSize:])

	forest, err := Fit(ctx, trainX, trainY, ForestConfig{Trees: t.cfg.Trees, Seed: t.cfg.Seed})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fit forest")
	}
	acc := forest.Accuracy(testX, testY)
	t.metrics.SetClassifierAccuracy(acc)

	model := &Model{
		Version:      modelVersion,
		FeatureNames: FeatureNames,
		TrainedAt:    requestcontext.Now(ctx).UTC(),
		Samples:      len(examples),
		Accuracy:     acc,
		Forest:       forest,
	}
	modelBytes, err := model.Marshal()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode model")
	}
	dataset, err := EncodeDataset(examples, trainSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode dataset")
	}

	if err := t.objects.EnsureBucket(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "prepare artifact storage")
	}
	if err := t.objects.PutObject(ctx, ModelKey, "application/json", modelBytes); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "store model")
	}
	if err := t.objects.PutObject(ctx, DatasetKey, "application/vnd.apache.parquet", dataset); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "store dataset")
	}

	report = &Report{
		Parcels:         len(parcels),
		Samples:         len(examples),
		TrainSize:       trainSize,
		TestSize:        testSize,
		Accuracy:        acc,
		ModelLocation:   t.objects.Location(ModelKey),
		DatasetLocation: t.objects.Location(DatasetKey),
		Duration:        time.Since(start),
	}
	t.logger.InfoContext(ctx, "conflict classifier trained",
		"parcels", report.Parcels, "samples", report.Samples,
		"accuracy", report.Accuracy, "model", report.ModelLocation)
	return report, nil
}

func matrix(examples []Example) ([][]float64, []int) {
	x := make([][]float64, len(examples))
	y := make([]int, len(examples))
	for i, ex := range examples {
		x[i] = ex.Features.Vector()
		y[i] = ex.Label
	}
	return x, y
}
