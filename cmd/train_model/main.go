package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"seedcar/logger"
	"seedcar/ml"
	"seedcar/pipeline"
)

const maxReportedIssues = 20

// options 训练参数，对应命令行flag
type options struct {
	kind      string
	dataPath  string
	label     string
	target    string
	out       string
	version   string
	maxDepth  int
	testRatio float64
	seed      int64
	floor     float64
}

func main() {
	var opts options
	flag.StringVar(&opts.kind, "kind", "wheat", "model to train: wheat or car")
	flag.StringVar(&opts.dataPath, "data", "", "training CSV with a header row")
	flag.StringVar(&opts.label, "label", "Type", "wheat class column (1 Kama, 2 Rosa, 3 Canadian)")
	flag.StringVar(&opts.target, "target", "Price", "car price column, in lakhs")
	flag.StringVar(&opts.out, "out", "", "artifact output path (default artifacts/<model file>)")
	flag.IntVar(&opts.maxDepth, "max_depth", 6, "max tree depth")
	flag.Float64Var(&opts.testRatio, "test_ratio", 0.2, "share of rows held out for evaluation")
	flag.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "shuffle seed")
	flag.Float64Var(&opts.floor, "floor", 1.0, "minimum car price")
	flag.StringVar(&opts.version, "version", "", "artifact version (default random)")
	flag.Parse()

	log := logger.New(logger.Options{Level: "info"})
	defer log.Sync()

	path, artifact, err := run(log, opts)
	if err != nil {
		log.Fatal("training failed", zap.String("kind", opts.kind), zap.Error(err))
	}
	log.Info("model saved", zap.String("path", path), zap.String("name", artifact.Name), zap.String("version", artifact.Version))
}

// run 读取、清洗、训练并保存模型，返回写出的路径
func run(log *zap.Logger, opts options) (string, *ml.Artifact, error) {
	if opts.dataPath == "" {
		return "", nil, errors.New("--data is required")
	}
	kind := ml.Kind(opts.kind)
	if kind != ml.KindWheat && kind != ml.KindCar {
		return "", nil, fmt.Errorf("%w: %s", ml.ErrUnsupportedKind, opts.kind)
	}
	if opts.version == "" {
		opts.version = uuid.NewString()[:8]
	}

	ds, err := readDataset(opts.dataPath)
	if err != nil {
		return "", nil, fmt.Errorf("read training data: %w", err)
	}
	log.Info("training data loaded", zap.String("path", opts.dataPath), zap.Int("rows", len(ds.Rows)))

	column := opts.label
	if kind == ml.KindCar {
		column = opts.target
	}
	cleaner, err := pipeline.NewDataCleaner(kind, column, log)
	if err != nil {
		return "", nil, err
	}
	ds, issues := cleaner.Clean(ds)
	for i, issue := range issues {
		if i == maxReportedIssues {
			log.Warn("more rows rejected", zap.Int("count", len(issues)-maxReportedIssues))
			break
		}
		log.Warn("row rejected", zap.Int("line", issue.Line), zap.String("rule", issue.Type), zap.String("reason", issue.Message))
	}
	if len(ds.Rows) == 0 {
		return "", nil, fmt.Errorf("no usable training rows: %+v", cleaner.GetStats())
	}

	train, test := ml.SplitDataset(len(ds.Rows), opts.testRatio, opts.seed)

	var artifact *ml.Artifact
	if kind == ml.KindWheat {
		artifact, err = trainWheat(log, ds, opts.label, opts.version, opts.maxDepth, train, test)
	} else {
		artifact, err = trainCar(log, ds, opts.target, opts.version, opts.floor, train, test)
	}
	if err != nil {
		return "", nil, err
	}

	path := opts.out
	if path == "" {
		path = filepath.Join("artifacts", defaultFile(kind))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", nil, fmt.Errorf("create model dir: %w", err)
	}
	if err := artifact.Save(path); err != nil {
		return "", nil, fmt.Errorf("save model: %w", err)
	}
	return path, artifact, nil
}

func readDataset(path string) (*ml.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ml.ReadCSV(file)
}

func trainWheat(log *zap.Logger, ds *ml.Dataset, label, version string, maxDepth int, train, test []int) (*ml.Artifact, error) {
	features, labels, err := ml.WheatTrainingSet(ds, label)
	if err != nil {
		return nil, err
	}
	trainX, trainY := pickRows(features, train), pickRows(labels, train)
	testX, testY := pickRows(features, test), pickRows(labels, test)

	model := ml.NewDecisionTree("seed_pipeline", version, ml.WheatFeatureNames)
	if err := model.Train(trainX, trainY, maxDepth); err != nil {
		return nil, err
	}
	log.Info("wheat model evaluated",
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", len(testX)),
		zap.Int("nodes", len(model.Nodes())),
		zap.Float64("train_accuracy", ml.Accuracy(model, trainX, trainY)),
		zap.Float64("test_accuracy", ml.Accuracy(model, testX, testY)))
	return ml.TreeArtifact(model), nil
}

func trainCar(log *zap.Logger, ds *ml.Dataset, target, version string, floor float64, train, test []int) (*ml.Artifact, error) {
	vectors, targets, err := ml.CarTrainingSet(ds, target)
	if err != nil {
		return nil, err
	}
	trainX, trainY := pickRows(vectors, train), pickRows(targets, train)
	testX, testY := pickRows(vectors, test), pickRows(targets, test)

	model, err := ml.FitLinear("used_car_price", version, trainX, trainY, &floor)
	if err != nil {
		return nil, err
	}
	log.Info("car model evaluated",
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", len(testX)),
		zap.Float64("train_rmse", ml.RMSE(model, trainX, trainY)),
		zap.Float64("test_rmse", ml.RMSE(model, testX, testY)))
	return ml.LinearArtifact(model), nil
}

func pickRows[T any](rows []T, indices []int) []T {
	out := make([]T, len(indices))
	for i, idx := range indices {
		out[i] = rows[idx]
	}
	return out
}

func defaultFile(kind ml.Kind) string {
	if kind == ml.KindCar {
		return "used_car_price_model.json"
	}
	return "seed_pipeline.json"
}
