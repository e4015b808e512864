// Package detector wires model loading, feature extraction and the
// regressor into the two pipeline entry points: Configure trains and
// persists every artifact, Infer scores one unseen model against them.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"trojascan/features"
	"trojascan/format"
	"trojascan/metaparams"
	"trojascan/progress"
	"trojascan/regressor"
	"trojascan/weights"
)

// Artifact file names under the learned-parameters data directory.
const (
	regressorFile = "model.bin"
	layerMapFile  = "model_layer_map.bin"
	transformFile = "layer_transform.bin"
	manifestFile  = "manifest.json"
)

type Detector struct {
	meta  *metaparams.Metaparameters
	table weights.ArchTable

	regressorPath string
	layerMapPath  string
	transformPath string
	manifestPath  string
}

// New builds a detector over an explicit architecture table. The table's
// skew values are overwritten from the metaparameters for the
// architectures named there; the caller's table is left untouched.
func New(meta *metaparams.Metaparameters, table weights.ArchTable, learnedDir string) *Detector {
	table = maps.Clone(table)
	for arch, skew := range meta.Skews() {
		if spec, ok := table[arch]; ok {
			spec.Skew = skew
			table[arch] = spec
		}
	}

	dataDir := filepath.Join(learnedDir, "data")
	return &Detector{
		meta:          meta,
		table:         table,
		regressorPath: filepath.Join(dataDir, regressorFile),
		layerMapPath:  filepath.Join(dataDir, layerMapFile),
		transformPath: filepath.Join(dataDir, transformFile),
		manifestPath:  filepath.Join(dataDir, manifestFile),
	}
}

type loadedModel struct {
	model *weights.Model
	label float64
}

// Configure trains on every model under modelsDir and persists the layer
// map, the reduction transform, the fitted regressor and a run manifest.
// Nothing is written unless every stage succeeds.
func (d *Detector) Configure(ctx context.Context, modelsDir string) error {
	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		return err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(modelsDir, e.Name()))
		}
	}
	slices.Sort(dirs)

	if len(dirs) == 0 {
		return fmt.Errorf("%s: no model directories found", modelsDir)
	}
	slog.Info("found models", "count", len(dirs))

	loaded, err := d.loadCorpus(ctx, dirs)
	if err != nil {
		return err
	}

	// Group by architecture. Slot order is the sorted directory order, so
	// each representation stays paired with its own label.
	reprs := make(map[string][]*weights.Model)
	labels := make(map[string][]float64)
	for _, lm := range loaded {
		reprs[lm.model.Arch] = append(reprs[lm.model.Arch], lm.model)
		labels[lm.model.Arch] = append(labels[lm.model.Arch], lm.label)
	}

	printCorpusSummary(reprs, labels)

	if err := features.CheckConsistency(reprs); err != nil {
		return err
	}

	slog.Info("generating model layer map")
	layerMap, err := features.BuildLayerMap(reprs)
	if err != nil {
		return err
	}

	p := progress.NewProgress(os.Stderr)
	spinner := progress.NewSpinner("flattening models")
	p.Add(spinner)

	flats := make(map[string][][]float64, len(reprs))
	for arch, models := range reprs {
		for _, m := range models {
			flat, err := features.Flatten(m, layerMap[arch])
			if err != nil {
				p.Stop()
				return err
			}
			flats[arch] = append(flats[arch], flat)
		}
	}
	spinner.Stop()
	p.Stop()

	slog.Info("fitting feature reduction", "output_width", d.meta.TrainInputFeatures)
	transform, err := features.FitReduction(flats, d.weightTableParams(), d.meta.TrainInputFeatures, d.meta.InferNormalizeFeatures)
	if err != nil {
		return err
	}

	var X [][]float64
	var y []float64

	archs := maps.Keys(flats)
	slices.Sort(archs)
	for _, arch := range archs {
		at := transform[arch]
		for i, flat := range flats[arch] {
			feats, err := at.Apply(flat)
			if err != nil {
				return err
			}
			X = append(X, feats)
			y = append(y, labels[arch][i])
		}
	}

	slog.Info("fitting regressor", "rows", len(X), "features", d.meta.TrainInputFeatures)
	forest := regressor.New(d.forestParams())
	if err := forest.Fit(X, y); err != nil {
		return err
	}

	return d.persist(layerMap, transform, forest, archs, len(loaded))
}

// loadCorpus loads the model directories in parallel. Results land in a
// slot per directory so completion order cannot unpair a model from its
// label or perturb the downstream grouping order.
func (d *Detector) loadCorpus(ctx context.Context, dirs []string) ([]loadedModel, error) {
	p := progress.NewProgress(os.Stderr)
	bar := progress.NewBar("loading models", int64(len(dirs)))
	p.Add(bar)
	defer p.Stop()

	slots := make([]loadedModel, len(dirs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			m, err := weights.Load(dir, d.table)
			if err != nil {
				return err
			}

			label, err := weights.LoadGroundTruth(dir)
			if err != nil {
				return err
			}

			slots[i] = loadedModel{model: m, label: label}
			bar.Increment()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return slots, nil
}

// Infer scores the model under modelDir with the persisted artifacts and
// writes the score to resultPath as a single decimal line. The result file
// is untouched on any failure.
func (d *Detector) Infer(modelDir, resultPath string) error {
	m, err := weights.Load(modelDir, d.table)
	if err != nil {
		return err
	}

	var layerMap features.LayerMap
	if err := loadCBOR(d.layerMapPath, &layerMap); err != nil {
		return err
	}

	alm, ok := layerMap[m.Arch]
	if !ok {
		return fmt.Errorf("architecture %s not covered by the configured layer map", m.Arch)
	}

	flat, err := features.Flatten(m, alm)
	if err != nil {
		return err
	}

	var transform features.Transform
	if err := loadCBOR(d.transformPath, &transform); err != nil {
		return err
	}

	at, ok := transform[m.Arch]
	if !ok {
		return fmt.Errorf("architecture %s not covered by the configured reduction transform", m.Arch)
	}

	feats, err := at.Apply(flat)
	if err != nil {
		return err
	}

	var forest regressor.Forest
	if err := loadCBOR(d.regressorPath, &forest); err != nil {
		return err
	}

	score, err := forest.Predict(feats)
	if err != nil {
		return err
	}

	score = clamp01(score + d.table[m.Arch].Skew)
	slog.Info("scored model", "path", modelDir, "arch", m.Arch, "probability", score)

	return os.WriteFile(resultPath, []byte(strconv.FormatFloat(score, 'f', -1, 64)+"\n"), 0o644)
}

func (d *Detector) persist(layerMap features.LayerMap, transform features.Transform, forest *regressor.Forest, archs []string, models int) error {
	if err := os.MkdirAll(filepath.Dir(d.layerMapPath), 0o755); err != nil {
		return err
	}

	if err := saveCBOR(d.layerMapPath, layerMap); err != nil {
		return err
	}
	if err := saveCBOR(d.transformPath, transform); err != nil {
		return err
	}
	if err := saveCBOR(d.regressorPath, forest); err != nil {
		return err
	}
	if err := saveJSON(d.manifestPath, newManifest(archs, models)); err != nil {
		return err
	}

	slog.Info("persisted learned artifacts", "dir", filepath.Dir(d.layerMapPath))
	return nil
}

func (d *Detector) weightTableParams() features.WeightTableParams {
	return features.WeightTableParams{
		RandomSeed: d.meta.TrainWeightTableRandomState,
		Mean:       d.meta.TrainWeightTableParamsMean,
		Std:        d.meta.TrainWeightTableRandomStd,
		Scale:      d.meta.TrainWeightTableRandomScaler,
	}
}

func (d *Detector) forestParams() regressor.Params {
	return regressor.Params{
		NEstimators:           d.meta.TrainRandomForestRegressorParamNEstimator,
		Criterion:             d.meta.TrainRandomForestRegressorParamCriterion,
		MaxDepth:              d.meta.TrainRandomForestRegressorParamMaxDepth,
		MinSamplesSplit:       d.meta.TrainRandomForestRegressorParamMinSamplesSplit,
		MinSamplesLeaf:        d.meta.TrainRandomForestRegressorParamMinSampleLeaf,
		MinWeightFractionLeaf: d.meta.TrainRandomForestRegressorParamMinWeightFractionLeaf,
		MaxFeatures:           d.meta.TrainRandomForestRegressorParamMaxFeatures,
		MinImpurityDecrease:   d.meta.TrainRandomForestRegressorParamMinImpurityDecrease,
		// pinned so retraining the same corpus reproduces the same forest
		RandomState: 0,
	}
}

func printCorpusSummary(reprs map[string][]*weights.Model, labels map[string][]float64) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Architecture", "Models", "Poisoned", "Layers"})

	archs := maps.Keys(reprs)
	slices.Sort(archs)
	for _, arch := range archs {
		var poisoned int
		for _, label := range labels[arch] {
			if label > 0.5 {
				poisoned++
			}
		}

		table.Append([]string{
			arch,
			strconv.Itoa(len(reprs[arch])),
			strconv.Itoa(poisoned),
			format.HumanNumber(uint64(reprs[arch][0].Len())),
		})
	}

	table.Render()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
