// Package metaparams loads the detector's metaparameters file: a flat JSON
// document of tuning knobs for feature reduction and the regressor.
package metaparams

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

type Metaparameters struct {
	InferModelSkewMobileNetV2       float64 `mapstructure:"infer_model_skew_mobilenetv2"`
	InferModelSkewResNet            float64 `mapstructure:"infer_model_skew_resnet"`
	InferModelSkewVisionTransformer float64 `mapstructure:"infer_model_skew_visiontransformer"`
	InferNormalizeFeatures          bool    `mapstructure:"infer_normalize_features"`

	TrainInputFeatures           int     `mapstructure:"train_input_features"`
	TrainWeightTableRandomState  uint64  `mapstructure:"train_weight_table_random_state"`
	TrainWeightTableParamsMean   float64 `mapstructure:"train_weight_table_params_mean"`
	TrainWeightTableRandomStd    float64 `mapstructure:"train_weight_table_random_std"`
	TrainWeightTableRandomScaler float64 `mapstructure:"train_weight_table_random_scaler"`

	TrainRandomForestRegressorParamNEstimator            int     `mapstructure:"train_random_forest_regressor_param_n_estimator"`
	TrainRandomForestRegressorParamCriterion             string  `mapstructure:"train_random_forest_regressor_param_criterion"`
	TrainRandomForestRegressorParamMaxDepth              int     `mapstructure:"train_random_forest_regressor_param_max_depth"`
	TrainRandomForestRegressorParamMinSamplesSplit       int     `mapstructure:"train_random_forest_regressor_param_min_samples_split"`
	TrainRandomForestRegressorParamMinSampleLeaf         int     `mapstructure:"train_random_forest_regressor_param_min_sample_leaf"`
	TrainRandomForestRegressorParamMinWeightFractionLeaf float64 `mapstructure:"train_random_forest_regressor_param_min_weight_fraction_leaf"`
	TrainRandomForestRegressorParamMaxFeatures           float64 `mapstructure:"train_random_forest_regressor_param_max_features"`
	TrainRandomForestRegressorParamMinImpurityDecrease   float64 `mapstructure:"train_random_forest_regressor_param_min_impurity_decrease"`
}

// Load reads and validates a metaparameters JSON file. Unknown keys are an
// error so typos surface instead of silently falling back to zero values.
func Load(path string) (*Metaparameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var mp Metaparameters
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &mp,
		WeaklyTypedInput: true, // JSON numbers arrive as float64
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := mp.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &mp, nil
}

func (mp *Metaparameters) Validate() error {
	if mp.TrainInputFeatures <= 0 {
		return fmt.Errorf("train_input_features must be positive, got %d", mp.TrainInputFeatures)
	}
	if mp.TrainWeightTableRandomStd < 0 {
		return fmt.Errorf("train_weight_table_random_std must not be negative, got %v", mp.TrainWeightTableRandomStd)
	}
	if mp.TrainRandomForestRegressorParamNEstimator <= 0 {
		return fmt.Errorf("train_random_forest_regressor_param_n_estimator must be positive, got %d", mp.TrainRandomForestRegressorParamNEstimator)
	}
	if f := mp.TrainRandomForestRegressorParamMaxFeatures; f <= 0 || f > 1 {
		return fmt.Errorf("train_random_forest_regressor_param_max_features must be in (0, 1], got %v", f)
	}
	return nil
}

// Skews maps architecture names to their score skew adjustments.
func (mp *Metaparameters) Skews() map[string]float64 {
	return map[string]float64{
		"MobileNetV2":       mp.InferModelSkewMobileNetV2,
		"ResNet":            mp.InferModelSkewResNet,
		"VisionTransformer": mp.InferModelSkewVisionTransformer,
	}
}
