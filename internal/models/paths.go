// Package models resolves the on-disk locations of the classifier assets.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Asset file names.
const (
	ClassifierModel  = "food_classifier.onnx"
	ClassifierLabels = "food_labels.txt"
	LabelMapping     = "label_mapping.yaml"
)

// TypeClassification is the subdirectory holding classifier assets.
const TypeClassification = "classification"

// DefaultModelsDir is used when nothing else is configured.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "FOODLENS_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// AssetInfo describes a file the classifier expects under the models directory.
type AssetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	Required    bool   `json:"required"`
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. FOODLENS_MODELS_DIR, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolvePath resolves an asset filename. The organised layout
// (<dir>/classification/<file>) wins when it exists; otherwise the flat
// layout (<dir>/<file>) is returned.
func ResolvePath(modelsDir, filename string) string {
	baseDir := GetModelsDir(modelsDir)
	organized := filepath.Join(baseDir, TypeClassification, filename)
	if _, err := os.Stat(organized); err == nil {
		return organized
	}
	return filepath.Join(baseDir, filename)
}

// GetClassifierModelPath returns the ONNX classifier path.
func GetClassifierModelPath(modelsDir string) string {
	return ResolvePath(modelsDir, ClassifierModel)
}

// GetLabelsPath returns the class label file path.
func GetLabelsPath(modelsDir string) string {
	return ResolvePath(modelsDir, ClassifierLabels)
}

// GetMappingPath returns the label mapping table path, or "" when no table
// file exists and the built-in table applies.
func GetMappingPath(modelsDir string) string {
	p := ResolvePath(modelsDir, LabelMapping)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAssets returns the classifier assets.
func ListAssets() []AssetInfo {
	return []AssetInfo{
		{Name: "classifier", Description: "ImageNet-style food classifier", Filename: ClassifierModel, Required: true},
		{Name: "labels", Description: "One class label per line, in output order", Filename: ClassifierLabels, Required: true},
		{Name: "mapping", Description: "Label to food category mapping table", Filename: LabelMapping},
	}
}
