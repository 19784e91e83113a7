// Package models resolves model and dictionary files under the models directory.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file names.
const (
	DetectionMobile   = "PP-OCRv5_mobile_det.onnx"
	RecognitionMobile = "PP-OCRv5_mobile_rec.onnx"
	DictionaryPPOCR   = "ppocr_keys_v1.txt"

	SAMEncoder = "sam_vit_b_encoder.onnx"
	SAMDecoder = "sam_vit_b_decoder.onnx"
)

// Directory layout under the models directory.
const (
	TypeDetection    = "detection"
	TypeRecognition  = "recognition"
	TypeSegmentation = "segmentation"
	TypeDictionaries = "dictionaries"
)

// DefaultModelsDir is used when neither a flag nor the environment names one.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "OCRSAM_MODELS_DIR"

// ModelInfo describes one expected model file.
type ModelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
}

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
			return "", errors.New("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}

// GetModelsDir picks the models directory: explicit value, then
// OCRSAM_MODELS_DIR, then <project root>/models.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath prefers <dir>/<type>/<file> and falls back to <dir>/<file>.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	base := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(base, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(base, filename)
}

func GetDetectionModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeDetection, DetectionMobile)
}

func GetRecognitionModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeRecognition, RecognitionMobile)
}

func GetDictionaryPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeDictionaries, DictionaryPPOCR)
}

func GetSAMEncoderPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeSegmentation, SAMEncoder)
}

func GetSAMDecoderPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeSegmentation, SAMDecoder)
}

// ValidateModelExists returns an error naming path when it does not exist.
func ValidateModelExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", path)
	}
	return nil
}

// ListAvailableModels lists the files the pipeline loads at startup.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{Name: "text-detection", Type: TypeDetection, Description: "DB text detector", Filename: DetectionMobile},
		{Name: "text-recognition", Type: TypeRecognition, Description: "CTC text recognizer", Filename: RecognitionMobile},
		{Name: "ppocr-keys-v1", Type: TypeDictionaries, Description: "Recognizer character dictionary", Filename: DictionaryPPOCR},
		{Name: "sam-encoder", Type: TypeSegmentation, Description: "Segment Anything image encoder", Filename: SAMEncoder},
		{Name: "sam-decoder", Type: TypeSegmentation, Description: "Segment Anything prompt decoder", Filename: SAMDecoder},
	}
}
