//go:build !onnx

package main

import (
	"log"

	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/core"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/mock"
)

// autoEmbedder falls back to the hash embedder in builds without ONNX.
// Recall then only matches near-identical wording.
func autoEmbedder(cfg config.EmbedderConfig) (memory.Embedder, error) {
	log.Printf("[WIRE] Built without onnx support; using the hash embedder (rebuild with -tags onnx for semantic recall)")
	return mock.NewWithDimensions(cfg.Dimensions), nil
}

func onnxEmbedder(config.EmbedderConfig) (memory.Embedder, error) {
	return nil, core.Errorf(core.KindConfiguration, "build embedder", "onnx embedder requested but recall was built without -tags onnx")
}
