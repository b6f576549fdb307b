//go:build onnx

package main

import (
	"github.com/becomeliminal/recall/config"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/onnx"
)

// autoEmbedder prefers the local MiniLM model when ONNX support is compiled in.
func autoEmbedder(cfg config.EmbedderConfig) (memory.Embedder, error) {
	return onnxEmbedder(cfg)
}

func onnxEmbedder(cfg config.EmbedderConfig) (memory.Embedder, error) {
	emb, err := onnx.New(onnx.Config{
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
		LibraryPath:   cfg.LibraryPath,
		Dimensions:    cfg.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return emb, nil
}
