// Package embeddings turns text into fixed-dimension vectors.
//
// Three providers are supported:
//
//   - "fastembed" (default): local ONNX models through fastembed-go. Needs a
//     cgo build and the ONNX runtime (see InstallRuntime).
//   - "tei": a HuggingFace text-embeddings-inference server.
//   - "openai": the OpenAI embeddings API or any compatible server.
//
// NewProvider wraps every provider with a per-call timeout and an optional
// rate limit, and classifies failures as ragerr.ErrEmbeddingService or
// ragerr.ErrTimeout.
package embeddings
