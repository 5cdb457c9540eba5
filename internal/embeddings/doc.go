// Package embeddings turns chunk and query text into fixed-dimension vectors.
//
// Three backends are selected by the embeddings section of the config:
//   - openai: any OpenAI-compatible /embeddings endpoint, through langchaingo
//   - tei: a HuggingFace text-embeddings-inference server
//   - fastembed: local ONNX models (cgo builds only)
//
// NewProvider wraps the backend with OpenTelemetry metrics. Every provider
// returns exactly one vector per input text, in input order.
package embeddings
