// Package embedder turns project text into embedding vectors.
//
// Two providers are available: HTTPProvider talks to any OpenAI-compatible
// /embeddings endpoint (Jina and OpenAI presets are built in), and
// LocalProvider hashes tokens into a fixed-size vector for offline use and
// tests.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "jina", APIKey: key})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	text := embedder.BuildSearchableText(p.Title, p.Goal, p.KeyTasks, p.Tags)
//	vec, err := emb.Embed(ctx, text)
//
// # Errors
//
// Every failure is a *ProviderError with one of four kinds. Match them with
// errors.Is:
//
//	switch {
//	case errors.Is(err, embedder.ErrEmptyInput):    // blank text, nothing sent
//	case errors.Is(err, embedder.ErrTimeout):       // deadline or client timeout
//	case errors.Is(err, embedder.ErrEmptyResponse): // provider returned no vectors
//	case errors.Is(err, embedder.ErrUnavailable):   // transport or HTTP failure
//	}
//
// Throttled (429) and 5xx replies are retried with exponential backoff.
// Requests are paced by a token bucket when RequestsPerSecond is set.
package embedder
