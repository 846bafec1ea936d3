// Package copilot embeds the building code copilot in a Go program: index
// plans and code excerpts, then stream answers that keep the model's
// reasoning apart from the answer.
//
// Providers are pluggable. Bring your own Embedder and Generator, or use
// the OpenAI-compatible ones:
//
//	c, _ := copilot.New(
//	    copilot.WithOpenAI(copilot.OpenAIConfig{
//	        APIKey:         os.Getenv("OPENAI_API_KEY"),
//	        EmbeddingModel: "text-embedding-3-small",
//	        ChatModel:      "gpt-4o-mini",
//	    }),
//	)
//	_, _ = c.Index(ctx, copilot.Document{ID: "plan.pdf", Data: pdf})
//	ans, _ := c.Ask(ctx, "How wide must the exit stair be?", func(r copilot.Response) error {
//	    fmt.Print(r.Answer)
//	    return nil
//	})
//
// A Client holds a single conversation; it is safe for concurrent use.
package copilot
