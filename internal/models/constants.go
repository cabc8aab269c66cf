package models

const (
	DefaultEmbeddingModel     = "gemini-embedding-001"
	DefaultEmbeddingDimension = 3072

	ChunkingStrategyToken  = "token"
	ChunkingStrategySimple = "simple"

	ContextSeparator = "\n\n====\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`
)

var (
	AnswerSystemPrompt = "You are a helpful assistant. Use the provided context to answer the query. " +
		"If the context does not contain the answer, say so."

	AnswerPromptTemplate = `<context>
%s
</context>
<query>
%s
</query>
Answer the query using only the context above.
`
)
