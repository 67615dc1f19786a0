package models

const (
	// NoRelevantContent is answered when retrieval finds nothing to ground an answer on.
	NoRelevantContent = "No relevant content found in the document."

	ContextSeparator = "\n\n"

	AnswerPromptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.context}}

Question: {{.question}}
Helpful Answer:`

	SummaryPromptTemplate = "Summarize the following answer:\n\n{{.input}}"
)
