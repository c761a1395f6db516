package llm

import "strings"

// NoAnswer is returned when the context holds nothing relevant.
const NoAnswer = "The document does not contain relevant information."

const promptTemplate = "You are a helpful assistant. Based on the context provided below, " +
	"extract factual information as accurately as possible. Only use the context to answer. " +
	"If the answer is not explicitly present, respond with '" + NoAnswer + "'\n\n" +
	"Context:\n{context}\n\nQuestion: {question}\nAnswer:"

// BuildPrompt fills the question-answering prompt.
func BuildPrompt(question, docContext string) string {
	r := strings.NewReplacer("{context}", docContext, "{question}", question)
	return r.Replace(promptTemplate)
}
