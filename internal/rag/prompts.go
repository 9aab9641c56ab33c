package rag

import "strings"

// Prompt templates for each RAG LLM step. Each is filled with simple
// {{placeholder}} substitution rather than text/template, since every
// template here is a flat set of named slots with no control flow.

const contextualizePromptTemplate = `Given the following conversation history and a follow-up question, rewrite
the follow-up question to be a standalone question that captures all
necessary context from the history. If the follow-up question is already
standalone, return it unchanged.

Conversation history:
{{history}}

Follow-up question: {{query}}

Standalone question:`

const hydePromptTemplate = `Write a short hypothetical passage that would answer the following
question, as if it were an excerpt from a relevant document. Do not
mention that it is hypothetical.

Question: {{query}}

Hypothetical passage:`

const rerankPromptTemplate = `Score how relevant the passage is to the query on a scale from 0 to 10,
where 0 is completely irrelevant and 10 is a perfect match. Respond with
only a JSON object of the form {"score": <number>}.

Query: {{query}}

Passage:
{{passage}}`

const ragAnswerPromptTemplate = `You are a helpful assistant answering questions using the knowledge base
context below. Answer only using the given context and conversation
history; if the context does not contain the answer, say so honestly.

{{language_instruction}}

Conversation history:
{{history}}

Context:
{{contexts}}

Question: {{query}}

Answer:`

const smallTalkPromptTemplate = `You are a friendly conversational assistant. Respond naturally to the
message below without searching any knowledge base.

{{language_instruction}}

Conversation history:
{{history}}

Message: {{query}}

Response:`

func render(template string, replacements map[string]string) string {
	out := template
	for k, v := range replacements {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
