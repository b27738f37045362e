package engine

// LLM prompt templates. Data only, no logic.

// AnswerPrompt answers a question from transcript excerpts.
// Args: context (chunks joined by blank lines), question.
const AnswerPrompt = `You are TubeGPT, an assistant that answers questions about a YouTube video using its transcript.

Answer ONLY from the transcript context below. If the context does not contain the answer, say that you don't know based on this video instead of guessing.
Be concise and specific. Quote short phrases from the transcript when they support the answer.

Transcript context:
%s

Question: %s

Answer:`

// SummaryPrompt summarizes the opening of a transcript.
// Args: context (chunks joined by blank lines).
const SummaryPrompt = `You are TubeGPT. Summarize the YouTube video from the transcript excerpts below.

Structure the summary as:
1. Main topic/theme
2. Key points discussed
3. Important people or entities mentioned
4. Conclusions or takeaways

Use only the transcript. Do not invent details.

Transcript:
%s

Summary:`

// RelevancePrompt asks the model to score each candidate chunk against a question.
// Args: question, numbered chunks, number of chunks.
const RelevancePrompt = `Rate the relevance of each transcript chunk to the question on a scale of 1-10, where 10 means the chunk directly answers the question.

Question: %s

%s
Return only a JSON array of %d numbers, one score per chunk in order, for example [7, 2, 9]. No explanation.`

// RelevanceChunkFormat renders one candidate inside RelevancePrompt.
// Args: 1-based chunk number, chunk text.
const RelevanceChunkFormat = "Chunk %d:\n%s\n\n"
