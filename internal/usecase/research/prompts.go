package research

import (
	"fmt"
	"strings"

	"research-orchestrator/internal/domain/model"
)

const plannerSystem = "You are a precise research planner. Output valid JSON with ALL required fields."

func plannerPrompt(query string, depth model.Depth) string {
	n := "5-8"
	if depth == model.DepthDeep {
		n = "8"
	}
	return fmt.Sprintf(`You are a research planning assistant. Given a user query, you MUST generate ALL THREE fields in your JSON response.

User Query: %q

You MUST output a JSON object with these EXACT three fields:
1. "sub_questions": array of %[2]s sub-questions (comprehensive coverage)
2. "search_queries": array of %[2]s SPECIFIC web search queries
3. "extraction_fields": array of %[2]s types of information to extract

EXAMPLE OUTPUT FORMAT:
{
  "sub_questions": ["What is X and how does it work?", "What are the key advantages of X?"],
  "search_queries": ["X technology overview 2024", "X advantages and benefits"],
  "extraction_fields": ["dates", "performance metrics", "company names"]
}

RULES:
- Include all three fields: sub_questions, search_queries, extraction_fields
- Search queries must be real search phrases, NOT placeholders like "..." or "query 1"
- Output ONLY the JSON object`, query, n)
}

const extractorSystem = "You are a precise fact extractor. Only extract facts supported by the text. Output valid JSON."

func extractorPrompt(question, context string) string {
	return fmt.Sprintf(`Sub-question: %q

Context:
%s

Extract key facts from the context that answer the sub-question.
Each fact must include the source URL, the exact snippet from the text, and the assertion (fact statement).
Respond with a JSON object: {"facts": [{"source": "...", "snippet": "...", "assertion": "..."}]}
If the context doesn't answer the question, return {"facts": []}.`, question, context)
}

const compilerSystem = "You are an elite research analyst. You embed inline citations as [1], [2], [3] throughout your report. Every claim needs a citation number right after it."

func compilerPrompt(query string, facts []model.Fact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %q\n\nRESEARCH FACTS (use these numbers as inline citations):\n", query)
	for i, f := range facts {
		fmt.Fprintf(&b, "[%d] %s\nContext: %q\nSource: %s\n\n", i+1, f.Assertion, f.Snippet, f.Source)
	}
	b.WriteString(`Write an EXTREMELY DETAILED markdown report (800-1200 words):
- Use ## for main sections and ### for subsections
- EVERY fact, statistic or claim MUST carry its [N] citation immediately after it, e.g. "The BJP won 240 seats [5]."
- Use multiple citations where appropriate: [1][2]
- Include all data points, dates, numbers and names
- Use bullet points for lists
Output only the report.`)
	return b.String()
}

const summarySystem = "You write concise executive summaries. Output valid JSON."

func summaryPrompt(query, report string) string {
	return fmt.Sprintf(`Research question: %q

Report:
%s

Write a 2-3 sentence executive summary of the report without citations.
Respond with a JSON object: {"summary": "..."}`, query, report)
}

const chatSystem = "You are a helpful research assistant continuing a conversation about earlier research. Answer using the prior reports where relevant and say so when they do not cover the question."
