package research

import (
	"fmt"
	"strings"
	"text/template"
)

// PromptSet holds the prompt templates for every stage. All five are plain
// text/template strings; the Critic rubric in particular is meant to be
// overridden by callers who need a different quality bar.
type PromptSet struct {
	Planner     string
	Researcher  string
	Analyst     string
	Critic      string
	Synthesizer string
}

// DefaultPrompts returns the built-in prompt templates.
func DefaultPrompts() *PromptSet {
	return &PromptSet{
		Planner:     plannerPrompt,
		Researcher:  researcherPrompt,
		Analyst:     analystPrompt,
		Critic:      criticPrompt,
		Synthesizer: synthesizerPrompt,
	}
}

const plannerPrompt = `You are an expert research planner. Your job is to decompose complex research questions into specific, actionable sub-questions.

Research Question: "{{.Query}}"

Break this down into 4-6 specific sub-questions that will comprehensively answer the main question.

Output ONLY a JSON array of strings, nothing else. Example format:
["What is X?", "What is Y?", "How do they compare?", "What are the trends?", "What is the recommendation?"]

JSON array:`

const researcherPrompt = `You are conducting in-depth research. Answer this specific question with factual, detailed information as if you've searched the web and consulted multiple sources.

Original Research Topic: "{{.Query}}"

Specific Question: "{{.SubQuestion}}"

Provide comprehensive, factual information. Include specific details, trends, statistics, and real-world context where relevant.

Answer:`

const analystPrompt = `You are an expert analyst. Review the research findings below and provide a structured analysis.

Original Research Question: "{{.Query}}"

Research Findings:
{{.Findings}}
{{if .Reason}}
A previous version of this analysis was rejected by a reviewer for the following reason:
{{.Reason}}

Your new analysis must materially address that rejection.
{{end}}
Provide analysis covering:
1. Key Patterns and Trends
2. Comparative Advantages/Disadvantages (if applicable)
3. Market Positioning or Current State
4. Critical Insights and Takeaways

Be analytical, objective, and insightful.

Analysis:`

const criticPrompt = `You are a strict research validator. Review the analysis below for:
- Coverage: every sub-question must be addressed
- Hallucinations or unsupported claims
- Obvious bias or one-sided arguments
- Logical inconsistencies

Original Question: "{{.Query}}"

Sub-questions:
{{.SubQuestions}}

Analysis to Validate:
{{.Analysis}}

Respond with exactly one line starting with one word:
- "VALID" if the analysis is sound, balanced, and well-supported
- "INVALID: <short reason>" if it has significant issues

Verdict:`

const synthesizerPrompt = `You are creating a final executive research report.

Research Question: "{{.Query}}"

Analysis:
{{.Analysis}}

Generate a professional report with:

1. EXECUTIVE SUMMARY (2-3 sentences)
2. KEY FINDINGS (3-5 bullet points)
3. COMPARATIVE ANALYSIS or PROS/CONS (if applicable)
4. RECOMMENDATION (clear, actionable conclusion)

Format this as a polished, decision-ready report.

FINAL REPORT:`

// render executes a prompt template against data.
func render(name, tmpl string, data any) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse %s prompt: %w", name, err)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return sb.String(), nil
}
