// Package promptune implements evolutionary prompt tuning: a prompt template
// is repeatedly rewritten by a language model, each rewrite is scored against
// a fixed battery of test cases, and a rewrite is kept only when it beats the
// best score seen so far. A convergence tracker watches the score series and
// stops the run once further iterations stop paying off.
//
// Key Components:
//
//   - Core: Shared primitives. Candidate (a named set of prompt templates
//     with placeholder rendering), TestCase, and the LLM client interface.
//
//   - Tuner: The mutate-evaluate-select loop. Mutations always derive from
//     the last kept candidate, so a regressing rewrite is discarded without
//     poisoning later iterations. Every adoption of a new best candidate is
//     reported to an optional sink before the loop proceeds.
//
//   - Convergence: Tracks the score series, distinguishes significant
//     improvements from noise, detects the convergence point, and reports
//     plateau statistics and tuning recommendations after the run.
//
//   - Evaluation: Renders a candidate against each test case, generates
//     content, and grades it with a judge model on weighted 0-5 criteria,
//     mapped to a 0-100 aggregate score.
//
//   - Mutation: Rewrites the current prompts with a meta-prompt at high
//     temperature.
//
//   - LLMs: Model clients. Anthropic via the official SDK, a file-based
//     client that lets an interactive assistant play the model role, and a
//     deterministic offline mock for dry runs.
//
//   - Storage: SQLite persistence of runs, iteration history, and every
//     adopted candidate.
//
// Simple Example:
//
//	import (
//	    "context"
//
//	    "github.com/promptune/promptune/pkg/evaluation"
//	    "github.com/promptune/promptune/pkg/llms"
//	    "github.com/promptune/promptune/pkg/mutation"
//	    "github.com/promptune/promptune/pkg/testcases"
//	    "github.com/promptune/promptune/pkg/tuner"
//	)
//
//	func main() {
//	    llm, _ := llms.NewLLM(llms.ProviderConfig{Provider: "anthropic"})
//	    battery := testcases.Sample("demo")
//
//	    scorer, _ := evaluation.New(llm, llm, battery)
//	    mutator, _ := mutation.New(llm)
//
//	    tn, _ := tuner.New(mutator, scorer, tuner.WithMaxIterations(20))
//	    result, _ := tn.Optimize(context.Background(), tuner.DefaultCandidate())
//	    _ = result.BestCandidate
//	}
//
// The promptune command wraps the same pipeline for project-based use; see
// cmd/promptune.
package promptune
