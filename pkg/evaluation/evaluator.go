// Package evaluation scores candidate prompts by rendering them against a
// fixed test case battery, generating content for each case, and grading the
// output with a judge model.
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/errors"
	"github.com/promptune/promptune/pkg/logging"
	"github.com/promptune/promptune/pkg/testcases"
	"github.com/promptune/promptune/pkg/utils"
)

// Criterion is one axis the judge grades on. Weights are relative; they are
// normalized at scoring time.
type Criterion struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight"`
}

// DefaultCriteria mirrors the axes used for PR-FAQ grading.
func DefaultCriteria() []Criterion {
	return []Criterion{
		{Name: "quality", Description: "Overall quality and persuasiveness of the document", Weight: 0.4},
		{Name: "clarity", Description: "Clear, direct language free of filler", Weight: 0.2},
		{Name: "structure", Description: "Adherence to the expected document structure", Weight: 0.2},
		{Name: "completeness", Description: "Coverage of the problem, solution, and open questions", Weight: 0.2},
	}
}

// neutralJudgeScore stands in for a criterion when the judge responds with
// unparseable output. Mid-scale keeps one bad verdict from sinking or
// inflating the whole candidate.
const neutralJudgeScore = 3.5

// CaseResult is the grading outcome for a single test case.
type CaseResult struct {
	TestCaseID   string             `json:"test_case_id"`
	TestCaseName string             `json:"test_case_name"`
	Score        float64            `json:"score"`
	Criteria     map[string]float64 `json:"criteria,omitempty"`
	Reasoning    string             `json:"reasoning,omitempty"`
	EmptyOutput  bool               `json:"empty_output,omitempty"`
}

// Report is the full grading outcome for one candidate.
type Report struct {
	Aggregate float64      `json:"aggregate"`
	Cases     []CaseResult `json:"cases"`
}

// Evaluator implements the scoring side of the optimization loop. It
// satisfies tuner.Scorer.
type Evaluator struct {
	generator core.LLM
	judge     core.LLM
	battery   *testcases.Battery

	criteria    []Criterion
	promptName  string
	temperature float64
	concurrency int
	logger      *logging.Logger
}

// Option defines functional options for Evaluator configuration.
type Option func(*Evaluator)

// WithCriteria replaces the default grading criteria.
func WithCriteria(criteria []Criterion) Option {
	return func(e *Evaluator) {
		e.criteria = criteria
	}
}

// WithPromptName selects which prompt in the candidate is rendered.
func WithPromptName(name string) Option {
	return func(e *Evaluator) {
		e.promptName = name
	}
}

// WithGenerationTemperature sets the sampling temperature for content
// generation. The judge always runs cold.
func WithGenerationTemperature(t float64) Option {
	return func(e *Evaluator) {
		e.temperature = t
	}
}

// WithConcurrency bounds how many test cases are graded in parallel within a
// single Score call.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		e.concurrency = n
	}
}

// New creates an Evaluator. The generator produces documents and the judge
// grades them; the two may be the same model.
func New(generator, judge core.LLM, battery *testcases.Battery, opts ...Option) (*Evaluator, error) {
	if generator == nil || judge == nil {
		return nil, errors.New(errors.InvalidInput, "generator and judge models are required")
	}
	if battery == nil || len(battery.TestCases) == 0 {
		return nil, errors.New(errors.InvalidInput, "test case battery is empty")
	}

	e := &Evaluator{
		generator:   generator,
		judge:       judge,
		battery:     battery,
		criteria:    DefaultCriteria(),
		promptName:  "generation",
		temperature: 1.0,
		concurrency: 4,
		logger:      logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if len(e.criteria) == 0 {
		return nil, errors.New(errors.InvalidInput, "at least one grading criterion is required")
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}

	return e, nil
}

// Score implements tuner.Scorer: the mean case score on a 0-100 scale.
// Generation or judge transport failures are errors, never coerced to zero;
// empty generated content legitimately scores zero.
func (e *Evaluator) Score(ctx context.Context, candidate core.Candidate) (float64, error) {
	report, err := e.Evaluate(ctx, candidate)
	if err != nil {
		return 0, err
	}
	return report.Aggregate, nil
}

// Evaluate grades a candidate against every test case and returns per-case
// detail alongside the aggregate.
func (e *Evaluator) Evaluate(ctx context.Context, candidate core.Candidate) (*Report, error) {
	if _, ok := candidate[e.promptName]; !ok {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "candidate is missing the prompt under evaluation"),
			errors.Fields{"prompt": e.promptName})
	}

	results := make([]CaseResult, len(e.battery.TestCases))

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(e.concurrency).
		WithCancelOnError()

	for i, tc := range e.battery.TestCases {
		p.Go(func(ctx context.Context) error {
			result, err := e.evaluateCase(ctx, candidate, tc)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	var total float64
	for _, r := range results {
		total += r.Score
	}
	aggregate := total / float64(len(results))

	e.logger.Debug(ctx, "Evaluated candidate across %d test cases: aggregate %.2f",
		len(results), aggregate)

	return &Report{Aggregate: aggregate, Cases: results}, nil
}

// evaluateCase generates a document for one scenario and grades it.
func (e *Evaluator) evaluateCase(ctx context.Context, candidate core.Candidate, tc core.TestCase) (CaseResult, error) {
	result := CaseResult{TestCaseID: tc.ID, TestCaseName: tc.Name}

	rendered := candidate.Render(e.promptName, tc.Inputs)

	response, err := e.generator.Generate(ctx, rendered, core.WithTemperature(e.temperature))
	if err != nil {
		return result, errors.WithFields(
			errors.Wrap(err, errors.ScoringFailed, "content generation failed"),
			errors.Fields{"test_case": tc.ID})
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		result.EmptyOutput = true
		result.Score = 0
		return result, nil
	}

	verdict, err := e.judge.Generate(ctx, e.judgePrompt(tc, content), core.WithTemperature(0.3))
	if err != nil {
		return result, errors.WithFields(
			errors.Wrap(err, errors.ScoringFailed, "judge call failed"),
			errors.Fields{"test_case": tc.ID})
	}

	result.Criteria, result.Reasoning = e.parseVerdict(ctx, verdict.Content, tc.ID)
	result.Score = e.weightedScore(result.Criteria)
	return result, nil
}

// judgePrompt asks for one 0-5 grade per criterion as bare JSON.
func (e *Evaluator) judgePrompt(tc core.TestCase, content string) string {
	var b strings.Builder

	b.WriteString("Evaluate the following generated document against its scenario.\n\n")
	fmt.Fprintf(&b, "SCENARIO: %s\n", tc.Name)
	if tc.Description != "" {
		fmt.Fprintf(&b, "GOAL: %s\n", tc.Description)
	}
	for key, value := range tc.Inputs {
		fmt.Fprintf(&b, "%s: %s\n", key, value)
	}

	b.WriteString("\nDOCUMENT:\n")
	b.WriteString(content)
	b.WriteString("\n\nScore each criterion on a 0-5 scale (floating point allowed):\n")
	for _, c := range e.criteria {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}

	b.WriteString("\nRespond with JSON only, no prose: {")
	for _, c := range e.criteria {
		fmt.Fprintf(&b, "%q: <0-5>, ", c.Name)
	}
	b.WriteString(`"reasoning": "<one sentence>"}`)

	return b.String()
}

// parseVerdict extracts per-criterion grades from the judge output. A
// missing or unparseable grade falls back to the neutral mid-scale value so
// a flaky verdict degrades the signal instead of aborting the run.
func (e *Evaluator) parseVerdict(ctx context.Context, verdict, testCaseID string) (map[string]float64, string) {
	grades := make(map[string]float64, len(e.criteria))
	var reasoning string

	parsed, err := utils.ParseJSONResponse(verdict)
	if err != nil {
		e.logger.Warn(ctx, "Judge verdict for %s was not valid JSON, using neutral grades", testCaseID)
		for _, c := range e.criteria {
			grades[c.Name] = neutralJudgeScore
		}
		return grades, "judge verdict parsing failed"
	}

	if raw, ok := parsed["reasoning"].(string); ok {
		reasoning = raw
	}

	for _, c := range e.criteria {
		grade, ok := utils.GetFloat(parsed, c.Name)
		if !ok {
			// Single-score verdicts grade every criterion alike.
			grade, ok = utils.GetFloat(parsed, "score")
		}
		if !ok {
			grade = neutralJudgeScore
		}
		grades[c.Name] = clamp(grade, 0, 5)
	}

	return grades, reasoning
}

// weightedScore maps 0-5 criterion grades to a 0-100 case score.
func (e *Evaluator) weightedScore(grades map[string]float64) float64 {
	var weightSum, total float64
	for _, c := range e.criteria {
		weightSum += c.Weight
		total += grades[c.Name] * c.Weight
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum * 20
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
