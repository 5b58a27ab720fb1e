package research_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/research"
	"github.com/BaSui01/researchflow/testutil"
	"github.com/BaSui01/researchflow/testutil/mocks"
	"github.com/BaSui01/researchflow/workflow"
)

const fourQuestions = `["What is A?", "What is B?", "How do they compare?", "What are the trends?"]`

// happyProvider scripts a clean first-pass run.
func happyProvider() *mocks.ScriptedProvider {
	return mocks.NewScriptedProvider().
		On("expert research planner", fourQuestions).
		On("conducting in-depth research", "detailed factual finding").
		On("expert analyst", "structured analysis of the findings").
		On("strict research validator", "VALID").
		On("final executive research report", "FINAL REPORT")
}

func newPipeline(t *testing.T, p *mocks.ScriptedProvider, opts ...research.Option) *research.Pipeline {
	t.Helper()
	opts = append(opts, research.WithLogger(zap.NewNop()))
	pipe, err := research.New(p, research.DefaultConfig(), opts...)
	require.NoError(t, err)
	return pipe
}

// 场景：一次通过,零重试。
func TestPipelineFirstPassSuccess(t *testing.T) {
	provider := happyProvider()
	pipe := newPipeline(t, provider)

	res, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
	require.NoError(t, err)

	assert.Equal(t, "FINAL REPORT", res.Report)
	assert.Equal(t, research.StatusSucceeded, res.State.Status)
	assert.Equal(t, 0, res.State.RetryCount)
	assert.Len(t, res.State.SubQuestions, 4)
	assert.Len(t, res.State.Findings, 4)
	require.NotNil(t, res.State.Validation)
	assert.True(t, res.State.Validation.Passed)

	// 线性路径,无回边
	assert.Equal(t, []workflow.State{
		research.NodePlanning,
		research.NodeResearching,
		research.NodeAnalyzing,
		research.NodeValidating,
		research.NodeSynthesizing,
	}, res.History.Path())
	assert.Equal(t, workflow.StatusCompleted, res.History.Status)
}

// 场景：首次被拒,重试后通过;拒绝原因必须进入重分析提示词。
func TestPipelineRejectThenPass(t *testing.T) {
	provider := mocks.NewScriptedProvider().
		On("expert research planner", fourQuestions).
		On("conducting in-depth research", "detailed factual finding").
		On("expert analyst", "first analysis", "revised analysis").
		On("strict research validator", "INVALID: missing pricing comparison", "VALID").
		On("final executive research report", "FINAL REPORT v2")

	pipe := newPipeline(t, provider)

	res, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
	require.NoError(t, err)

	assert.Equal(t, "FINAL REPORT v2", res.Report)
	assert.Equal(t, 1, res.State.RetryCount)
	assert.Equal(t, []string{"missing pricing comparison"}, res.State.Rejections)
	assert.Equal(t, "revised analysis", res.State.Analysis)

	// 第二次分析的提示词要带上拒绝原因
	var analystPrompts []string
	for _, call := range provider.Calls() {
		if strings.Contains(call, "expert analyst") {
			analystPrompts = append(analystPrompts, call)
		}
	}
	require.Len(t, analystPrompts, 2)
	assert.NotContains(t, analystPrompts[0], "missing pricing comparison")
	assert.Contains(t, analystPrompts[1], "missing pricing comparison")

	assert.Equal(t, 2, res.History.Visits(research.NodeAnalyzing))
	assert.Equal(t, 2, res.History.Visits(research.NodeValidating))
}

// 场景：重试预算耗尽,运行失败且不产出报告,但状态与转移历史保留。
func TestPipelineValidationExhausted(t *testing.T) {
	provider := mocks.NewScriptedProvider().
		On("expert research planner", fourQuestions).
		On("conducting in-depth research", "detailed factual finding").
		On("expert analyst", "analysis").
		On("strict research validator",
			"INVALID: unsupported claims",
			"INVALID: still one-sided",
			"INVALID: contradicts findings",
		)

	pipe := newPipeline(t, provider)

	res, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
	require.Error(t, err)

	var exhausted *research.ValidationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Retries)
	assert.Equal(t, []string{
		"unsupported claims",
		"still one-sided",
		"contradicts findings",
	}, exhausted.Rejections)

	// 失败也要带回完整的转移历史与最后的状态快照
	require.NotNil(t, res)
	require.NotNil(t, res.History)
	assert.Empty(t, res.Report)
	assert.Equal(t, workflow.StatusFailed, res.History.Status)
	assert.Equal(t, 3, res.History.Visits(research.NodeValidating))
	assert.Equal(t, research.NodeValidating, res.History.Path()[res.History.Len()-1])
	assert.Equal(t, 2, res.State.RetryCount)
	assert.Len(t, res.State.SubQuestions, 4)

	// 报告阶段不应被调用
	assert.Zero(t, provider.CallsMatching("final executive research report"))
	assert.Equal(t, 3, provider.CallsMatching("expert analyst"))
}

type failingTool struct{ err error }

func (f failingTool) Search(ctx context.Context, topic, question string) (string, error) {
	return "", f.err
}

// 场景：全部检索失败,阶段性失败终止运行。
func TestPipelineAllLookupsFail(t *testing.T) {
	provider := mocks.NewScriptedProvider().
		On("expert research planner", fourQuestions)

	pipe := newPipeline(t, provider,
		research.WithSearchTool(failingTool{err: errors.New("backend down")}))

	res, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
	require.Error(t, err)

	var re *research.ResearchError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Attempted)
	assert.ErrorContains(t, re.Cause, "backend down")

	// 历史停在 researching,前面的规划结果仍可读
	require.NotNil(t, res)
	assert.Equal(t, []workflow.State{
		research.NodePlanning,
		research.NodeResearching,
	}, res.History.Path())
	assert.Len(t, res.State.SubQuestions, 4)
	assert.Empty(t, res.State.Findings)
}

type flakyTool struct {
	inner research.SearchTool
	fail  string
}

func (f flakyTool) Search(ctx context.Context, topic, question string) (string, error) {
	if question == f.fail {
		return "", errors.New("lookup timeout")
	}
	return f.inner.Search(ctx, topic, question)
}

// 场景：部分检索失败降级为占位发现,发现集合仍然完整。
func TestPipelinePartialLookupFailure(t *testing.T) {
	provider := happyProvider()

	pipe := newPipeline(t, provider, research.WithSearchTool(flakyTool{
		inner: research.NewLLMSearchTool(provider, research.DefaultConfig(), nil),
		fail:  "What is B?",
	}))

	res, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
	require.NoError(t, err)

	require.Len(t, res.State.Findings, 4)
	assert.Equal(t, research.PlaceholderFinding, res.State.Findings["What is B?"])
	assert.Equal(t, "detailed factual finding", res.State.Findings["What is A?"])
}

// 场景：分解结果无法解析,致命失败。
func TestPipelineUnparsablePlan(t *testing.T) {
	provider := mocks.NewScriptedProvider().
		On("expert research planner", "I cannot produce a list for that.")

	pipe := newPipeline(t, provider)

	_, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
	var pe *research.PlanningError
	require.ErrorAs(t, err, &pe)
}

// 确定性的生成能力下,分解结果可复现。
func TestPipelinePlanningIsReproducible(t *testing.T) {
	var questions [][]string
	for i := 0; i < 2; i++ {
		pipe := newPipeline(t, happyProvider())
		res, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
		require.NoError(t, err)
		questions = append(questions, res.State.SubQuestions)
	}
	assert.Equal(t, questions[0], questions[1])
}

func TestPipelineEmptyQuery(t *testing.T) {
	pipe := newPipeline(t, happyProvider())

	_, err := pipe.Run(testutil.TestContext(t), "   ")
	assert.ErrorIs(t, err, research.ErrEmptyQuery)
}

func TestPipelineCancellation(t *testing.T) {
	pipe := newPipeline(t, happyProvider())

	res, err := pipe.Run(testutil.CancelledContext(t), "Compare A and B")
	require.Error(t, err)
	assert.ErrorIs(t, err, research.ErrCancelled)
	require.NotNil(t, res)
	assert.Equal(t, workflow.StatusFailed, res.History.Status)
}

// 事件流要覆盖每个阶段的进入与完成。
func TestPipelineEmitsStageEvents(t *testing.T) {
	sink := workflow.NewChannelSink(64)
	pipe := newPipeline(t, happyProvider(), research.WithEventSink(sink))

	_, err := pipe.Run(testutil.TestContext(t), "Compare A and B")
	require.NoError(t, err)
	sink.Close()

	entered := map[workflow.State]int{}
	for e := range sink.Events() {
		if e.Type == workflow.EventNodeEntered {
			entered[e.Node]++
		}
	}
	for _, node := range []workflow.State{
		research.NodePlanning,
		research.NodeResearching,
		research.NodeAnalyzing,
		research.NodeValidating,
		research.NodeSynthesizing,
	} {
		assert.Equal(t, 1, entered[node], "node %s", node)
	}
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := research.New(nil, research.DefaultConfig())
	require.Error(t, err)
}
