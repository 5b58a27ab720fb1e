package research

import (
	"errors"
	"fmt"
)

// ErrEmptyQuery 空查询
var ErrEmptyQuery = errors.New("research: query must not be empty")

// ErrCancelled 运行被外部取消
var ErrCancelled = errors.New("cancelled")

// PlanningError 表示任务分解失败（空响应或无法解析）。致命，不重试。
type PlanningError struct {
	Cause error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Cause)
}

func (e *PlanningError) Unwrap() error { return e.Cause }

// ResearchError 表示全部子问题检索失败（零条发现）。致命。
// 部分失败不构成该错误——缺失项降级为占位发现。
type ResearchError struct {
	Attempted int
	Cause     error
}

func (e *ResearchError) Error() string {
	return fmt.Sprintf("research failed: all %d lookups failed", e.Attempted)
}

func (e *ResearchError) Unwrap() error { return e.Cause }

// AnalysisError 表示分析阶段的生成能力故障。区别于 Critic 的质量重试，
// 能力故障不重试，直接终止。
type AnalysisError struct {
	Cause error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %v", e.Cause)
}

func (e *AnalysisError) Unwrap() error { return e.Cause }

// ToolError 表示检索工具故障，带原因透传。
type ToolError struct {
	Cause error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("search tool failed: %v", e.Cause)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// ValidationExhaustedError 表示 Critic 连续拒绝直至重试预算耗尽。
// Rejections 保留每次拒绝原因，供诊断。
type ValidationExhaustedError struct {
	Retries    int
	Rejections []string
}

func (e *ValidationExhaustedError) Error() string {
	return "quality gate exhausted retries"
}
