// Copyright (c) ResearchFlow Authors.
// Licensed under the MIT License.

/*
Package research 实现自主市场调研流水线。

# 概述

一条调研流水线由五个阶段组成，共享同一个 [State] 值并按固定顺序推进：

	Planner → Researcher → Analyst → Critic → Synthesizer

Critic 是质量闸门：分析未通过时，带着拒绝原因回到 Analyst 重做，
重试次数由 MaxRetries 约束（默认 2）；耗尽预算则整次运行以
[ValidationExhaustedError] 失败，绝不会用被拒绝的分析合成报告。

# 入口

	pipe, err := research.New(provider, research.DefaultConfig())
	result, err := pipe.Run(ctx, "Compare X vs Y adoption in 2025")

进度事件通过 workflow.EventSink 推送，完整的转移历史随 [Result] 返回。
*/
package research
