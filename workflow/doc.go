// Copyright (c) ResearchFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供有界状态机式的工作流编排引擎。

# 概述

workflow 包实现了 ResearchFlow 的执行引擎：节点按显式转移表推进，
支持静态边、条件边（Router 决策）以及带访问预算的回边。与一般 DAG
引擎不同，这里允许受控的环——每个节点都有访问预算（默认 1 次），
循环必须显式声明预算上限，从而在结构上保证终止。

# 核心接口与类型

  - Graph[S]     — 图构建器：AddNode / AddEdge / AddConditionalEdge /
    SetEntryPoint / WithMaxVisits，Compile 时做结构校验
  - Runner[S]    — 编译后的执行器，Execute 驱动状态推进并记录历史
  - NodeFunc[S]  — 节点函数 func(ctx, state) (state, error)
  - RouteFunc[S] — 条件路由函数，返回下一个节点（或 End）
  - History      — 全量转移历史（每次转移的起止时间、状态、错误）
  - EventSink    — 转移事件流（append-only，供 UI / 观测消费）

# 终止保证

Execute 在以下情况之一返回：所有边走到 End、某节点返回错误、
访问预算耗尽、或 ctx 被取消。状态值 S 按值在节点间传递，
每次转移天然形成一份快照。
*/
package workflow
