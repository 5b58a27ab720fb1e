// Copyright (c) ResearchFlow Authors.
// Licensed under the MIT License.

// Package config 提供 ResearchFlow 的统一配置加载。
// 优先级: 默认值 → YAML 文件 → 环境变量。
package config
