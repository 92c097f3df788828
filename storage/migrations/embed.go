// Package migrations 内嵌的数据库迁移脚本
package migrations

import "embed"

// FS 全部迁移脚本，按文件名顺序执行
//
//go:embed *.sql
var FS embed.FS
