package store

import "strings"

// PositionsKey 是缓存层保存仓位列表的 hash 名。
const PositionsKey = "positions"

// StateKey 返回某个品种最近一次信号快照的缓存键。
func StateKey(instrument string) string {
	return "state_" + strings.ToUpper(strings.TrimSpace(instrument))
}
