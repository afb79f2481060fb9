// Package redistier 是状态存储的缓存层，基于 go-zero redis。
package redistier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"okxbot/internal/store"
	"okxbot/internal/types"

	"github.com/zeromicro/go-zero/core/stores/redis"
)

// Tier 在 hash store.PositionsKey 中以 key.String() 为字段保存 JSON 编码的 PositionState。
type Tier struct {
	rds *redis.Redis
}

// Config 对应 redis 配置段。
type Config struct {
	Host string
	Pass string
	Type string
}

// New 连接 redis；连接失败直接返回错误。
func New(cfg Config) (*Tier, error) {
	conf := redis.RedisConf{
		Host: strings.TrimSpace(cfg.Host),
		Pass: cfg.Pass,
		Type: cfg.Type,
	}
	if conf.Type == "" {
		conf.Type = redis.NodeType
	}
	rds, err := redis.NewRedis(conf)
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", conf.Host, err)
	}
	return &Tier{rds: rds}, nil
}

var _ store.FastTier = (*Tier)(nil)

// NewFromClient wraps an existing client.
func NewFromClient(rds *redis.Redis) *Tier {
	return &Tier{rds: rds}
}

// GetPosition 未命中返回 (nil, nil)。
func (t *Tier) GetPosition(ctx context.Context, field string) (*types.PositionState, error) {
	val, err := t.rds.HgetCtx(ctx, store.PositionsKey, field)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(val) == "" {
		return nil, nil
	}
	var st types.PositionState
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", field, err)
	}
	return &st, nil
}

func (t *Tier) PutPosition(ctx context.Context, field string, st types.PositionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return t.rds.HsetCtx(ctx, store.PositionsKey, field, string(data))
}

// ListPositions 返回 hash 中的全部条目；无法解码的条目跳过。
func (t *Tier) ListPositions(ctx context.Context) ([]types.PositionState, error) {
	all, err := t.rds.HgetallCtx(ctx, store.PositionsKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]types.PositionState, 0, len(all))
	for _, raw := range all {
		var st types.PositionState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (t *Tier) SetString(ctx context.Context, key, value string) error {
	return t.rds.SetCtx(ctx, key, value)
}

// GetString 键不存在时返回空串。
func (t *Tier) GetString(ctx context.Context, key string) (string, error) {
	val, err := t.rds.GetCtx(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Ping 用于健康检查。
func (t *Tier) Ping(ctx context.Context) bool {
	return t.rds.PingCtx(ctx)
}
