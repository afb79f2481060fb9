package gormstore

import (
	"context"
	"errors"
	"time"

	"okxbot/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SavePosition 按 (instrument, timeframe, strategy) upsert 仓位状态。
func (s *GormStore) SavePosition(ctx context.Context, st types.PositionState) error {
	if err := s.ready(); err != nil {
		return err
	}
	model := newPositionStateModel(st)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instrument"}, {Name: "timeframe"}, {Name: "strategy"}},
			DoUpdates: clause.AssignmentColumns([]string{"side", "order_id", "active", "updated_at"}),
		}).
		Create(&model).Error
}

// GetPosition 未找到时返回 (nil, nil)。
func (s *GormStore) GetPosition(ctx context.Context, key types.PositionKey) (*types.PositionState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var m positionStateModel
	err := s.db.WithContext(ctx).
		Where("instrument = ? AND timeframe = ? AND strategy = ?", key.Instrument, key.Timeframe, key.Strategy).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := positionStateModelToState(m)
	return &st, nil
}

// ListActivePositions 返回 active=true 的条目，最近更新的在前。
func (s *GormStore) ListActivePositions(ctx context.Context) ([]types.PositionState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var models []positionStateModel
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("updated_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]types.PositionState, 0, len(models))
	for _, m := range models {
		out = append(out, positionStateModelToState(m))
	}
	return out, nil
}

func newPositionStateModel(st types.PositionState) positionStateModel {
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return positionStateModel{
		Instrument:    st.Key.Instrument,
		Timeframe:     st.Key.Timeframe,
		Strategy:      st.Key.Strategy,
		Side:          string(st.Direction()),
		OrderID:       st.OrderID,
		Active:        st.Status,
		UpdatedAtUnix: updated.UnixMilli(),
	}
}

func positionStateModelToState(m positionStateModel) types.PositionState {
	st := types.PositionState{
		Key:       types.PositionKey{Instrument: m.Instrument, Timeframe: m.Timeframe, Strategy: m.Strategy},
		OrderID:   m.OrderID,
		Status:    m.Active,
		Strategy:  m.Strategy,
		UpdatedAt: millisToTime(m.UpdatedAtUnix),
	}
	if m.Side != "" {
		st.State = types.SidePtr(types.Side(m.Side))
	}
	return st
}
