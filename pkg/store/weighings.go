package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"weighbot/models"
)

// LastWeight returns the current weight of the latest weighing of truck, or 0 when there is none.
func (s *Store) LastWeight(ctx context.Context, truck string) (float64, error) {
	return lastWeight(s.db.WithContext(ctx), truck)
}

func lastWeight(tx *gorm.DB, truck string) (float64, error) {
	var w models.Weighing
	err := tx.Where("truck_number = ?", strings.ToUpper(truck)).
		Order("created_at desc, id desc").
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.CurrentWeight, nil
}

// SaveWeighing stores w in one transaction: the previous weight and the
// difference are computed from the truck's latest weighing, and the vehicle
// row is created or advanced to the new reading. The vehicle row is locked
// first, so concurrent saves for one truck chain instead of sharing a
// previous weight.
func (s *Store) SaveWeighing(ctx context.Context, w *models.Weighing) error {
	w.TruckNumber = strings.ToUpper(strings.TrimSpace(w.TruckNumber))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v models.Vehicle
		if err := tx.Where(models.Vehicle{TruckNumber: w.TruckNumber}).FirstOrCreate(&v).Error; err != nil {
			return err
		}
		// sqlite ignores the locking clause; its single connection already serializes writers
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&v, v.ID).Error; err != nil {
			return err
		}
		prev, err := lastWeight(tx, w.TruckNumber)
		if err != nil {
			return err
		}
		w.PreviousWeight = prev
		w.WeightDifference = w.CurrentWeight - prev
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now()
		}
		if err := tx.Create(w).Error; err != nil {
			return err
		}
		at := w.CreatedAt
		return tx.Model(&v).Updates(map[string]any{
			"last_weight":      w.CurrentWeight,
			"last_station":     w.StationName,
			"last_weighing_at": &at,
		}).Error
	})
}

// DriverHistory returns the latest weighings reported from chatID.
func (s *Store) DriverHistory(ctx context.Context, chatID string, limit int) ([]models.Weighing, error) {
	return s.Weighings(ctx, WeighingFilter{DriverChatID: chatID, Limit: limit})
}

// VehicleHistory returns the latest weighings of truck.
func (s *Store) VehicleHistory(ctx context.Context, truck string, limit int) ([]models.Weighing, error) {
	return s.Weighings(ctx, WeighingFilter{Truck: truck, Limit: limit})
}

func (s *Store) Vehicle(ctx context.Context, truck string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := s.db.WithContext(ctx).Where("truck_number = ?", strings.ToUpper(strings.TrimSpace(truck))).First(&v).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

type WeighingFilter struct {
	Truck        string
	DriverChatID string
	From, To     time.Time
	Limit        int
}

// Weighings lists weighings newest first. Limit defaults to 50 and is capped at 5000.
func (s *Store) Weighings(ctx context.Context, f WeighingFilter) ([]models.Weighing, error) {
	q := s.db.WithContext(ctx).Model(&models.Weighing{})
	if f.Truck != "" {
		q = q.Where("truck_number = ?", strings.ToUpper(strings.TrimSpace(f.Truck)))
	}
	if f.DriverChatID != "" {
		q = q.Where("driver_chat_id = ?", f.DriverChatID)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To.UTC())
	}
	var out []models.Weighing
	err := q.Order("created_at desc, id desc").Limit(clampLimit(f.Limit, 50, 5000)).Find(&out).Error
	return out, err
}

// VehicleStats summarizes the weighings of one truck.
type VehicleStats struct {
	TruckNumber string
	Count       int64
	LastWeight  float64
	MinWeight   float64
	MaxWeight   float64
	AvgWeight   float64
	LastAt      *time.Time
}

func (s *Store) VehicleStats(ctx context.Context, truck string) (*VehicleStats, error) {
	truck = strings.ToUpper(strings.TrimSpace(truck))
	var agg struct {
		Count int64
		Min   float64
		Max   float64
		Avg   float64
	}
	err := s.db.WithContext(ctx).Model(&models.Weighing{}).
		Select("count(*) as count, coalesce(min(current_weight),0) as min, coalesce(max(current_weight),0) as max, coalesce(avg(current_weight),0) as avg").
		Where("truck_number = ?", truck).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	if agg.Count == 0 {
		return nil, ErrNotFound
	}
	st := &VehicleStats{TruckNumber: truck, Count: agg.Count, MinWeight: agg.Min, MaxWeight: agg.Max, AvgWeight: agg.Avg}
	if v, err := s.Vehicle(ctx, truck); err == nil {
		st.LastWeight = v.LastWeight
		st.LastAt = v.LastWeighingAt
	}
	return st, nil
}
