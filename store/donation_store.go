package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/novojourney/novo/models"
)

// Donation statuses. Other values are stored as the gateway reports them.
const (
	DonationInitiated = "INITIATED"
	DonationPaid      = "SUCCESS"
)

// DonationStore records gateway transactions started from the donate page.
type DonationStore struct {
	db *gorm.DB
}

func NewDonationStore(db *gorm.DB) *DonationStore {
	return &DonationStore{db: db}
}

// Record stores a newly initiated donation. A repeated reference number overwrites the row.
func (s *DonationStore) Record(ctx context.Context, d *models.Donation) error {
	if d.Status == "" {
		d.Status = DonationInitiated
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(d).Error
	return classify(err)
}

// Get loads a donation by gateway reference.
func (s *DonationStore) Get(ctx context.Context, reference string) (*models.Donation, error) {
	var d models.Donation
	if err := s.db.WithContext(ctx).First(&d, "reference_number = ?", reference).Error; err != nil {
		return nil, classify(err)
	}
	return &d, nil
}

// UpdateStatus sets the gateway-reported status. Unknown references return ErrNotFound.
func (s *DonationStore) UpdateStatus(ctx context.Context, reference, status string) error {
	res := s.db.WithContext(ctx).Model(&models.Donation{}).
		Where("reference_number = ?", reference).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Totals sums donations by status.
func (s *DonationStore) Totals(ctx context.Context, status string) (count int64, amount float64, err error) {
	var row struct {
		N   int64
		Sum float64
	}
	err = s.db.WithContext(ctx).Model(&models.Donation{}).
		Select("COUNT(*) AS n, COALESCE(SUM(amount), 0) AS sum").
		Where("status = ?", status).
		Scan(&row).Error
	return row.N, row.Sum, classify(err)
}
