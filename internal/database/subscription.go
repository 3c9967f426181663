package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bitzomax/internal/mediatypes"
)

// MonthlyPrice is the price of the monthly plan in euros.
const MonthlyPrice = 6.0

// GetSubscription returns the viewer's subscription. A subscription whose
// end date has passed is reported inactive. ErrNotFound means the viewer
// never subscribed.
func (d *Database) GetSubscription(ctx context.Context) (mediatypes.SubscriptionDetails, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_subscription", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var s mediatypes.SubscriptionDetails
	var startDate, endDate int64
	var autoRenew, active int
	err = d.db.QueryRowContext(ctx, `
		SELECT plan, start_date, end_date, auto_renew, price, active FROM subscription WHERE id = 1
	`).Scan(&s.Plan, &startDate, &endDate, &autoRenew, &s.Price, &active)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return s, err
	}
	if err != nil {
		return s, err
	}

	s.StartDate = time.Unix(startDate, 0).UTC()
	s.EndDate = time.Unix(endDate, 0).UTC()
	s.AutoRenew = autoRenew != 0
	s.Active = active != 0 && s.EndDate.After(d.now())
	return s, nil
}

// IsSubscribed reports whether the viewer has an active subscription.
func (d *Database) IsSubscribed(ctx context.Context) (bool, error) {
	s, err := d.GetSubscription(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.Active, nil
}

// Subscribe starts a one-month plan from now, replacing any previous one.
func (d *Database) Subscribe(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("subscribe", start, err) }()

	now := d.now().UTC().Truncate(time.Second)
	end := now.AddDate(0, 1, 0)

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO subscription (id, plan, start_date, end_date, auto_renew, price, active)
		VALUES (1, ?, ?, ?, 1, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			plan = excluded.plan,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			auto_renew = excluded.auto_renew,
			price = excluded.price,
			active = 1
	`, mediatypes.PlanMonthly, now.Unix(), end.Unix(), MonthlyPrice)
	return err
}

// CancelSubscription ends the subscription immediately.
func (d *Database) CancelSubscription(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("cancel_subscription", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "UPDATE subscription SET active = 0, auto_renew = 0 WHERE id = 1")
	return err
}
