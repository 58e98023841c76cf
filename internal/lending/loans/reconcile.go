package loans

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconcile repairs equipment whose status disagrees with the loan table:
// loaned items without an open loan go back to available, and items held by
// an open loan are marked loaned. Each repair re-checks the condition in
// its own write.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	res := &ReconcileResult{Released: []int64{}, Marked: []int64{}}
	now := s.clock.Now()

	stranded, err := s.store.StrandedLoaned(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range stranded {
		ok, err := s.store.RepairStranded(ctx, id, now)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Released = append(res.Released, id)
			s.log.Warn("reconcile: released equipment without open loan", zap.Int64("equipment_id", id))
		}
	}

	unmarked, err := s.store.UnmarkedOnLoan(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range unmarked {
		ok, err := s.store.RepairUnmarked(ctx, id, now)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Marked = append(res.Marked, id)
			s.log.Warn("reconcile: marked equipment held by open loan", zap.Int64("equipment_id", id))
		}
	}

	s.metrics.ReconcileRepaired(len(res.Released) + len(res.Marked))
	return res, nil
}

// RunReconciler runs Reconcile every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("reconcile failed", zap.Error(err))
			}
		}
	}
}
