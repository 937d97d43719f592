package pg

import (
	"context"
	"encoding/json"

	"palengke.dev/internal/ledger"
	"palengke.dev/internal/recon"
)

var _ recon.Store = (*Store)(nil)

func (s *Store) SaveReport(ctx context.Context, r recon.Report) error {
	mismatches, err := json.Marshal(r.Mismatches)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into discrepancy_reports(id, run_at, window_from, window_to, mismatches)
		values ($1,$2,$3,$4,$5)
	`, r.ID, r.RunAt, r.Window.From, r.Window.To, mismatches)
	return err
}

func (s *Store) ListReports(ctx context.Context, w ledger.Window) ([]recon.Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, run_at, window_from, window_to, mismatches
		from discrepancy_reports
		where run_at >= $1 and run_at < $2
		order by run_at asc
	`, w.From, w.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []recon.Report
	for rows.Next() {
		var r recon.Report
		var mismatches []byte
		if err := rows.Scan(&r.ID, &r.RunAt, &r.Window.From, &r.Window.To, &mismatches); err != nil {
			return nil, err
		}
		if len(mismatches) > 0 {
			if err := json.Unmarshal(mismatches, &r.Mismatches); err != nil {
				return nil, err
			}
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
