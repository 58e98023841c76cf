package equipment

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"notebook-lending/internal/platform/apperr"
)

// 1回の印刷で流し込める最大行数
const MaxLabelCount = 200

type LabelsRequest struct {
	IDs []int64 `json:"ids" binding:"required,min=1,dive,gt=0"`
}

// ListByIDs returns the requested rows ordered by asset tag. Unknown ids are
// skipped.
func (s *Store) ListByIDs(ctx context.Context, ids []int64) ([]*Equipment, error) {
	where, args, err := sq.Eq{"id": ids}.ToSql()
	if err != nil {
		return nil, err
	}
	return s.query(ctx, selectEquipment+` WHERE `+where+` ORDER BY asset_tag`, args...)
}

// Labels writes one CSV row per notebook (tag, model, serial, brand) for
// the label printer software. The file is Windows-1252 encoded, which is
// what those tools import; characters outside it become '?'.
func (s *Service) Labels(ctx context.Context, ids []int64, w io.Writer) (int, error) {
	if len(ids) == 0 {
		return 0, apperr.InvalidField("ids", "at least one id is required")
	}
	if len(ids) > MaxLabelCount {
		return 0, apperr.InvalidField("ids", "at most "+strconv.Itoa(MaxLabelCount)+" labels per request")
	}
	list, err := s.store.ListByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, apperr.NotFound("no equipment matches the given ids")
	}

	tw := transform.NewWriter(w, charmap.Windows1252.NewEncoder())
	cw := csv.NewWriter(tw)
	cw.UseCRLF = true
	for _, e := range list {
		record := []string{e.AssetTag, e.Model, e.SerialNumber, e.Brand}
		for i := range record {
			record[i] = toCodePage(record[i])
		}
		if err := cw.Write(record); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	if err := tw.Close(); err != nil {
		return 0, err
	}
	return len(list), nil
}

// toCodePage replaces runes Windows-1252 cannot hold with '?'.
func toCodePage(s string) string {
	return strings.Map(func(r rune) rune {
		if _, ok := charmap.Windows1252.EncodeRune(r); ok {
			return r
		}
		return '?'
	}, s)
}
