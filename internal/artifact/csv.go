package artifact

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/John-Robertt/movieroi/internal/domain"
)

// ContentType 是上传到对象存储时使用的 MIME 类型。
const ContentType = "text/csv; charset=utf-8"

// Columns 是 CSV 的固定列顺序（dashboard 依赖该契约）。
var Columns = []string{
	"id", "title", "release_date", "revenue", "budget", "roi",
	"genres", "cast_1", "cast_2", "cast_3", "poster_url",
}

// ExtendedColumns 追加在 Columns 之后；不改变基础列的位置。
var ExtendedColumns = []string{
	"vote_average", "overview",
	"cast_1_image_url", "cast_2_image_url", "cast_3_image_url",
}

// EncodeCSV 把 rows 编码为带表头的 CSV。
//
// - 数值一律输出为普通十进制文本（不使用科学计数法）
// - 空的 cast 槽位输出为空串
// - extended=true 时追加 ExtendedColumns
func EncodeCSV(rows []domain.FlatRow, extended bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string(nil), Columns...)
	if extended {
		header = append(header, ExtendedColumns...)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	rec := make([]string, 0, len(header))
	for i := range rows {
		r := &rows[i]
		rec = rec[:0]
		rec = append(rec,
			strconv.FormatInt(r.ID, 10),
			r.Title,
			r.ReleaseDate,
			strconv.FormatInt(r.Revenue, 10),
			strconv.FormatInt(r.Budget, 10),
			formatFloat(r.ROI),
			r.Genres,
			r.Cast[0], r.Cast[1], r.Cast[2],
			r.PosterURL,
		)
		if extended {
			rec = append(rec,
				formatFloat(r.VoteAverage),
				r.Overview,
				r.CastImages[0], r.CastImages[1], r.CastImages[2],
			)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// formatFloat 输出最短的可往返十进制表示，例如 1、0.5、5.172839445。
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
