package tmdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/John-Robertt/movieroi/internal/domain"
)

// EncodeDump 把原始记录编码为 JSON 数组快照（TMDB 详情形状，cast 位于顶层）。
func EncodeDump(movies []domain.RawMovie) ([]byte, error) {
	out := make([]movieJSON, 0, len(movies))
	for _, m := range movies {
		out = append(out, fromRaw(m))
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ParseDump 解析 EncodeDump（或同形状的外部导出）生成的快照。
// 顶层不是 JSON 数组（包括 null）时返回 malformed_input；
// 单条记录解析失败不报错，按缺少 id/title 的空记录交给 transform 丢弃。
func ParseDump(b []byte) ([]domain.RawMovie, error) {
	var in []json.RawMessage
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, malformedDump(err)
	}
	if in == nil {
		return nil, malformedDump(errors.New("顶层为 null"))
	}
	out := make([]domain.RawMovie, 0, len(in))
	for _, el := range in {
		var m movieJSON
		if err := json.Unmarshal(el, &m); err != nil {
			out = append(out, domain.RawMovie{})
			continue
		}
		out = append(out, m.toRaw())
	}
	return out, nil
}

func malformedDump(err error) error {
	return &domain.Error{
		Code: domain.ErrCodeMalformedInput,
		Op:   "parse raw snapshot",
		Err:  fmt.Errorf("快照不是电影记录数组：%w", err),
	}
}
