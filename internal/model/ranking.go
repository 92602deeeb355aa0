package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RankingKind 排名记录的变体类型
type RankingKind string

const (
	RankingKindRank  RankingKind = "rank"  // {response_num, rank, reasoning}
	RankingKindRaw   RankingKind = "raw"   // {raw_response}，评审输出无法解析
	RankingKindError RankingKind = "error" // {error}，评审调用失败
)

// Ranking 评审排名记录（带标签的联合类型）
// 序列化时保持三种历史格式，分析器只消费 RankingKindRank
type Ranking struct {
	Kind        RankingKind
	ResponseNum int
	Rank        int
	Reasoning   string
	RawResponse string
	Error       string
}

// RankEntry 构造结构化排名
func RankEntry(responseNum, rank int, reasoning string) Ranking {
	return Ranking{Kind: RankingKindRank, ResponseNum: responseNum, Rank: rank, Reasoning: reasoning}
}

// RawEntry 构造原文回退记录
func RawEntry(raw string) Ranking {
	return Ranking{Kind: RankingKindRaw, RawResponse: raw}
}

// ErrorEntry 构造失败记录
func ErrorEntry(msg string) Ranking {
	return Ranking{Kind: RankingKindError, Error: msg}
}

// IsRank 是否为可用于统计的结构化排名
func (r Ranking) IsRank() bool {
	return r.Kind == RankingKindRank
}

type rankPayload struct {
	ResponseNum int    `json:"response_num"`
	Rank        int    `json:"rank"`
	Reasoning   string `json:"reasoning"`
}

type rawPayload struct {
	RawResponse string `json:"raw_response"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func (r Ranking) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RankingKindRaw:
		return json.Marshal(rawPayload{RawResponse: r.RawResponse})
	case RankingKindError:
		return json.Marshal(errorPayload{Error: r.Error})
	default:
		return json.Marshal(rankPayload{ResponseNum: r.ResponseNum, Rank: r.Rank, Reasoning: r.Reasoning})
	}
}

// UnmarshalJSON 宽松解析：不符合任何结构的条目降级为原文记录，从不返回错误
func (r *Ranking) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		*r = RawEntry(strings.TrimSpace(string(data)))
		return nil
	}

	if v, ok := fields["error"]; ok {
		var msg string
		if json.Unmarshal(v, &msg) == nil {
			*r = ErrorEntry(msg)
			return nil
		}
	}
	if v, ok := fields["raw_response"]; ok {
		var raw string
		if json.Unmarshal(v, &raw) == nil {
			*r = RawEntry(raw)
			return nil
		}
	}

	num, okNum := intField(fields, "response_num")
	rank, okRank := intField(fields, "rank")
	if okNum && okRank {
		var reasoning string
		if v, ok := fields["reasoning"]; ok {
			_ = json.Unmarshal(v, &reasoning)
		}
		*r = RankEntry(num, rank, reasoning)
		return nil
	}

	*r = RawEntry(string(data))
	return nil
}

// intField 读取整数字段，兼容 2、2.0 和 "2"
func intField(fields map[string]json.RawMessage, key string) (int, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		if f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
