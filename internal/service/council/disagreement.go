package council

import (
	"math"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/samueldervishii/llm-council/internal/model"
)

// disagreementThreshold 分数超过该值视为存在分歧
const disagreementThreshold = 0.5

// ValidResponses 过滤掉失败的回答，顺序不变
func ValidResponses(responses []model.ModelResponse) []model.ModelResponse {
	return slice.Filter(responses, func(_ int, r model.ModelResponse) bool {
		return !r.Failed()
	})
}

// AnalyzeDisagreement 根据互评排名计算每个有效回答的分歧程度
// 有效回答少于 2 个或没有评审时返回空
// 评审中的 response_num 对应有效回答列表中从 1 开始的位置
func AnalyzeDisagreement(responses []model.ModelResponse, reviews []model.PeerReview) []model.DisagreementRecord {
	valid := ValidResponses(responses)
	if len(valid) < 2 || len(reviews) == 0 {
		return []model.DisagreementRecord{}
	}

	n := len(valid)
	ranks := make([][]int, n)
	for _, review := range reviews {
		for _, r := range review.Rankings {
			if !r.IsRank() || r.ResponseNum < 1 || r.ResponseNum > n {
				continue
			}
			ranks[r.ResponseNum-1] = append(ranks[r.ResponseNum-1], r.Rank)
		}
	}

	records := make([]model.DisagreementRecord, 0, n)
	for i, resp := range valid {
		records = append(records, disagreementRecord(resp, ranks[i], n))
	}
	return records
}

func disagreementRecord(resp model.ModelResponse, ranks []int, n int) model.DisagreementRecord {
	record := model.DisagreementRecord{
		ModelID:       resp.ModelID,
		ModelName:     resp.ModelName,
		RanksReceived: ranks,
	}
	if record.RanksReceived == nil {
		record.RanksReceived = []int{}
	}

	switch len(ranks) {
	case 0:
		return record
	case 1:
		record.MeanRank = float64(ranks[0])
		return record
	}

	mean, stdev, spread := rankStats(ranks)
	record.MeanRank = math.Round(mean*100) / 100

	if n > 1 {
		maxSpread := float64(n-1) / 2
		record.DisagreementScore = math.Min(stdev/maxSpread, 1.0)
	}
	record.HasDisagreement = record.DisagreementScore > disagreementThreshold ||
		float64(spread) >= float64(n)/2
	return record
}

// rankStats 返回均值、总体标准差以及最大最小值之差
func rankStats(ranks []int) (float64, float64, int) {
	lo, hi := ranks[0], ranks[0]
	sum := 0.0
	for _, r := range ranks {
		sum += float64(r)
		lo = min(lo, r)
		hi = max(hi, r)
	}
	mean := sum / float64(len(ranks))

	variance := 0.0
	for _, r := range ranks {
		d := float64(r) - mean
		variance += d * d
	}
	variance /= float64(len(ranks))

	return mean, math.Sqrt(variance), hi - lo
}
