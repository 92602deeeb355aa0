package council

import (
	"encoding/json"

	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/internal/model"
	"github.com/samueldervishii/llm-council/internal/utils"
)

// ParseRankings 解析评审输出
// 截取第一个 '[' 到最后一个 ']'；没有数组时返回空列表，解析失败时保留原文
func ParseRankings(content string) []model.Ranking {
	raw, ok := utils.ExtractJSONArray(content)
	if !ok {
		return []model.Ranking{}
	}

	var rankings []model.Ranking
	if err := json.Unmarshal([]byte(raw), &rankings); err != nil {
		klog.V(6).Infof("评审输出解析失败，保留原文: error=%v", err)
		return []model.Ranking{model.RawEntry(content)}
	}
	if rankings == nil {
		rankings = []model.Ranking{}
	}
	return rankings
}

// ToPeerReview 把评审调用结果转换为 PeerReview，调用失败记为 error 条目
func ToPeerReview(result CallResult) model.PeerReview {
	review := model.PeerReview{ReviewerModel: result.Model.Name}
	if result.Err != nil {
		review.Rankings = []model.Ranking{model.ErrorEntry(result.Err.Error())}
		return review
	}
	review.Rankings = ParseRankings(result.Content)
	return review
}
