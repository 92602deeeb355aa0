package council

import (
	"github.com/duke-git/lancet/v2/slice"
	"github.com/samueldervishii/llm-council/internal/model"
)

// Roster 议员名单与主席，构造后只读
type Roster struct {
	Models   []model.ModelInfo
	Chairman model.ModelInfo
}

// NewRoster 复制一份名单，避免外部修改
func NewRoster(models []model.ModelInfo, chairman model.ModelInfo) Roster {
	return Roster{
		Models:   append([]model.ModelInfo(nil), models...),
		Chairman: chairman,
	}
}

// ActiveCouncil formal 模式参与的议员
// selected 为空时返回全部议员；未知 ID 被忽略，全部未知时同样返回全部议员
func (r Roster) ActiveCouncil(selected []string) []model.ModelInfo {
	if len(selected) == 0 {
		return r.Models
	}
	active := slice.Filter(r.Models, func(_ int, m model.ModelInfo) bool {
		return slice.Contain(selected, m.ID)
	})
	if len(active) == 0 {
		return r.Models
	}
	return active
}

// ChatParticipants chat 模式参与者
// 默认是全部议员加主席；selected 非空时按名单顺序筛选，主席可以被选中
func (r Roster) ChatParticipants(selected []string) []model.ModelInfo {
	all := make([]model.ModelInfo, 0, len(r.Models)+1)
	all = append(all, r.Models...)
	if r.Chairman.ID != "" && !r.isCouncilMember(r.Chairman.ID) {
		all = append(all, r.Chairman)
	}
	if len(selected) == 0 {
		return all
	}
	participants := slice.Filter(all, func(_ int, m model.ModelInfo) bool {
		return slice.Contain(selected, m.ID)
	})
	if len(participants) == 0 {
		return all
	}
	return participants
}

func (r Roster) isCouncilMember(id string) bool {
	return slice.ContainBy(r.Models, func(m model.ModelInfo) bool {
		return m.ID == id
	})
}
