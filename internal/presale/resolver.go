// Package presale содержит чистые вычисления над этапами пресейла:
// определение текущего этапа, агрегацию прогресса сбора и конвертацию курса.
package presale

import (
	"time"

	"github.com/mmeshcher/wusle-presale/internal/model"
)

// ResolveStage возвращает этап, окно [StartTime, EndTime) которого содержит now.
// Если активного этапа нет — ближайший будущий по времени старта.
// Если нет и будущих — nil; отсутствие этапа является нормальным состоянием,
// а не ошибкой.
//
// При пересечении окон (данные нарушают соглашение о непрерывности)
// выбирается этап с наименьшим номером.
func ResolveStage(now time.Time, stages []model.Stage) *model.Stage {
	var active *model.Stage
	for i := range stages {
		st := &stages[i]
		if !now.Before(st.StartTime) && now.Before(st.EndTime) {
			if active == nil || st.StageNumber < active.StageNumber {
				active = st
			}
		}
	}
	if active != nil {
		return active
	}

	var upcoming *model.Stage
	for i := range stages {
		st := &stages[i]
		if !st.StartTime.After(now) {
			continue
		}
		if upcoming == nil || st.StartTime.Before(upcoming.StartTime) {
			upcoming = st
		}
	}
	return upcoming
}

// IsActive сообщает, содержит ли окно этапа момент now.
func IsActive(now time.Time, st *model.Stage) bool {
	return st != nil && !now.Before(st.StartTime) && now.Before(st.EndTime)
}
