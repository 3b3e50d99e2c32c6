package presale

import (
	"sort"
	"time"

	"github.com/mmeshcher/wusle-presale/internal/model"
)

// MarkerStatus описывает положение этапа относительно текущего.
type MarkerStatus string

const (
	MarkerCompleted MarkerStatus = "completed"
	MarkerCurrent   MarkerStatus = "current"
	MarkerUpcoming  MarkerStatus = "upcoming"
)

// Marker — отметка этапа на шкале прогресса. Position выражает накопленную
// цель предыдущих этапов в процентах от общей цели пресейла.
type Marker struct {
	StageNumber int          `json:"stageNumber"`
	Position    float64      `json:"position"`
	Status      MarkerStatus `json:"status"`
}

// Progress — агрегированный прогресс сбора по всем этапам.
type Progress struct {
	TotalCap    float64  `json:"totalCap"`
	RaisedSoFar float64  `json:"raisedSoFar"`
	Fraction    float64  `json:"fraction"`
	Markers     []Marker `json:"markers"`
}

// Aggregate вычисляет прогресс сбора: завершённые этапы учитываются полной
// целью, текущий — фактически собранной суммой. Fraction всегда в [0, 100],
// в том числе при аномалии raised > target. Пустой список этапов даёт
// нулевой прогресс без деления на ноль.
//
// Если current == nil и все окна уже в прошлом, пресейл считается завершённым:
// все отметки completed, собранная сумма равна сумме целей.
func Aggregate(now time.Time, stages []model.Stage, current *model.Stage) Progress {
	ordered := make([]model.Stage, len(stages))
	copy(ordered, stages)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StageNumber < ordered[j].StageNumber
	})

	p := Progress{Markers: make([]Marker, 0, len(ordered))}
	for _, st := range ordered {
		p.TotalCap += st.Target
	}

	allEnded := current == nil && len(ordered) > 0
	if allEnded {
		for _, st := range ordered {
			if now.Before(st.EndTime) {
				allEnded = false
				break
			}
		}
	}

	cumulative := 0.0
	for _, st := range ordered {
		position := 0.0
		if p.TotalCap > 0 {
			position = cumulative / p.TotalCap * 100
		}

		status := MarkerUpcoming
		switch {
		case current != nil && st.StageNumber < current.StageNumber:
			status = MarkerCompleted
		case current != nil && st.StageNumber == current.StageNumber:
			status = MarkerCurrent
		case allEnded:
			status = MarkerCompleted
		}

		p.Markers = append(p.Markers, Marker{
			StageNumber: st.StageNumber,
			Position:    position,
			Status:      status,
		})
		cumulative += st.Target
	}

	switch {
	case current != nil:
		for _, st := range ordered {
			if st.StageNumber < current.StageNumber {
				p.RaisedSoFar += st.Target
			}
		}
		p.RaisedSoFar += current.Raised
	case allEnded:
		p.RaisedSoFar = p.TotalCap
	}

	if p.TotalCap > 0 {
		p.Fraction = clamp(p.RaisedSoFar/p.TotalCap*100, 0, 100)
	}

	return p
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
