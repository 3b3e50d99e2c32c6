package presale

import (
	"time"

	"github.com/mmeshcher/wusle-presale/internal/model"
)

// StageView — представление этапа в снимке состояния пресейла.
type StageView struct {
	StageNumber  int       `json:"stage"`
	Target       float64   `json:"target"`
	Raised       float64   `json:"raised"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Rate         float64   `json:"rate"`
	ListingPrice float64   `json:"listingPrice"`
}

// Snapshot — полное состояние пресейла, которое отдаёт REST-эндпоинт
// и рассылает push-канал. CurrentStage равен 0, если этап не определён.
type Snapshot struct {
	Stages            []StageView `json:"stages"`
	CurrentStage      int         `json:"currentStage"`
	EndsAt            *time.Time  `json:"endsAt,omitempty"`
	WusleRate         float64     `json:"wusleRate"`
	ListingPrice      float64     `json:"listingPrice"`
	TotalWusleSupply  string      `json:"totalWusleSupply"`
	LiquidityAtLaunch string      `json:"liquidityAtLaunch"`
	Progress          Progress    `json:"progress"`
}

// BuildSnapshot собирает снимок состояния пресейла на момент now.
// Поля supply и liquidity берутся из конфигурации, а не вычисляются.
func BuildSnapshot(now time.Time, stages []model.Stage, supply, liquidity string) Snapshot {
	current := ResolveStage(now, stages)

	snap := Snapshot{
		Stages:            make([]StageView, 0, len(stages)),
		WusleRate:         DefaultRate,
		ListingPrice:      DefaultListingPrice,
		TotalWusleSupply:  supply,
		LiquidityAtLaunch: liquidity,
		Progress:          Aggregate(now, stages, current),
	}

	for _, m := range snap.Progress.Markers {
		for _, st := range stages {
			if st.StageNumber == m.StageNumber {
				snap.Stages = append(snap.Stages, StageView{
					StageNumber:  st.StageNumber,
					Target:       st.Target,
					Raised:       st.Raised,
					StartTime:    st.StartTime,
					EndTime:      st.EndTime,
					Rate:         st.Rate,
					ListingPrice: st.ListingPrice,
				})
				break
			}
		}
	}

	if current != nil {
		snap.CurrentStage = current.StageNumber
		endsAt := current.EndTime
		snap.EndsAt = &endsAt
		snap.WusleRate = current.Rate
		snap.ListingPrice = current.ListingPrice
	}

	return snap
}
