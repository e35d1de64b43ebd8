package ingestion

import "github.com/mr1hm/go-shelter-alerts/internal/models"

// The live and history feeds number their categories independently; the same
// code means different things in each. Keep the tables apart.

var liveCategories = map[int]models.AlertType{
	1:   models.AlertTypeMissiles,
	3:   models.AlertTypeEarthquake,
	4:   models.AlertTypeRadiological,
	5:   models.AlertTypeTsunami,
	6:   models.AlertTypeHostileAircraft,
	7:   models.AlertTypeHazardousMaterials,
	10:  models.AlertTypeNewsFlash,
	13:  models.AlertTypeTerroristInfiltration,
	101: models.AlertTypeDrill,
	102: models.AlertTypeDrill,
	103: models.AlertTypeDrill,
	104: models.AlertTypeDrill,
	105: models.AlertTypeDrill,
	106: models.AlertTypeDrill,
	107: models.AlertTypeDrill,
}

var historyCategories = map[int]models.AlertType{
	1:  models.AlertTypeMissiles,
	2:  models.AlertTypeHostileAircraft,
	7:  models.AlertTypeEarthquake,
	9:  models.AlertTypeRadiological,
	10: models.AlertTypeTerroristInfiltration,
	11: models.AlertTypeTsunami,
	12: models.AlertTypeHazardousMaterials,
	13: models.AlertTypeEventEnded,
	14: models.AlertTypeNewsFlash,
}

const (
	historyDrillMin = 15
	historyDrillMax = 28
)

func mapLiveCategory(cat int) models.AlertType {
	if t, ok := liveCategories[cat]; ok {
		return t
	}
	return models.AlertTypeUnknown
}

func mapHistoryCategory(category int) models.AlertType {
	if t, ok := historyCategories[category]; ok {
		return t
	}
	if category >= historyDrillMin && category <= historyDrillMax {
		return models.AlertTypeDrill
	}
	return models.AlertTypeUnknown
}
