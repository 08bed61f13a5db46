package kiosk

import (
	"sort"
	"strconv"

	"Gin_postgres_redis_gear_kiosk/models"
)

type GearInfo struct {
	Gear      models.Gear `json:"gear"`
	Available bool        `json:"available"`
	Borrowed  bool        `json:"borrowed"`
	Label     string      `json:"label"`
}

// lessGear 先按类型（气瓶、调节器、BCD），再按名字：纯数字名字按数值排在前面
func lessGear(a, b models.Gear) bool {
	if ra, rb := a.Type.Rank(), b.Type.Rank(); ra != rb {
		return ra < rb
	}
	na, errA := strconv.Atoi(a.Name)
	nb, errB := strconv.Atoi(b.Name)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a.Name < b.Name
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a.Name < b.Name
}

func sortGearInfos(infos []GearInfo) {
	sort.SliceStable(infos, func(i, j int) bool { return lessGear(infos[i].Gear, infos[j].Gear) })
}
