package inventory

import (
	"slices"
	"sort"

	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/google/uuid"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// UserEntry create/update 携带完整的一行；delete 只需要 id
type UserEntry struct {
	Op    Op     `json:"op"`
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required,max=255"`
	Phone string `json:"phone" validate:"max=64"`
}

type GearEntry struct {
	Op      Op              `json:"op"`
	ID      string          `json:"id"`
	Type    models.GearType `json:"type" validate:"required,geartype"`
	Name    string          `json:"name" validate:"required,max=120"`
	BarCode string          `json:"barcode" validate:"required,max=120"`
	Size    string          `json:"size" validate:"max=20"`
}

// Changeset 管理界面的一批改动，按顺序作用在当前数据上
type Changeset struct {
	Users []UserEntry `json:"users"`
	Gears []GearEntry `json:"gears"`
}

type Plan struct {
	Changes db.InventoryChanges
	Errors  []FieldError
}

// plan 把变更集作用到当前数据的副本上，校验结果集合，再与原数据比较得出真正需要写入的改动
func plan(v validateFunc, users []models.User, gears []models.Gear, cs Changeset) Plan {
	var p Plan
	p.Changes.CreateUsers, p.Changes.UpdateUsers, p.Changes.DeleteUserIDs = planUsers(v, users, cs.Users, &p.Errors)
	p.Changes.CreateGears, p.Changes.UpdateGears, p.Changes.DeleteGearIDs = planGears(v, gears, cs.Gears, &p.Errors)
	sort.SliceStable(p.Errors, func(i, j int) bool {
		a, b := p.Errors[i], p.Errors[j]
		if a.Entity != b.Entity {
			return a.Entity == entityUser
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Field < b.Field
	})
	return p
}

type validateFunc func(entity string, index int, id string, entry any) []FieldError

// entryID create 可以不带 id（自动生成）；带了就必须是 uuid
func entryID(op Op, id string) (string, bool) {
	if id == "" {
		if op == OpCreate {
			return uuid.NewString(), true
		}
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return id, false
	}
	return id, true
}

func planUsers(v validateFunc, current []models.User, entries []UserEntry, errs *[]FieldError) (create, update []models.User, del []string) {
	work := make(map[string]models.User, len(current))
	stored := make(map[string]bool, len(current))
	for _, u := range current {
		work[u.ID] = u
		stored[u.ID] = true
	}
	owner := map[string]int{}
	var created []string

	for i, e := range entries {
		id, ok := entryID(e.Op, e.ID)
		if !ok {
			rule := "uuid"
			if e.ID == "" {
				rule = "required"
			}
			*errs = append(*errs, newFieldError(entityUser, i, e.ID, "id", rule))
			continue
		}
		_, exists := work[id]
		switch e.Op {
		case OpCreate, OpUpdate:
			// 已入库的 id 即使本批先删除也不能再新建（主键冲突）
			if e.Op == OpCreate && (exists || stored[id]) {
				*errs = append(*errs, newFieldError(entityUser, i, id, "id", "exists"))
				continue
			}
			if e.Op == OpUpdate && !exists {
				*errs = append(*errs, newFieldError(entityUser, i, id, "id", "not_found"))
				continue
			}
			*errs = append(*errs, v(entityUser, i, id, e)...)
			u := work[id]
			if !exists && !slices.Contains(created, id) {
				created = append(created, id)
			}
			u.ID, u.Name, u.Phone = id, e.Name, e.Phone
			work[id] = u
			owner[id] = i
		case OpDelete:
			if !exists {
				*errs = append(*errs, newFieldError(entityUser, i, id, "id", "not_found"))
				continue
			}
			delete(work, id)
			delete(owner, id)
		default:
			*errs = append(*errs, newFieldError(entityUser, i, id, "op", "op"))
		}
	}

	byName := map[string][]string{}
	for id, u := range work {
		if u.Name != "" {
			byName[u.Name] = append(byName[u.Name], id)
		}
	}
	for _, ids := range byName {
		reportDuplicates(entityUser, "name", ids, owner, errs)
	}

	for _, u := range current {
		w, ok := work[u.ID]
		switch {
		case !ok:
			del = append(del, u.ID)
		case w.Name != u.Name || w.Phone != u.Phone:
			update = append(update, w)
		}
	}
	for _, id := range created {
		if u, ok := work[id]; ok {
			create = append(create, u)
		}
	}
	return create, update, del
}

func planGears(v validateFunc, current []models.Gear, entries []GearEntry, errs *[]FieldError) (create, update []models.Gear, del []string) {
	work := make(map[string]models.Gear, len(current))
	stored := make(map[string]bool, len(current))
	for _, g := range current {
		work[g.ID] = g
		stored[g.ID] = true
	}
	owner := map[string]int{}
	var created []string

	for i, e := range entries {
		id, ok := entryID(e.Op, e.ID)
		if !ok {
			rule := "uuid"
			if e.ID == "" {
				rule = "required"
			}
			*errs = append(*errs, newFieldError(entityGear, i, e.ID, "id", rule))
			continue
		}
		_, exists := work[id]
		switch e.Op {
		case OpCreate, OpUpdate:
			// 已入库的 id 即使本批先删除也不能再新建（主键冲突）
			if e.Op == OpCreate && (exists || stored[id]) {
				*errs = append(*errs, newFieldError(entityGear, i, id, "id", "exists"))
				continue
			}
			if e.Op == OpUpdate && !exists {
				*errs = append(*errs, newFieldError(entityGear, i, id, "id", "not_found"))
				continue
			}
			*errs = append(*errs, v(entityGear, i, id, e)...)
			g := work[id]
			if !exists && !slices.Contains(created, id) {
				created = append(created, id)
			}
			g.ID, g.Type, g.Name, g.BarCode, g.Size = id, e.Type, e.Name, e.BarCode, e.Size
			work[id] = g
			owner[id] = i
		case OpDelete:
			if !exists {
				*errs = append(*errs, newFieldError(entityGear, i, id, "id", "not_found"))
				continue
			}
			delete(work, id)
			delete(owner, id)
		default:
			*errs = append(*errs, newFieldError(entityGear, i, id, "op", "op"))
		}
	}

	byName := map[string][]string{}
	byCode := map[string][]string{}
	for id, g := range work {
		if g.Name != "" {
			key := string(g.Type) + "\x00" + g.Name
			byName[key] = append(byName[key], id)
		}
		if g.BarCode != "" {
			byCode[g.BarCode] = append(byCode[g.BarCode], id)
		}
	}
	for _, ids := range byName {
		reportDuplicates(entityGear, "name", ids, owner, errs)
	}
	for _, ids := range byCode {
		reportDuplicates(entityGear, "barcode", ids, owner, errs)
	}

	for _, g := range current {
		w, ok := work[g.ID]
		switch {
		case !ok:
			del = append(del, g.ID)
		case w.Type != g.Type || w.Name != g.Name || w.BarCode != g.BarCode || w.Size != g.Size:
			update = append(update, w)
		}
	}
	for _, id := range created {
		if g, ok := work[id]; ok {
			create = append(create, g)
		}
	}
	return create, update, del
}

// reportDuplicates 冲突只记在本批改动涉及的行上
func reportDuplicates(entity, field string, ids []string, owner map[string]int, errs *[]FieldError) {
	if len(ids) < 2 {
		return
	}
	for _, id := range ids {
		if i, ok := owner[id]; ok {
			*errs = append(*errs, newFieldError(entity, i, id, field, "unique"))
		}
	}
}
