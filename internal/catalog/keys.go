package catalog

import (
	"fmt"

	"github.com/google/uuid"
)

// Business keys match spreadsheet rows to storage rows when opaque
// identities are unknown to the spreadsheet author.
//
// Parts key on the normalized SKU. Vehicle applications key on the composite
// sku::make::model::start_year so one part can carry several year ranges for
// the same make/model and still match the specific range. Cross references
// have no stable business key (the competitor SKU itself can change) and are
// matched by identity only.

func PartKey(p PartRow) string {
	return NormalizeSKU(p.ACRSku)
}

func VehicleApplicationKey(v VehicleApplicationRow) string {
	return fmt.Sprintf("%s::%s::%s::%d", NormalizeSKU(v.ACRSku), v.Make, v.Model, v.StartYear)
}

// ExistingData is the fully materialized current-database snapshot the
// pipeline diffs and validates against. Slices preserve storage read order
// so diff output is deterministic; the maps are lookup indexes over them.
type ExistingData struct {
	Parts               []PartRow
	VehicleApplications []VehicleApplicationRow
	CrossReferences     []CrossReferenceRow

	partIdxBySKU map[string]int
	partIdxByID  map[uuid.UUID]int
	vaIdxByKey   map[string]int
	vaIdxByID    map[uuid.UUID]int
	crIdxByID    map[uuid.UUID]int
}

// NewExistingData indexes the given rows. Vehicle application and cross
// reference rows whose ACRSku is empty are resolved from their PartID via
// the parts in the same snapshot.
func NewExistingData(parts []PartRow, vas []VehicleApplicationRow, crs []CrossReferenceRow) *ExistingData {
	e := &ExistingData{
		Parts:               parts,
		VehicleApplications: vas,
		CrossReferences:     crs,
		partIdxBySKU:        make(map[string]int, len(parts)),
		partIdxByID:         make(map[uuid.UUID]int, len(parts)),
		vaIdxByKey:          make(map[string]int, len(vas)),
		vaIdxByID:           make(map[uuid.UUID]int, len(vas)),
		crIdxByID:           make(map[uuid.UUID]int, len(crs)),
	}

	skuByPartID := make(map[uuid.UUID]string, len(parts))
	for i := range parts {
		sku := NormalizeSKU(parts[i].ACRSku)
		e.Parts[i].ACRSku = sku
		e.partIdxBySKU[sku] = i
		if parts[i].ID != nil {
			e.partIdxByID[*parts[i].ID] = i
			skuByPartID[*parts[i].ID] = sku
		}
	}
	for i := range vas {
		if e.VehicleApplications[i].ACRSku == "" && vas[i].PartID != nil {
			e.VehicleApplications[i].ACRSku = skuByPartID[*vas[i].PartID]
		} else {
			e.VehicleApplications[i].ACRSku = NormalizeSKU(vas[i].ACRSku)
		}
		e.vaIdxByKey[VehicleApplicationKey(e.VehicleApplications[i])] = i
		if vas[i].ID != nil {
			e.vaIdxByID[*vas[i].ID] = i
		}
	}
	for i := range crs {
		if e.CrossReferences[i].ACRSku == "" && crs[i].PartID != nil {
			e.CrossReferences[i].ACRSku = skuByPartID[*crs[i].PartID]
		} else {
			e.CrossReferences[i].ACRSku = NormalizeSKU(crs[i].ACRSku)
		}
		if crs[i].ID != nil {
			e.crIdxByID[*crs[i].ID] = i
		}
	}
	return e
}

func (e *ExistingData) PartBySKU(sku string) (PartRow, bool) {
	i, ok := e.partIdxBySKU[NormalizeSKU(sku)]
	if !ok {
		return PartRow{}, false
	}
	return e.Parts[i], true
}

func (e *ExistingData) PartByID(id uuid.UUID) (PartRow, bool) {
	i, ok := e.partIdxByID[id]
	if !ok {
		return PartRow{}, false
	}
	return e.Parts[i], true
}

func (e *ExistingData) VehicleApplicationByKey(key string) (VehicleApplicationRow, bool) {
	i, ok := e.vaIdxByKey[key]
	if !ok {
		return VehicleApplicationRow{}, false
	}
	return e.VehicleApplications[i], true
}

func (e *ExistingData) VehicleApplicationByID(id uuid.UUID) (VehicleApplicationRow, bool) {
	i, ok := e.vaIdxByID[id]
	if !ok {
		return VehicleApplicationRow{}, false
	}
	return e.VehicleApplications[i], true
}

func (e *ExistingData) CrossReferenceByID(id uuid.UUID) (CrossReferenceRow, bool) {
	i, ok := e.crIdxByID[id]
	if !ok {
		return CrossReferenceRow{}, false
	}
	return e.CrossReferences[i], true
}

// HasPart reports whether the SKU resolves to a part in this snapshot.
func (e *ExistingData) HasPart(sku string) bool {
	_, ok := e.partIdxBySKU[NormalizeSKU(sku)]
	return ok
}
