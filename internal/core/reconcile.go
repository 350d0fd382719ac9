package core

import "strings"

// Field widths of the registry tables.
const (
	maxNameLen           = 150
	maxAddressLen        = 250
	maxMotherDocumentLen = 15
	maxMotherNameLen     = 150
	maxAgeBracketLen     = 50
	maxClinicalRecordLen = 50
	maxFacilityLen       = 150
	maxObservationLen    = 500
	maxSocialActorLen    = 150
)

// DefaultChildName is stored for new children whose name cell is empty.
const DefaultChildName = "SIN NOMBRE"

// Snapshot is the registry state a plan is computed against: the tenant's
// children matching the incoming keys, and their visits in the target period
// ordered by id.
type Snapshot struct {
	Children map[string]Child
	Visits   map[int64][]Visit
}

// PendingVisits are visits of a child that does not exist yet. They are
// materialized once the child create has assigned an id.
type PendingVisits struct {
	DocumentKey string
	Visits      []Visit
}

// Plan is the change set of one reconciliation, applied in field order.
type Plan struct {
	ChildUpdates  []Child
	ChildCreates  []Child
	PendingVisits []PendingVisits
	VisitUpdates  []Visit
	VisitCreates  []Visit
	Summary       Summary
}

// Empty reports whether applying the plan would write nothing.
func (p *Plan) Empty() bool {
	return len(p.ChildUpdates) == 0 && len(p.ChildCreates) == 0 &&
		len(p.VisitUpdates) == 0 && len(p.VisitCreates) == 0
}

// PlanReconciliation computes the change set that brings the registry in line
// with groups for period. It never deletes: existing visits beyond the
// incoming count are left alone, and stored fields are only overwritten by
// non-empty incoming values. Changes that would not alter stored data are
// not staged, so planning the same input twice against the result of the
// first run yields an empty plan.
func PlanReconciliation(groups []ChildGroup, period Period, tenantID int64, snap Snapshot) *Plan {
	plan := &Plan{}

	for _, g := range groups {
		incoming := childFromRow(g.Primary(), g.Key, tenantID)
		visit, hasStatus := visitFromRow(g.Primary(), period, tenantID)
		plan.Summary.TotalVisits += g.Occurrences

		existing, ok := snap.Children[g.Key]
		if !ok {
			plan.Summary.NewChildren++
			if incoming.Name == "" {
				incoming.Name = DefaultChildName
			}
			plan.ChildCreates = append(plan.ChildCreates, incoming)

			pending := PendingVisits{DocumentKey: g.Key, Visits: make([]Visit, g.Occurrences)}
			for i := range pending.Visits {
				pending.Visits[i] = visit
			}
			plan.PendingVisits = append(plan.PendingVisits, pending)
			continue
		}

		plan.Summary.ExistingChildren++
		if merged, changed := mergeChild(existing, incoming); changed {
			plan.ChildUpdates = append(plan.ChildUpdates, merged)
		}

		current := snap.Visits[existing.ID]
		for i := 0; i < g.Occurrences; i++ {
			if i < len(current) {
				if merged, changed := mergeVisit(current[i], visit, hasStatus); changed {
					plan.VisitUpdates = append(plan.VisitUpdates, merged)
				}
				continue
			}
			v := visit
			v.ChildID = existing.ID
			plan.VisitCreates = append(plan.VisitCreates, v)
		}
	}

	return plan
}

// childFromRow builds the incoming child record from the primary row.
// Fields the row did not carry are left empty.
func childFromRow(row CanonicalRow, key string, tenantID int64) Child {
	c := Child{
		TenantID:       tenantID,
		DocumentKey:    key,
		Name:           strings.ToUpper(cleanText(row.Get(FieldChildName), maxNameLen)),
		BirthDate:      ParseBirthDate(row.Get(FieldBirthDate)),
		Address:        cleanText(row.Get(FieldAddress), maxAddressLen),
		MotherName:     cleanText(row.Get(FieldMotherName), maxMotherNameLen),
		MotherPhone:    NormalizePhone(row.Get(FieldMotherPhone)),
		ClinicalRecord: cleanText(row.Get(FieldClinicalRecord), maxClinicalRecordLen),
		AgeBracket:     cleanText(row.Get(FieldAgeBracket), maxAgeBracketLen),
	}
	if doc, ok := NormalizeIdentity(row.Get(FieldMotherDocument)); ok {
		c.MotherDocument = truncateRunes(doc, maxMotherDocumentLen)
	}
	if f, ok := NormalizeFacility(row.Get(FieldAssignedFacility)); ok {
		c.Facility = truncateRunes(f, maxFacilityLen)
	}
	return c
}

// visitFromRow builds the visit template of a group. hasStatus reports
// whether the source carried a status cell at all.
func visitFromRow(row CanonicalRow, period Period, tenantID int64) (Visit, bool) {
	v := Visit{
		TenantID:    tenantID,
		Date:        period.Date(),
		Status:      NormalizeVisitStatus(row.Get(FieldStatus)),
		Observation: cleanText(row.Get(FieldObservation), maxObservationLen),
		SocialActor: cleanText(row.Get(FieldSocialActor), maxSocialActorLen),
	}
	if f, ok := NormalizeFacility(row.Get(FieldAttendanceFacility)); ok {
		v.Facility = truncateRunes(f, maxFacilityLen)
	}
	return v, row.Has(FieldStatus)
}

// mergeChild overlays the non-empty incoming fields on existing.
func mergeChild(existing, in Child) (Child, bool) {
	out := existing
	changed := false

	set := func(dst *string, v string) {
		if IsPlaceholder(v) || *dst == v {
			return
		}
		*dst = v
		changed = true
	}
	set(&out.Name, in.Name)
	set(&out.Address, in.Address)
	set(&out.MotherDocument, in.MotherDocument)
	set(&out.MotherName, in.MotherName)
	set(&out.MotherPhone, in.MotherPhone)
	set(&out.Facility, in.Facility)
	set(&out.ClinicalRecord, in.ClinicalRecord)
	set(&out.AgeBracket, in.AgeBracket)

	if in.BirthDate != nil && !sameDate(out.BirthDate, in.BirthDate) {
		out.BirthDate = in.BirthDate
		changed = true
	}
	return out, changed
}

// mergeVisit overlays the incoming visit on an existing one. The date stays
// fixed; status only moves when the source carried one.
func mergeVisit(existing, in Visit, hasStatus bool) (Visit, bool) {
	out := existing
	changed := false

	if hasStatus && out.Status != in.Status {
		out.Status = in.Status
		changed = true
	}
	set := func(dst *string, v string) {
		if IsPlaceholder(v) || *dst == v {
			return
		}
		*dst = v
		changed = true
	}
	set(&out.Observation, in.Observation)
	set(&out.Facility, in.Facility)
	set(&out.SocialActor, in.SocialActor)
	return out, changed
}
