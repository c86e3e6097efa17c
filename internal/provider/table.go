// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
)

const (
	ijsjesradarEndpoint = "https://ijsjesradar.be/status.php"
	icecorpEndpoint     = "https://api.icecorp.be/v1/icecreamvanmarkerdata?company_id=%d&has_working_day=1"
	pitzEndpoint        = "https://map-pitz-ijs.vercel.app/api/?purge=false"
	vanDeWalleEndpoint  = "https://www.ijsvandewalle.be/map/result.json"
)

// ErrUnknownProvider is returned when a provider id is not part of the Table.
var ErrUnknownProvider = errors.New("unknown provider")

// Table is the immutable set of supported providers, keyed by provider id.
type Table struct {
	specs map[string]Spec
	ids   []string
}

// NewTable returns a Table holding every supported provider.
func NewTable() *Table {
	specs := []Spec{
		ijsjesradar("de_kremkerre_melle", "De Kremkerre Melle", "de-kremkerre"),
		icecorp("de_krijmboer_lommel", "De Krijmboer Lommel", 10),
		icecorp("foubert_sint_niklaas", "Foubert Sint-Niklaas", 2),
		ijsjesradar("glace_de_bock_beveren", "Glace De Bock Beveren", "de-bock"),
		icecorp("het_boerenijsje_loenhout", "Het Boerenijsje Loenhout", 12),
		ijsjesradar("het_droomijsje_breskens", "Het Droomijsje Breskens", "het-droomijsje"),
		icecorp("joris_beerse", "Joris Beerse", 4),
		{
			ID:         "pitz_stekene",
			Name:       "Pitz Stekene",
			Endpoint:   pitzEndpoint,
			Method:     http.MethodGet,
			Family:     FamilyList,
			LatField:   "lat",
			LonField:   "lng",
			LabelField: "naam",
			Filter:     IsActive("active"),
			Status:     ActiveStatus("active"),
		},
		icecorp("tartiste_deinze", "Tartiste Deinze", 8),
		{
			ID:         "van_de_walle_temse",
			Name:       "Van De Walle Temse",
			Endpoint:   vanDeWalleEndpoint,
			Method:     http.MethodGet,
			Family:     FamilyList,
			LatField:   "latitude",
			LonField:   "longitude",
			LabelField: "label",
			Status:     StatusField("status", false),
		},
		icecorp("vanilla_plus_oostende", "Vanilla + Oostende", 11),
	}

	table := &Table{
		specs: make(map[string]Spec, len(specs)),
		ids:   make([]string, 0, len(specs)),
	}
	for _, spec := range specs {
		table.specs[spec.ID] = spec
		table.ids = append(table.ids, spec.ID)
	}
	return table
}

// Lookup returns the Spec for the given provider id.
func (t *Table) Lookup(id string) (Spec, bool) {
	spec, ok := t.specs[id]
	return spec, ok
}

// IDs returns all provider ids in alphabetical order.
func (t *Table) IDs() []string {
	return slices.Clone(t.ids)
}

// Select returns the Specs for the given provider ids, in the given order. Duplicate ids are
// returned once. An unknown id fails the whole selection.
func (t *Table) Select(ids []string) ([]Spec, error) {
	if len(ids) == 0 {
		return nil, errors.New("no providers selected")
	}
	specs := make([]Spec, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		spec, ok := t.specs[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		specs = append(specs, spec)
	}
	return specs, nil
}

// ijsjesradar returns the Spec of a company reporting through the shared ijsjesradar.be feed.
func ijsjesradar(id, name, companyRef string) Spec {
	return Spec{
		ID:         id,
		Name:       name,
		Endpoint:   ijsjesradarEndpoint,
		Method:     http.MethodGet,
		Family:     FamilyList,
		LatField:   "location.lat",
		LonField:   "location.lon",
		LabelField: "name",
		Filter:     CompanyOnline(companyRef),
		Status:     StatusField("status", false),
	}
}

// icecorp returns the Spec of a company reporting through the icecorp.be marker API.
func icecorp(id, name string, companyID int) Spec {
	return Spec{
		ID:         id,
		Name:       name,
		Endpoint:   fmt.Sprintf(icecorpEndpoint, companyID),
		Method:     http.MethodGet,
		Family:     FamilyEnvelope,
		LatField:   "latitude",
		LonField:   "longitude",
		LabelField: "title",
		Status:     StatusField("status", true),
	}
}
