// Package builtin registers the domain resources shipped with the importer.
package builtin

import (
	"github.com/sahana/importer/internal/entities"
	"github.com/sahana/importer/internal/resources"
)

// NewRegistry returns a registry holding every built-in resource.
func NewRegistry() *resources.Registry {
	reg := resources.NewRegistry()
	Register(reg)
	return reg
}

// Register adds the built-in resources to reg.
func Register(reg *resources.Registry) {
	reg.MustRegister(Organisation())
	reg.MustRegister(Office())
	reg.MustRegister(ItemCategory())
	reg.MustRegister(SupplyItem())
}

func Organisation() *resources.Resource {
	return &resources.Resource{
		Module: "org",
		Name:   "organisation",
		Table:  entities.Organisation{}.TableName(),
		Label:  "Organisations",
		Fields: []resources.Field{
			{Name: "name", Type: resources.FieldText, Required: true, Unique: true, MaxLength: 128},
			{Name: "acronym", Type: resources.FieldText, MaxLength: 32},
			{Name: "website", Type: resources.FieldURL, MaxLength: 255},
			{Name: "comments", Type: resources.FieldText},
		},
		Build: func(v resources.Values) resources.Record {
			return &entities.Organisation{
				Name:     v.String("name"),
				Acronym:  v.String("acronym"),
				Website:  v.String("website"),
				Comments: v.String("comments"),
			}
		},
	}
}

func Office() *resources.Resource {
	return &resources.Resource{
		Module: "org",
		Name:   "office",
		Table:  entities.Office{}.TableName(),
		Label:  "Offices",
		Fields: []resources.Field{
			{Name: "name", Type: resources.FieldText, Required: true, MaxLength: 128},
			{Name: "code", Type: resources.FieldText, Required: true, Unique: true, MaxLength: 64},
			{
				Name:      "organisation_id",
				Type:      resources.FieldReference,
				Required:  true,
				Reference: &resources.Reference{Table: entities.Organisation{}.TableName(), LookupColumn: "name"},
			},
			{Name: "phone", Type: resources.FieldText, MaxLength: 32},
			{Name: "email", Type: resources.FieldEmail, MaxLength: 255},
		},
		Build: func(v resources.Values) resources.Record {
			return &entities.Office{
				Name:           v.String("name"),
				Code:           v.String("code"),
				OrganisationID: v.Uint("organisation_id"),
				Phone:          v.String("phone"),
				Email:          v.String("email"),
			}
		},
	}
}

func ItemCategory() *resources.Resource {
	return &resources.Resource{
		Module: "supply",
		Name:   "item_category",
		Table:  entities.ItemCategory{}.TableName(),
		Label:  "Item Categories",
		Fields: []resources.Field{
			{Name: "name", Type: resources.FieldText, Required: true, MaxLength: 128},
			{Name: "code", Type: resources.FieldText, Required: true, Unique: true, MaxLength: 64},
		},
		Build: func(v resources.Values) resources.Record {
			return &entities.ItemCategory{Name: v.String("name"), Code: v.String("code")}
		},
	}
}

// SupplyItem follows the IFRC standard item catalogue columns.
func SupplyItem() *resources.Resource {
	return &resources.Resource{
		Module: "supply",
		Name:   "item",
		Table:  entities.SupplyItem{}.TableName(),
		Label:  "Items",
		Fields: []resources.Field{
			{Name: "name", Type: resources.FieldText, Required: true, MaxLength: 128},
			{Name: "code", Type: resources.FieldText, Required: true, Unique: true, MaxLength: 64},
			{Name: "um", Type: resources.FieldText, Default: "pc", MaxLength: 32},
			{Name: "model", Type: resources.FieldText, MaxLength: 128},
			{Name: "year", Type: resources.FieldInteger},
			{Name: "weight", Type: resources.FieldFloat},
			{
				Name:      "item_category_id",
				Type:      resources.FieldReference,
				Reference: &resources.Reference{Table: entities.ItemCategory{}.TableName(), LookupColumn: "code"},
			},
			{Name: "comments", Type: resources.FieldText},
		},
		Build: func(v resources.Values) resources.Record {
			return &entities.SupplyItem{
				Name:           v.String("name"),
				Code:           v.String("code"),
				UM:             v.String("um"),
				Model:          v.String("model"),
				Year:           v.Int("year"),
				Weight:         v.Float("weight"),
				ItemCategoryID: v.UintPtr("item_category_id"),
				Comments:       v.String("comments"),
			}
		},
	}
}
