package entities

import "time"

// Domain tables populated by imports. Names follow the "<module>_<resource>"
// convention so a job's TableKey matches the table it writes.

type Organisation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Acronym   string    `gorm:"size:32" json:"acronym,omitempty"`
	Website   string    `gorm:"size:255" json:"website,omitempty"`
	Comments  string    `gorm:"type:text" json:"comments,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Organisation) TableName() string {
	return "org_organisation"
}

type Office struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:128;not null" json:"name"`
	Code           string    `gorm:"size:64;not null;uniqueIndex" json:"code"`
	OrganisationID uint      `gorm:"not null;index" json:"organisation_id"`
	Phone          string    `gorm:"size:32" json:"phone,omitempty"`
	Email          string    `gorm:"size:255" json:"email,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Office) TableName() string {
	return "org_office"
}

type ItemCategory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Code      string    `gorm:"size:64;not null;uniqueIndex" json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

func (ItemCategory) TableName() string {
	return "supply_item_category"
}

type SupplyItem struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"size:128;not null" json:"name"`
	Code           string    `gorm:"size:64;not null;uniqueIndex" json:"code"`
	UM             string    `gorm:"column:um;size:32;not null;default:'pc'" json:"um"`
	Model          string    `gorm:"size:128" json:"model,omitempty"`
	Year           int       `json:"year,omitempty"`
	Weight         float64   `json:"weight,omitempty"`
	ItemCategoryID *uint     `gorm:"index" json:"item_category_id,omitempty"`
	Comments       string    `gorm:"type:text" json:"comments,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (SupplyItem) TableName() string {
	return "supply_item"
}

func (o *Organisation) GetID() uint { return o.ID }
func (o *Office) GetID() uint       { return o.ID }
func (c *ItemCategory) GetID() uint { return c.ID }
func (i *SupplyItem) GetID() uint   { return i.ID }
