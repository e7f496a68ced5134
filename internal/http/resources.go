package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sahana/importer/internal/resources"
)

type ResourcesController struct {
	registry *resources.Registry
}

func NewResourcesController(registry *resources.Registry) *ResourcesController {
	return &ResourcesController{registry: registry}
}

type FieldInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Options   []string `json:"options,omitempty"`
	Default   string   `json:"default,omitempty"`
	Reference string   `json:"reference,omitempty"`
}

type ResourceInfo struct {
	Module string      `json:"module"`
	Name   string      `json:"name"`
	Table  string      `json:"table"`
	Label  string      `json:"label"`
	Fields []FieldInfo `json:"fields"`
}

// List handles GET /api/resources: the import targets and their fields,
// which are also the headers a source file may use.
func (rc *ResourcesController) List(c *gin.Context) {
	all := rc.registry.All()
	out := make([]ResourceInfo, 0, len(all))
	for _, res := range all {
		info := ResourceInfo{Module: res.Module, Name: res.Name, Table: res.Table, Label: res.Label}
		for _, f := range res.Fields {
			field := FieldInfo{
				Name:      f.Name,
				Type:      string(f.Type),
				Required:  f.Required,
				Unique:    f.Unique,
				MaxLength: f.MaxLength,
				Options:   f.Options,
				Default:   f.Default,
			}
			if f.Reference != nil {
				field.Reference = f.Reference.Table
			}
			info.Fields = append(info.Fields, field)
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"resources": out})
}
