package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category is one of the two fixed report sections a finding belongs to.
type Category string

const (
	CategoryBuilding  Category = "建筑防火问题清单"
	CategoryEquipment Category = "消防设施问题清单"
)

// Categories lists every valid category in report order.
var Categories = []Category{CategoryBuilding, CategoryEquipment}

// DefaultProject is the project name used when no finding exists yet.
const DefaultProject = "默认项目"

func (c Category) Valid() bool {
	return c == CategoryBuilding || c == CategoryEquipment
}

// Short returns the four-character label shown on finding cards.
func (c Category) Short() string {
	r := []rune(string(c))
	if len(r) > 4 {
		return string(r[:4])
	}
	return string(c)
}

// ParseCategory accepts either the full category name or the short aliases
// "building" and "equipment".
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "building", string(CategoryBuilding):
		return CategoryBuilding, nil
	case "equipment", string(CategoryEquipment):
		return CategoryEquipment, nil
	}
	return "", &ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", s)}
}

type Finding struct {
	ID          int64     `json:"id"`
	Project     string    `json:"project"`
	Category    Category  `json:"category"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Remark      string    `json:"remark,omitempty"`
	PhotoKey    string    `json:"photo_key,omitempty"`
	PhotoMIME   string    `json:"photo_mime,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (f *Finding) HasPhoto() bool {
	return f.PhotoKey != ""
}

// ValidationError reports a required field that was missing or malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s is required", e.Field)
}
