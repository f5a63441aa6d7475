package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypeStandard       ProductType = "standard"
	ProductTypeBalanceBuilder ProductType = "balance_builder"
	ProductTypePayItOff       ProductType = "pay_it_off"
	ProductTypeOneTime        ProductType = "one_time"
)

// Product is a catalog entry owned by a business. The reconciliation engine
// only reads products.
type Product struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	BusinessID      uint                `gorm:"not null;index" json:"business_id"`
	Name            string              `gorm:"type:varchar(200);not null" json:"name"`
	Description     string              `gorm:"type:text" json:"description"`
	ProductType     ProductType         `gorm:"type:varchar(32);not null;default:'standard'" json:"product_type"`
	Price           decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"price"`
	Currency        string              `gorm:"type:varchar(3);not null;default:'gbp'" json:"currency"`
	IsCreditBuilder bool                `gorm:"default:false" json:"is_credit_builder"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectiveType resolves the product type, honouring the legacy
// is_credit_builder flag as a synonym for balance_builder.
func (p *Product) EffectiveType() ProductType {
	if p.IsCreditBuilder {
		return ProductTypeBalanceBuilder
	}
	t := ProductType(strings.ToLower(strings.TrimSpace(string(p.ProductType))))
	if t == "" {
		return ProductTypeStandard
	}
	return t
}
