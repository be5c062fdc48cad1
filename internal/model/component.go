package model

import "time"

// Component 商品目录中的一个配件
// 对应数据库表 components，ID 由目录来源决定，保持稳定
type Component struct {
	ID       string  `gorm:"primaryKey;size:64" json:"id" yaml:"id"`
	Name     string  `gorm:"size:255;not null" json:"name" yaml:"name"`
	Price    float64 `gorm:"not null;default:0" json:"price" yaml:"price"`
	Category string  `gorm:"size:30;index;not null" json:"category" yaml:"category"`

	// Link 购买链接，可选
	Link *string `gorm:"size:500" json:"link,omitempty" yaml:"link,omitempty"`

	// Brand 品牌，可选；为空时由名称推断
	Brand *string `gorm:"size:50" json:"brand,omitempty" yaml:"brand,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"-" yaml:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-" yaml:"-"`
}

// TableName 指定表名
func (Component) TableName() string {
	return "components"
}
