package models

import "gorm.io/gorm"

// BacktestRun summarises one simulator run.
type BacktestRun struct {
	gorm.Model
	Kind       string `gorm:"index" json:"kind"` // "twap" or "grid"
	Params     string `json:"params"`            // JSON encoded simulator parameters
	Rows       int    `json:"rows"`
	AvgPrice   string `json:"avg_price,omitempty"`
	PnL        string `gorm:"column:pnl" json:"pnl"`
	OutputPath string `json:"output_path"`
	Timestamp  int64  `json:"timestamp"`
}
