package handlers

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/platformbuilds/workcell-kpi/internal/kpi"
)

var registerOnce sync.Once

// RegisterValidators installs the entityid rule on gin's validator and makes
// validation errors report query parameter names instead of struct fields.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
			return kpi.ValidateEntityID(fl.FieldName(), fl.Field().String()) == nil
		})
	})
}

type lineQuery struct {
	LineID string `form:"line_id" binding:"required,entityid"`
}

type dashboardQuery struct {
	LineID   string `form:"line_id" binding:"required,entityid"`
	Lookback string `form:"lookback"`
	// Force is strict only when 1; other integers take the lenient parse.
	Force int `form:"force,default=0"`
}

type analyticsQuery struct {
	LineID string `form:"line_id" binding:"required,entityid"`
	Range  string `form:"range,default=24h" binding:"oneof=24h 7d 30d"`
}

type siteQuery struct {
	Site string `form:"site" binding:"required,entityid"`
}

type nodeNamesQuery struct {
	Site      string `form:"site" binding:"required,entityid"`
	Component string `form:"component" binding:"max=128"`
}

type timeseriesQuery struct {
	Site           string `form:"site" binding:"required,entityid"`
	Metric         string `form:"metric,default=quality_pct"`
	Range          string `form:"range,default=30m"`
	ComponentTypes string `form:"component_types"`
	NodeNames      string `form:"node_names"`
}

type trendQuery struct {
	Site     string `form:"site" binding:"required,entityid"`
	Lookback string `form:"lookback"`
	Interval string `form:"interval"`
}
