package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// FixedColor is a field color config which always renders the given color
func FixedColor(color string) map[string]interface{} {
	return map[string]interface{}{
		"mode":       "fixed",
		"fixedColor": color,
	}
}

// HideFromLegend is a custom field config block which keeps a field out of the legend,
// tooltip and viz while still drawing it when the series are linked.
func HideFromLegend() map[string]interface{} {
	return map[string]interface{}{
		"legend":  true,
		"tooltip": false,
		"viz":     false,
	}
}

// CustomConfig collects the custom field config of a series
type CustomConfig struct {
	FillBelowTo string
	LineWidth   int
	// HideLine draws the series with a zero line width, for bands
	HideLine       bool
	FillOpacity    int
	HideFromLegend bool
}

// Map converts the config into the shape the panel expects. Only set values are included.
func (c CustomConfig) Map() map[string]interface{} {
	m := map[string]interface{}{}
	if c.FillBelowTo != "" {
		m["fillBelowTo"] = c.FillBelowTo
	}
	if c.LineWidth > 0 {
		m["lineWidth"] = c.LineWidth
	}
	if c.HideLine {
		m["lineWidth"] = 0
	}
	if c.FillOpacity > 0 {
		m["fillOpacity"] = c.FillOpacity
	}
	if c.HideFromLegend {
		m["hideFrom"] = HideFromLegend()
	}
	return m
}

// Alpha converts a #RRGGBB color into an rgba string with the given transparency. Colors which
// cannot be parsed are returned unchanged.
func Alpha(hex string, alpha float64) string {
	s := strings.TrimPrefix(hex, "#")
	if len(s) != 6 {
		return hex
	}
	rgb, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return hex
	}
	r, g, b := rgb>>16&0xff, rgb>>8&0xff, rgb&0xff
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, strconv.FormatFloat(alpha, 'f', -1, 64))
}

// WithConfig sets the display name, color and custom config on a field. Empty values are
// left unset.
func WithConfig(field *data.Field, displayName, color string, custom CustomConfig) *data.Field {
	conf := &data.FieldConfig{}
	if field.Config != nil {
		*conf = *field.Config
	}
	if displayName != "" {
		conf.DisplayNameFromDS = displayName
	}
	if color != "" {
		conf.Color = FixedColor(color)
	}
	if m := custom.Map(); len(m) > 0 {
		conf.Custom = m
	}
	return field.SetConfig(conf)
}
