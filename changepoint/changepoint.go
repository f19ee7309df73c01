// Package changepoint marks the points in time at which series change behaviour.
package changepoint

import (
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// Changepoint is a detected change in a series
type Changepoint struct {
	T     time.Time   `json:"time"`
	Name  string      `json:"name"`
	Field *data.Field `json:"-"`
}
